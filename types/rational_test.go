package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRationalFromString(t *testing.T) {
	tests := []struct {
		input          string
		expectedNum    int
		expectedDen    int
		expectingError bool
	}{
		{"30", 30, 1, false},
		{"30/1", 30, 1, false},
		{"30000/1001", 30000, 1001, false},
		{"1/1000000", 1, 1000000, false},
		{"0/1", 0, 1, false},
		{"1/0", 0, 0, true},
		{"", 0, 0, true},
		{"invalid", 0, 0, true},
		{"10/invalid", 0, 0, true},
	}

	for _, test := range tests {
		rational, err := RationalFromString(test.input)
		if test.expectingError {
			require.Error(t, err, test.input)
			continue
		}
		require.NoError(t, err, test.input)
		require.Equal(t, Rational{Num: test.expectedNum, Den: test.expectedDen}, *rational, test.input)
	}
}

func TestRescale(t *testing.T) {
	require.Equal(t, int64(90000), Rescale(1000000, TimeBaseMicroseconds, Rational{Num: 1, Den: 90000}))
	require.Equal(t, int64(33), Rescale(3, Rational{Num: 1, Den: 90}, Rational{Num: 1, Den: 1000}))
	require.Equal(t, int64(-33), Rescale(-3, Rational{Num: 1, Den: 90}, Rational{Num: 1, Den: 1000}))
	require.Equal(t, int64(42), Rescale(42, Rational{}, TimeBaseMicroseconds))
}

func TestRationalText(t *testing.T) {
	var r Rational
	require.NoError(t, r.UnmarshalText([]byte("1/48000")))
	require.Equal(t, Rational{Num: 1, Den: 48000}, r)
	b, err := r.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1/48000", string(b))
}
