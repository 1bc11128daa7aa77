package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

type Rational struct {
	Num int
	Den int
}

// TimeBaseMicroseconds is the time base used for payloads whose producer
// did not declare one.
var TimeBaseMicroseconds = Rational{Num: 1, Den: 1000000}

func (r Rational) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

func (r Rational) Reverse() Rational {
	return Rational{
		Num: r.Den,
		Den: r.Num,
	}
}

func (r Rational) Mul(other Rational) Rational {
	return Rational{
		Num: r.Num * other.Num,
		Den: r.Den * other.Den,
	}
}

func (r Rational) Div(other Rational) Rational {
	return Rational{
		Num: r.Num * other.Den,
		Den: r.Den * other.Num,
	}
}

// Rescale converts a timestamp expressed in time base "from" into time base
// "to", rounding to the nearest value.
func Rescale(ts int64, from, to Rational) int64 {
	if from.IsZero() || to.IsZero() || from == to {
		return ts
	}
	num := big.NewInt(ts)
	num.Mul(num, big.NewInt(int64(from.Num)*int64(to.Den)))
	den := big.NewInt(int64(from.Den) * int64(to.Num))
	q, m := new(big.Int).QuoRem(num, den, new(big.Int))
	if new(big.Int).Mul(m.Abs(m), big.NewInt(2)).Cmp(den.Abs(den)) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}

func RationalFromString(s string) (*Rational, error) {
	var r Rational
	switch {
	case len(s) == 0:
		return nil, fmt.Errorf("unable to parse Rational from empty string")
	case strings.Contains(s, "/"):
		if _, err := fmt.Sscanf(s, "%d/%d", &r.Num, &r.Den); err != nil {
			return nil, fmt.Errorf("unable to parse Rational from %q: %w", s, err)
		}
	default:
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("unable to parse Rational from %q: %w", s, err)
		}
		r = Rational{Num: v, Den: 1}
	}
	if r.Den == 0 {
		return nil, fmt.Errorf("denominator cannot be zero")
	}
	return &r, nil
}

func (r Rational) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rational) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unable to unmarshal Rational from JSON '%s': %w", b, err)
	}
	return r.UnmarshalText([]byte(s))
}

func (r Rational) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rational) UnmarshalText(b []byte) error {
	v, err := RationalFromString(string(b))
	if err != nil {
		return fmt.Errorf("unable to unmarshal Rational from string %q: %w", b, err)
	}
	*r = *v
	return nil
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}
