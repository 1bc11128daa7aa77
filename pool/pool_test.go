package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	value int
}

func TestPool(t *testing.T) {
	var resets int
	p := NewPool(
		func() *item { return &item{} },
		func(v *item) { resets++; v.value = 0 },
		func(*item) {},
	)

	v := p.Get()
	v.value = 42
	p.Put(v)
	require.Equal(t, 1, resets)
	require.Equal(t, 0, v.value)
	require.Equal(t, uint64(1), p.Allocated())

	p.DisableReuse = true
	p.Put(p.Get())
	require.Equal(t, 1, resets)
}
