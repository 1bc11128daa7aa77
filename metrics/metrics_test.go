package metrics

import (
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcompose/types"
)

func TestObservePull(t *testing.T) {
	m := New()
	require.NoError(t, m.Register(prometheus.NewRegistry()))

	m.ObservePull(types.ComponentDecoder, 3, nil)
	m.ObservePull(types.ComponentDecoder, 0, io.EOF)
	m.ObservePull(types.ComponentEncoder, 0, errors.New("boom"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.Pulls.WithLabelValues("decoder")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.Items.WithLabelValues("decoder")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Terminations.WithLabelValues("decoder", "closed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Terminations.WithLabelValues("encoder", "failed")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObservePull(types.ComponentMuxer, 1, nil)
	m.ObserveHandles(types.ComponentMuxer, 1, 1)
	m.ObserveStageBuilt(types.ComponentMuxer)
}

func TestRegisterTwiceFails(t *testing.T) {
	r := prometheus.NewRegistry()
	require.NoError(t, New().Register(r))
	require.Error(t, New().Register(r))
}
