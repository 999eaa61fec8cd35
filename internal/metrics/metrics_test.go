package metrics_test

import (
	"testing"

	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistriesAreIndependent(t *testing.T) {
	a := metrics.New(prometheus.NewRegistry())
	b := metrics.New(prometheus.NewRegistry())

	a.Verdicts.WithLabelValues("accepted").Inc()
	a.Verdicts.WithLabelValues("accepted").Inc()
	a.Throttled.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.Verdicts.WithLabelValues("accepted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Verdicts.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Throttled))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Throttled))
}

func TestInFlightGaugeReadsAtScrape(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	current := 3.0
	gauge := m.NewInFlightGauge(func() float64 { return current })
	assert.Equal(t, 3.0, testutil.ToFloat64(gauge))

	current = 1
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
}

func TestGathererExposesJudgeMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.Verdicts.WithLabelValues("wrong_answer").Inc()
	m.BuildDuration.Observe(1.5)

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["judge_verdicts_total"])
	assert.True(t, names["judge_container_build_seconds"])
}
