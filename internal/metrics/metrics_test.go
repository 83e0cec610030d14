package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveFetch(FetchOK)
	m.ObserveFetch(FetchRateLimited)
	m.ObserveFetch(FetchRateLimited)
	m.ObservePage(true)
	m.ObservePage(false)
	m.ObserveSession("Completed")
	m.ObserveTurn()
	m.ObservePoll()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues(FetchOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues(FetchRateLimited)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pages.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pages.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("Completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunPolls))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFetch(FetchOK)
	m.ObservePage(true)
	m.ObserveSession("Failed")
	m.ObserveTurn()
	m.ObservePoll()
}
