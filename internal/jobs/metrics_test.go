package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("provision").End(nil))
	boom := errors.New("boom")
	assert.Same(t, boom, m.Track("provision").End(boom))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("provision", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("provision", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("provision")))
}

func TestAddRoles(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddRoles("provisioned", 2)
	m.AddRoles("provisioned", 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rolesChanged.WithLabelValues("provisioned")))

	var nilMetrics *Metrics
	nilMetrics.AddRoles("purged", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
