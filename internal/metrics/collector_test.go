package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lexmark/internal/scheduler"
)

func TestCollector_RecordsSchedulerEvents(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	c.UnitFinished(&scheduler.Unit{State: scheduler.UnitDone, Full: true, Leaves: 3, Annotations: 2})
	c.UnitFinished(&scheduler.Unit{State: scheduler.UnitDone, Leaves: 1, Annotations: 1})
	c.UnitFinished(&scheduler.Unit{State: scheduler.UnitSuperseded})
	c.BatchFinished(2, 3*time.Millisecond)
	c.CacheEvicted("fragments", 5)
	c.SetLiveAnnotations(3)
	c.PoolDelta(4, 0)
	c.Rehighlight()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.units.WithLabelValues("done", "full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.units.WithLabelValues("done", "incremental")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.units.WithLabelValues("superseded", "incremental")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.leaves))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.annotations))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.evictions.WithLabelValues("fragments")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.liveAnns))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.poolEvents.WithLabelValues("reuse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rehighlights))
	assert.Equal(t, 1, testutil.CollectAndCount(c.batchDuration))
}

func TestCollector_RegisterTwiceFails(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg))
}
