package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/lexmark/internal/debug"
)

// DefaultPressurePoll is the heap sampling interval when none is configured
const DefaultPressurePoll = 5 * time.Second

// PressureMonitor samples heap usage and signals when it crosses a limit.
// It fires once per crossing; the heap must fall back under the limit
// before it fires again.
type PressureMonitor struct {
	limit    uint64
	interval time.Duration
	onHigh   func()
	readHeap func() uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	triggers atomic.Int64
	samples  atomic.Int64
	high     bool
}

// NewPressureMonitor creates a monitor firing onHigh when the heap exceeds
// maxHeapMB. onHigh runs on the monitor goroutine; post to the host loop
// from it.
func NewPressureMonitor(maxHeapMB int, interval time.Duration, onHigh func()) *PressureMonitor {
	if interval <= 0 {
		interval = DefaultPressurePoll
	}
	return &PressureMonitor{
		limit:    uint64(maxHeapMB) << 20,
		interval: interval,
		onHigh:   onHigh,
		readHeap: func() uint64 {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return m.HeapAlloc
		},
	}
}

// Start begins sampling until ctx is cancelled or Stop is called
func (pm *PressureMonitor) Start(ctx context.Context) {
	if pm.cancel != nil || pm.limit == 0 {
		return
	}
	pm.ctx, pm.cancel = context.WithCancel(ctx)
	pm.wg.Add(1)
	go pm.run()
}

// Stop ends sampling and waits for the goroutine to exit
func (pm *PressureMonitor) Stop() {
	if pm.cancel == nil {
		return
	}
	pm.cancel()
	pm.wg.Wait()
}

func (pm *PressureMonitor) run() {
	defer pm.wg.Done()
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

func (pm *PressureMonitor) sample() {
	pm.samples.Add(1)
	heap := pm.readHeap()
	if heap <= pm.limit {
		pm.high = false
		return
	}
	if pm.high {
		return
	}
	pm.high = true
	pm.triggers.Add(1)
	debug.LogScheduler("heap %d MiB over limit %d MiB\n", heap>>20, pm.limit>>20)
	pm.onHigh()
}

// Triggers returns how many times the limit was crossed
func (pm *PressureMonitor) Triggers() int64 {
	return pm.triggers.Load()
}
