// Package observability instruments Connection.Fire's dispatch path.
// PerformanceMonitor records, per event name (ev.String(): "READ",
// "CONNECT" and so on; every protocol event at or above EvUser, such as
// protocol/http's EvMsg, shares the one name "USER"), how long
// that event's ProtoHandler+Handler pair took to run, and flags event
// types whose average dispatch time is long enough to stall netkit's
// single-threaded poll loop for every other connection.
package observability

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PerformanceMonitor accumulates per-event-type dispatch timing with no
// locking on its hot path: RecordRequest runs synchronously inside
// Connection.Fire, once per dispatch, so it only ever touches atomics
// and a sync.Map keyed by event name — the same reason the teacher's
// original design avoided a mutex here, generalized from per-HTTP-route
// timing to netkit's full event set.
type PerformanceMonitor struct {
	enabled atomic.Bool
	events  sync.Map // event name -> *EventMetrics

	global struct {
		totalEvents   atomic.Uint64
		totalDuration atomic.Uint64
	}

	bottlenecks  []Bottleneck
	bottleneckMu sync.RWMutex
}

// EventMetrics accumulates dispatch timing for one event name.
type EventMetrics struct {
	Name          string
	Count         atomic.Uint64
	Errors        atomic.Uint64
	TotalDuration atomic.Uint64
	MinDuration   atomic.Uint64
	MaxDuration   atomic.Uint64

	// latencyBuckets counts dispatches against latencyBucketBoundsUs,
	// tuned to a single-threaded reactor's event dispatch rather than a
	// threaded server's per-request latency: a dispatch taking longer
	// than a millisecond is already unusual here, since it blocks
	// every other connection's events for the rest of that poll step.
	latencyBuckets [len(latencyBucketBoundsUs) + 1]atomic.Uint64
}

// latencyBucketBoundsUs are the upper bounds, in microseconds, of all
// but the last of EventMetrics.latencyBuckets; the final bucket catches
// everything at or above the last bound.
var latencyBucketBoundsUs = [9]int64{10, 50, 100, 250, 500, 1_000, 5_000, 20_000, 100_000}

// StallThreshold is the per-event-type average dispatch time past which
// detectBottlenecks reports a poll-stall bottleneck. netkit's reactor
// dispatches every connection's events from one goroutine (spec.md
// §4.6), so a handler slow enough to matter here is an order of
// magnitude faster than what a threaded request handler would consider
// slow — past this, it isn't just that one connection's event that's
// late, it's every connection waiting behind it in the same poll step.
const StallThreshold = time.Millisecond

// Bottleneck is a detected event type whose dispatch behavior is
// degrading the reactor as a whole.
type Bottleneck struct {
	Type       string
	Location   string
	Severity   int
	Impact     float64
	DetectedAt time.Time
	Details    string
}

// NewPerformanceMonitor creates a monitor with bottleneck detection
// already running in the background.
func NewPerformanceMonitor() *PerformanceMonitor {
	pm := &PerformanceMonitor{}
	pm.enabled.Store(true)
	go pm.analyzeBottlenecks()
	return pm
}

// RecordRequest records one dispatch of the named event, its duration,
// and whether it ended in EvError.
func (pm *PerformanceMonitor) RecordRequest(event string, duration time.Duration, isError bool) {
	if !pm.enabled.Load() {
		return
	}

	val, _ := pm.events.LoadOrStore(event, &EventMetrics{Name: event})
	metrics := val.(*EventMetrics)

	metrics.Count.Add(1)
	if isError {
		metrics.Errors.Add(1)
	}

	durationNs := uint64(duration.Nanoseconds())
	metrics.TotalDuration.Add(durationNs)
	pm.updateMinMax(metrics, durationNs)
	pm.updateLatencyBucket(metrics, durationNs)

	pm.global.totalEvents.Add(1)
	pm.global.totalDuration.Add(durationNs)
}

func (pm *PerformanceMonitor) updateMinMax(m *EventMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if min == 0 || d < min {
			if m.MinDuration.CompareAndSwap(min, d) {
				break
			}
		} else {
			break
		}
	}
	for {
		max := m.MaxDuration.Load()
		if d > max {
			if m.MaxDuration.CompareAndSwap(max, d) {
				break
			}
		} else {
			break
		}
	}
}

func (pm *PerformanceMonitor) updateLatencyBucket(m *EventMetrics, durationNs uint64) {
	us := int64(durationNs / 1_000)
	idx := len(latencyBucketBoundsUs)
	for i, bound := range latencyBucketBoundsUs {
		if us < bound {
			idx = i
			break
		}
	}
	m.latencyBuckets[idx].Add(1)
}

func (pm *PerformanceMonitor) analyzeBottlenecks() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if !pm.enabled.Load() {
			continue
		}
		bottlenecks := pm.detectBottlenecks()
		pm.bottleneckMu.Lock()
		pm.bottlenecks = bottlenecks
		pm.bottleneckMu.Unlock()
	}
}

func (pm *PerformanceMonitor) detectBottlenecks() []Bottleneck {
	bottlenecks := make([]Bottleneck, 0)

	pm.events.Range(func(key, value interface{}) bool {
		m := value.(*EventMetrics)
		count := m.Count.Load()
		if count == 0 {
			return true
		}

		avgDuration := time.Duration(m.TotalDuration.Load() / count)

		if avgDuration > StallThreshold {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "poll-stall",
				Location:   m.Name,
				Severity:   8,
				Impact:     100.0,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("%v avg dispatch blocks the poll loop for every other connection", avgDuration),
			})
		}

		errors := m.Errors.Load()
		if errors > 0 && float64(errors)/float64(count) > 0.05 {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "errors",
				Location:   m.Name,
				Severity:   10,
				Impact:     float64(errors) / float64(count) * 100,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("%.1f%% of dispatches ended in EvError", float64(errors)/float64(count)*100),
			})
		}

		return true
	})

	return bottlenecks
}

// EventCount returns how many times event has been recorded, or 0 if it
// has never been seen.
func (pm *PerformanceMonitor) EventCount(event string) uint64 {
	val, ok := pm.events.Load(event)
	if !ok {
		return 0
	}
	return val.(*EventMetrics).Count.Load()
}

// GetBottlenecks returns the most recently detected bottlenecks.
func (pm *PerformanceMonitor) GetBottlenecks() []Bottleneck {
	pm.bottleneckMu.RLock()
	defer pm.bottleneckMu.RUnlock()
	return append([]Bottleneck{}, pm.bottlenecks...)
}

// StartTrace returns a timestamp for EndTrace to measure against. It
// returns 0 (a no-op sentinel EndTrace recognizes) when the monitor is
// disabled.
func (pm *PerformanceMonitor) StartTrace() int64 {
	if !pm.enabled.Load() {
		return 0
	}
	return time.Now().UnixNano()
}

// EndTrace records the duration since startTime against event. Intended
// for timing spans Connection.Fire doesn't already cover on its own,
// e.g. work a protocol handler does across more than one dispatch.
func (pm *PerformanceMonitor) EndTrace(event string, startTime int64, isError bool) {
	if startTime == 0 {
		return
	}
	duration := time.Duration(time.Now().UnixNano() - startTime)
	pm.RecordRequest(event, duration, isError)
}
