package timing

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"improc/internal/logger"
)

type timingKey struct{}

type TimingInfo struct {
	Operation string
	StartTime time.Time
}

// Summary aggregates the samples recorded for one operation
type Summary struct {
	Count   int
	Total   time.Duration
	Average time.Duration
	Min     time.Duration
	Max     time.Duration
}

type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
	logger  logger.Logger
	enabled bool
}

// NewTracker reports completed timings at debug level on log, which may be
// nil.
func NewTracker(log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		timings: make(map[string][]time.Duration),
		logger:  log,
		enabled: true,
	}
}

// StartTiming returns a child of ctx carrying the operation start time.
func (tt *Tracker) StartTiming(ctx context.Context, operation string) context.Context {
	if !tt.isEnabled() {
		return ctx
	}
	return context.WithValue(ctx, timingKey{}, TimingInfo{
		Operation: operation,
		StartTime: time.Now(),
	})
}

// EndTiming records the time elapsed since the StartTiming that produced
// ctx and returns it. Contexts without a start time are ignored.
func (tt *Tracker) EndTiming(ctx context.Context) time.Duration {
	timingInfo, ok := ctx.Value(timingKey{}).(TimingInfo)
	if !ok {
		return 0
	}
	duration := time.Since(timingInfo.StartTime)
	tt.Record(timingInfo.Operation, duration)
	return duration
}

// Record adds one sample for operation.
func (tt *Tracker) Record(operation string, duration time.Duration) {
	if !tt.isEnabled() {
		return
	}

	tt.mu.Lock()
	tt.timings[operation] = append(tt.timings[operation], duration)
	tt.mu.Unlock()

	tt.logger.Debug("timing", "operation completed", map[string]interface{}{
		"operation": operation,
		"duration":  duration.String(),
	})
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

// Summarize returns the aggregate of operation's samples; the zero Summary
// when there are none.
func (tt *Tracker) Summarize(operation string) Summary {
	timings := tt.GetTimings(operation)
	if len(timings) == 0 {
		return Summary{}
	}
	total := lo.Sum(timings)
	return Summary{
		Count:   len(timings),
		Total:   total,
		Average: total / time.Duration(len(timings)),
		Min:     lo.Min(timings),
		Max:     lo.Max(timings),
	}
}

// SummarizeAll returns a Summary per recorded operation.
func (tt *Tracker) SummarizeAll() map[string]Summary {
	tt.mu.RLock()
	operations := lo.Keys(tt.timings)
	tt.mu.RUnlock()

	return lo.SliceToMap(operations, func(op string) (string, Summary) {
		return op, tt.Summarize(op)
	})
}

// SetEnabled switches recording on or off. Disabled trackers drop samples.
func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.enabled = enabled
}

func (tt *Tracker) isEnabled() bool {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.enabled
}
