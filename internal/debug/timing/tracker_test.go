package timing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_RecordAndSummarize(t *testing.T) {
	tt := NewTracker(nil)
	tt.Record("blur", 2*time.Millisecond)
	tt.Record("blur", 6*time.Millisecond)
	tt.Record("blur", 4*time.Millisecond)

	s := tt.Summarize("blur")
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 12*time.Millisecond, s.Total)
	assert.Equal(t, 4*time.Millisecond, s.Average)
	assert.Equal(t, 2*time.Millisecond, s.Min)
	assert.Equal(t, 6*time.Millisecond, s.Max)

	assert.Equal(t, Summary{}, tt.Summarize("quantize"))
	assert.Len(t, tt.SummarizeAll(), 1)
}

func TestTracker_StartEnd(t *testing.T) {
	tt := NewTracker(nil)

	ctx := tt.StartTiming(context.Background(), "convolve")
	d := tt.EndTiming(ctx)
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Len(t, tt.GetTimings("convolve"), 1)

	assert.Zero(t, tt.EndTiming(context.Background()))
}

func TestTracker_KeepsParentContext(t *testing.T) {
	tt := NewTracker(nil)
	parent, cancel := context.WithCancel(context.Background())
	ctx := tt.StartTiming(parent, "x")
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestTracker_Disabled(t *testing.T) {
	tt := NewTracker(nil)
	tt.SetEnabled(false)
	tt.Record("a", time.Second)
	tt.EndTiming(tt.StartTiming(context.Background(), "b"))
	assert.Empty(t, tt.SummarizeAll())

	tt.SetEnabled(true)
	tt.Record("a", time.Second)
	assert.Len(t, tt.GetTimings("a"), 1)
}
