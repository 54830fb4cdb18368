package pipeline

import (
	"context"
	"time"

	"improc/internal/logger"
)

// Logger is the structured logger the loader and saver report through
type Logger = logger.Logger

// TimingTracker records how long each I/O stage took
type TimingTracker interface {
	StartTiming(ctx context.Context, operation string) context.Context
	EndTiming(ctx context.Context) time.Duration
}

type nopTracker struct{}

func (nopTracker) StartTiming(ctx context.Context, _ string) context.Context { return ctx }
func (nopTracker) EndTiming(context.Context) time.Duration                   { return 0 }
