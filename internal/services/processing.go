package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"improc/internal/debug/timing"
	"improc/internal/logger"
	"improc/internal/models"
	"improc/internal/processing/chain"
	"improc/internal/processing/correlation"
	"improc/internal/processing/filters"
	"improc/internal/processing/histogram"
	"improc/internal/processing/parallel"
	"improc/internal/raster"
)

var ErrServiceClosed = errors.New("processing service is shut down")

const component = "processing"

// ProcessingService runs the image kernels with bounded concurrency and
// records every successful result in the image repository
type ProcessingService struct {
	imageRepo  *models.ImageRepository
	configRepo *models.ProcessingConfiguration
	stateRepo  *models.ProcessingStateRepository
	tracker    *timing.Tracker
	logger     logger.Logger
	workerPool chan struct{}
	closed     bool
	failed     int
	mu         sync.RWMutex
}

func NewProcessingService(
	imageRepo *models.ImageRepository,
	configRepo *models.ProcessingConfiguration,
	stateRepo *models.ProcessingStateRepository,
	tracker *timing.Tracker,
	log logger.Logger,
) *ProcessingService {
	if log == nil {
		log = logger.Nop()
	}
	if tracker == nil {
		tracker = timing.NewTracker(log)
	}

	workers := configRepo.GetPerformanceSettings().MaxWorkers
	return &ProcessingService{
		imageRepo:  imageRepo,
		configRepo: configRepo,
		stateRepo:  stateRepo,
		tracker:    tracker,
		logger:     log,
		workerPool: newWorkerPool(workers),
	}
}

func newWorkerPool(count int) chan struct{} {
	count = max(count, 1)
	pool := make(chan struct{}, count)
	for i := 0; i < count; i++ {
		pool <- struct{}{}
	}
	return pool
}

// kernelFunc produces the output image and, for correlation, the match.
type kernelFunc func(ctx context.Context) (*raster.Image, *correlation.Match, error)

func (ps *ProcessingService) run(ctx context.Context, operation string, params map[string]interface{}, fn kernelFunc) (*models.ProcessingResult, error) {
	ps.mu.RLock()
	closed, pool := ps.closed, ps.workerPool
	ps.mu.RUnlock()
	if closed {
		return nil, ErrServiceClosed
	}

	select {
	case <-pool:
		defer func() { pool <- struct{}{} }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	perf := ps.configRepo.GetPerformanceSettings()
	if !perf.EnableParallelization {
		ctx = parallel.WithWorkers(ctx, 1)
	}

	ps.stateRepo.StartProcessing(operation)
	ps.logger.Debug(component, "operation started", map[string]interface{}{"operation": operation})

	ctx = ps.tracker.StartTiming(ctx, operation)
	out, match, err := fn(ctx)
	elapsed := ps.tracker.EndTiming(ctx)
	if err != nil {
		ps.stateRepo.CancelProcessing()
		ps.mu.Lock()
		ps.failed++
		ps.mu.Unlock()
		ps.logger.Error(component, err, map[string]interface{}{"operation": operation})
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	ps.stateRepo.CompleteProcessing()

	data := models.NewImageData(out, operation, "raw")
	data.ProcessTime = elapsed
	result := models.ProcessingResult{
		ProcessedImage: data,
		Operation:      operation,
		Parameters:     params,
		Match:          match,
		ProcessTime:    elapsed,
	}
	result.ID = ps.imageRepo.AddProcessedImage(result)

	fields := map[string]interface{}{
		"operation": operation,
		"duration":  elapsed.String(),
		"width":     out.Width(),
		"height":    out.Height(),
	}
	if match != nil {
		fields["dx"], fields["dy"], fields["score"] = match.DX, match.DY, match.Score
	}
	ps.logger.Info(component, "operation completed", fields)
	return &result, nil
}

func (ps *ProcessingService) Blur(ctx context.Context, img *raster.Image, width, height int) (*models.ProcessingResult, error) {
	params := map[string]interface{}{chain.ParamBlurWidth: width, chain.ParamBlurHeight: height}
	return ps.run(ctx, models.FilterBlur, params, func(ctx context.Context) (*raster.Image, *correlation.Match, error) {
		out, err := filters.Blur(ctx, img, width, height)
		return out, nil, err
	})
}

func (ps *ProcessingService) Convolve(ctx context.Context, img, kernel *raster.Image) (*models.ProcessingResult, error) {
	params := map[string]interface{}{chain.ParamKernel: kernel}
	return ps.run(ctx, models.FilterConvolve, params, func(ctx context.Context) (*raster.Image, *correlation.Match, error) {
		out, err := filters.Convolve(ctx, img, kernel)
		return out, nil, err
	})
}

// Correlate locates tmpl in img. The result image is img with everything
// outside the match dimmed; the offset is in ProcessingResult.Match.
func (ps *ProcessingService) Correlate(ctx context.Context, img, tmpl *raster.Image, method correlation.Method, multires bool) (*models.ProcessingResult, error) {
	params := map[string]interface{}{
		chain.ParamTemplate: tmpl,
		chain.ParamMethod:   method.String(),
		chain.ParamMultires: multires,
	}
	return ps.run(ctx, models.FilterCorrelate, params, func(ctx context.Context) (*raster.Image, *correlation.Match, error) {
		match, err := correlation.Correlate(ctx, img, tmpl, method, multires)
		if err != nil {
			return nil, nil, err
		}
		out, err := correlation.Highlight(img, match.DX, match.DY, tmpl.Width(), tmpl.Height())
		return out, &match, err
	})
}

func (ps *ProcessingService) MatchHistogram(ctx context.Context, img *raster.Image, target histogram.Histogram) (*models.ProcessingResult, error) {
	params := map[string]interface{}{chain.ParamTarget: target}
	return ps.run(ctx, models.FilterHistoMatch, params, func(ctx context.Context) (*raster.Image, *correlation.Match, error) {
		out, err := histogram.Match(ctx, img, target)
		return out, nil, err
	})
}

// Quantize reduces img to levels gray values. rng may be nil.
func (ps *ProcessingService) Quantize(ctx context.Context, img *raster.Image, levels int, dither bool, rng histogram.RandomSource) (*models.ProcessingResult, error) {
	params := map[string]interface{}{chain.ParamLevels: levels, chain.ParamDither: dither}
	return ps.run(ctx, models.FilterQuantize, params, func(ctx context.Context) (*raster.Image, *correlation.Match, error) {
		out, err := histogram.Quantize(ctx, img, levels, dither, rng)
		return out, nil, err
	})
}

// Apply runs the named filter through the step chain with its configured
// parameters, overridden by overrides.
func (ps *ProcessingService) Apply(ctx context.Context, img *raster.Image, filter string, overrides map[string]interface{}) (*models.ProcessingResult, error) {
	params, err := ps.configRepo.Resolve(filter, overrides)
	if err != nil {
		return nil, err
	}
	if filter == models.FilterConvolve && !chain.NewConvolveStep().ShouldExecute(params) {
		return nil, models.NewValidationError(chain.ParamKernel, nil, "a kernel image is required")
	}
	if filter == models.FilterCorrelate && !chain.NewCorrelationHighlightStep().ShouldExecute(params) {
		return nil, models.NewValidationError(chain.ParamTemplate, nil, "a template image is required")
	}

	pc := chain.NewProcessingChain(stepsFor(filter))
	pc.Observe(func(step string, elapsed time.Duration) {
		ps.tracker.Record("step:"+step, elapsed)
		ps.stateRepo.UpdateStage(step)
	})
	return ps.run(ctx, filter, params, func(ctx context.Context) (*raster.Image, *correlation.Match, error) {
		out, err := pc.Execute(ctx, img, params)
		if err != nil {
			return nil, nil, err
		}
		var match *correlation.Match
		if m, ok := params[chain.ParamMatchResult].(correlation.Match); ok {
			match = &m
		}
		return out, match, nil
	})
}

func stepsFor(filter string) []chain.ProcessingStep {
	switch filter {
	case models.FilterBlur:
		return []chain.ProcessingStep{chain.NewBoxBlurStep()}
	case models.FilterConvolve:
		return []chain.ProcessingStep{chain.NewConvolveStep()}
	case models.FilterCorrelate:
		return []chain.ProcessingStep{chain.NewCorrelationHighlightStep()}
	case models.FilterHistoMatch:
		return []chain.ProcessingStep{chain.NewHistogramMatchStep()}
	case models.FilterQuantize:
		return []chain.ProcessingStep{chain.NewQuantizeStep()}
	default:
		return chain.DefaultSteps()
	}
}

// ProcessingStats summarizes the service's work so far
type ProcessingStats struct {
	TotalProcessed     int
	FailedRuns         int
	AverageTime        time.Duration
	LastProcessingTime time.Time
	Workers            int
	Timings            map[string]timing.Summary
}

func (ps *ProcessingService) Stats() ProcessingStats {
	history := ps.imageRepo.GetProcessingHistory()
	repoStats := ps.imageRepo.GetImageStats()

	ps.mu.RLock()
	stats := ProcessingStats{
		TotalProcessed: len(history),
		FailedRuns:     ps.failed,
		AverageTime:    repoStats.AverageProcessTime,
		Workers:        cap(ps.workerPool),
		Timings:        ps.tracker.SummarizeAll(),
	}
	ps.mu.RUnlock()

	if len(history) > 0 {
		stats.LastProcessingTime = history[len(history)-1].CompletedAt
	}
	return stats
}

func (ps *ProcessingService) History() []models.ProcessingResult {
	return ps.imageRepo.GetProcessingHistory()
}

// Shutdown rejects further operations and clears the repository.
func (ps *ProcessingService) Shutdown() {
	ps.mu.Lock()
	ps.closed = true
	ps.mu.Unlock()

	ps.stateRepo.CancelProcessing()
	ps.imageRepo.ClearAll()
	ps.logger.Info(component, "processing service shut down", nil)
}
