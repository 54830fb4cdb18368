package chain

import (
	"context"
	"math/rand/v2"

	"improc/internal/processing/correlation"
	"improc/internal/processing/filters"
	"improc/internal/processing/histogram"
	"improc/internal/raster"
)

// Parameter keys understood by the steps in this file.
const (
	ParamBlurWidth   = "blur_width"
	ParamBlurHeight  = "blur_height"
	ParamKernel      = "kernel"
	ParamTarget      = "histogram_target"
	ParamFlatTarget  = "histogram_flat"
	ParamLevels      = "quantize_levels"
	ParamDither      = "quantize_dither"
	ParamSeed        = "quantize_seed"
	ParamTemplate    = "template"
	ParamMethod      = "correlation_method"
	ParamMultires    = "correlation_multires"
	ParamMatchResult = "correlation_match"
)

// BoxBlurStep runs filters.Blur.
type BoxBlurStep struct{}

func NewBoxBlurStep() *BoxBlurStep {
	return &BoxBlurStep{}
}

func (b *BoxBlurStep) Name() string {
	return "box_blur"
}

func (b *BoxBlurStep) ShouldExecute(params map[string]interface{}) bool {
	return intParam(params, ParamBlurWidth, 1) > 1 || intParam(params, ParamBlurHeight, 1) > 1
}

func (b *BoxBlurStep) Apply(ctx context.Context, input *raster.Image, params map[string]interface{}) (*raster.Image, error) {
	return filters.Blur(ctx, input, intParam(params, ParamBlurWidth, 1), intParam(params, ParamBlurHeight, 1))
}

// ConvolveStep runs filters.Convolve with the kernel image in params.
type ConvolveStep struct{}

func NewConvolveStep() *ConvolveStep {
	return &ConvolveStep{}
}

func (c *ConvolveStep) Name() string {
	return "convolve"
}

func (c *ConvolveStep) ShouldExecute(params map[string]interface{}) bool {
	kernel, ok := params[ParamKernel].(*raster.Image)
	return ok && kernel != nil
}

func (c *ConvolveStep) Apply(ctx context.Context, input *raster.Image, params map[string]interface{}) (*raster.Image, error) {
	kernel, _ := params[ParamKernel].(*raster.Image)
	return filters.Convolve(ctx, input, kernel)
}

// HistogramMatchStep runs histogram.Match against an explicit target or, when
// histogram_flat is set, a flat target sized to the input.
type HistogramMatchStep struct{}

func NewHistogramMatchStep() *HistogramMatchStep {
	return &HistogramMatchStep{}
}

func (h *HistogramMatchStep) Name() string {
	return "histogram_match"
}

func (h *HistogramMatchStep) ShouldExecute(params map[string]interface{}) bool {
	if _, ok := params[ParamTarget].(histogram.Histogram); ok {
		return true
	}
	flat, _ := params[ParamFlatTarget].(bool)
	return flat
}

func (h *HistogramMatchStep) Apply(ctx context.Context, input *raster.Image, params map[string]interface{}) (*raster.Image, error) {
	target, ok := params[ParamTarget].(histogram.Histogram)
	if !ok {
		target = histogram.Flat(input.Total())
	}
	return histogram.Match(ctx, input, target)
}

// QuantizeStep runs histogram.Quantize. A quantize_seed makes the dither
// reproducible.
type QuantizeStep struct{}

func NewQuantizeStep() *QuantizeStep {
	return &QuantizeStep{}
}

func (q *QuantizeStep) Name() string {
	return "quantize"
}

func (q *QuantizeStep) ShouldExecute(params map[string]interface{}) bool {
	_, ok := params[ParamLevels]
	return ok
}

func (q *QuantizeStep) Apply(ctx context.Context, input *raster.Image, params map[string]interface{}) (*raster.Image, error) {
	levels := intParam(params, ParamLevels, raster.GrayLevels)
	dither, _ := params[ParamDither].(bool)

	var rng histogram.RandomSource
	if _, ok := params[ParamSeed]; ok {
		seed := uint64(intParam(params, ParamSeed, 0))
		rng = rand.New(rand.NewPCG(seed, seed))
	}
	return histogram.Quantize(ctx, input, levels, dither, rng)
}

// CorrelationHighlightStep locates the template in the input and dims
// everything outside the match. The match itself is written back into params
// under correlation_match.
type CorrelationHighlightStep struct{}

func NewCorrelationHighlightStep() *CorrelationHighlightStep {
	return &CorrelationHighlightStep{}
}

func (c *CorrelationHighlightStep) Name() string {
	return "correlation_highlight"
}

func (c *CorrelationHighlightStep) ShouldExecute(params map[string]interface{}) bool {
	tmpl, ok := params[ParamTemplate].(*raster.Image)
	return ok && tmpl != nil
}

func (c *CorrelationHighlightStep) Apply(ctx context.Context, input *raster.Image, params map[string]interface{}) (*raster.Image, error) {
	tmpl, _ := params[ParamTemplate].(*raster.Image)
	method := correlation.CrossCorrelation
	if name, ok := params[ParamMethod].(string); ok {
		m, err := correlation.ParseMethod(name)
		if err != nil {
			return nil, err
		}
		method = m
	}
	multires, _ := params[ParamMultires].(bool)

	match, err := correlation.Correlate(ctx, input, tmpl, method, multires)
	if err != nil {
		return nil, err
	}
	params[ParamMatchResult] = match
	return correlation.Highlight(input, match.DX, match.DY, tmpl.Width(), tmpl.Height())
}

// DefaultSteps returns one step per kernel in the order the CLI applies them.
func DefaultSteps() []ProcessingStep {
	return []ProcessingStep{
		NewBoxBlurStep(),
		NewConvolveStep(),
		NewHistogramMatchStep(),
		NewQuantizeStep(),
		NewCorrelationHighlightStep(),
	}
}

// intParam accepts int, int64 and float64 values, the types produced by
// flag parsing and JSON decoding.
func intParam(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
