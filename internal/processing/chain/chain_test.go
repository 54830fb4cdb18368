package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"improc/internal/processing/correlation"
	"improc/internal/processing/histogram"
	"improc/internal/raster"
)

// recordingStep adds a constant to channel 0 and records its call order.
type recordingStep struct {
	name  string
	delta float64
	skip  bool
	err   error
	log   *[]string
}

func (r *recordingStep) Name() string { return r.name }

func (r *recordingStep) ShouldExecute(map[string]interface{}) bool { return !r.skip }

func (r *recordingStep) Apply(_ context.Context, input *raster.Image, _ map[string]interface{}) (*raster.Image, error) {
	*r.log = append(*r.log, r.name)
	if r.err != nil {
		return nil, r.err
	}
	out := input.Clone()
	c := out.Channel(0)
	for i := 0; i < c.Len(); i++ {
		c.SetFloat(i, c.Float(i)+r.delta)
	}
	return out, nil
}

func ramp(t *testing.T) *raster.Image {
	t.Helper()
	img, err := raster.FromUint8(4, 1, []uint8{0, 10, 20, 30})
	require.NoError(t, err)
	return img
}

func pix(t *testing.T, img *raster.Image) []uint8 {
	t.Helper()
	p, err := raster.PlaneAt[uint8](img, 0)
	require.NoError(t, err)
	return p.Pix
}

func TestProcessingChain_RunsStepsInOrder(t *testing.T) {
	var log []string
	pc := NewProcessingChain([]ProcessingStep{
		&recordingStep{name: "a", delta: 1, log: &log},
		&recordingStep{name: "skipped", delta: 100, skip: true, log: &log},
		&recordingStep{name: "b", delta: 2, log: &log},
	})

	var observed []string
	pc.Observe(func(step string, elapsed time.Duration) {
		observed = append(observed, step)
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	})

	in := ramp(t)
	out, err := pc.Execute(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, log)
	assert.Equal(t, []string{"a", "b"}, observed)
	assert.Equal(t, []uint8{3, 13, 23, 33}, pix(t, out))
	assert.Equal(t, []uint8{0, 10, 20, 30}, pix(t, in))
}

func TestProcessingChain_StopsOnError(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	pc := NewProcessingChain([]ProcessingStep{
		&recordingStep{name: "a", log: &log},
		&recordingStep{name: "bad", err: boom, log: &log},
		&recordingStep{name: "c", log: &log},
	})

	out, err := pc.Execute(context.Background(), ramp(t), nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "step bad failed")
	assert.Nil(t, out)
	assert.Equal(t, []string{"a", "bad"}, log)
}

func TestProcessingChain_NoStepsReturnsCopy(t *testing.T) {
	in := ramp(t)
	out, err := NewProcessingChain(nil).Execute(context.Background(), in, nil)
	require.NoError(t, err)
	assert.NotSame(t, in, out)
	assert.Equal(t, pix(t, in), pix(t, out))
}

func TestProcessingChain_CancelledContext(t *testing.T) {
	var log []string
	pc := NewProcessingChain([]ProcessingStep{&recordingStep{name: "a", log: &log}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pc.Execute(ctx, ramp(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log)
}

func TestDefaultSteps_SelectedByParams(t *testing.T) {
	kernel, err := raster.FromFloat32(1, 1, []float32{1})
	require.NoError(t, err)

	tests := []struct {
		name   string
		params map[string]interface{}
		want   []string
	}{
		{"nothing", map[string]interface{}{}, nil},
		{"blur", map[string]interface{}{ParamBlurWidth: 3}, []string{"box_blur"}},
		{"blur unit", map[string]interface{}{ParamBlurWidth: 1, ParamBlurHeight: 1.0}, nil},
		{"convolve", map[string]interface{}{ParamKernel: kernel}, []string{"convolve"}},
		{"flat", map[string]interface{}{ParamFlatTarget: true}, []string{"histogram_match"}},
		{"target", map[string]interface{}{ParamTarget: histogram.Flat(4)}, []string{"histogram_match"}},
		{"quantize", map[string]interface{}{ParamLevels: 4, ParamBlurHeight: int64(5)}, []string{"box_blur", "quantize"}},
		{"template", map[string]interface{}{ParamTemplate: kernel}, []string{"correlation_highlight"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, step := range DefaultSteps() {
				if step.ShouldExecute(tt.params) {
					got = append(got, step.Name())
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultSteps_BlurThenQuantize(t *testing.T) {
	img, err := raster.FromUint8(5, 1, []uint8{0, 0, 90, 0, 0})
	require.NoError(t, err)

	params := map[string]interface{}{
		ParamBlurWidth: 3,
		ParamLevels:    8,
		ParamSeed:      7,
	}
	out, err := NewProcessingChain(DefaultSteps()).Execute(context.Background(), img, params)
	require.NoError(t, err)
	// blur gives 0 30 30 30 0; eight levels of width 32 map those to 16.
	assert.Equal(t, []uint8{16, 16, 16, 16, 16}, pix(t, out))
}

func TestCorrelationHighlightStep_StoresMatch(t *testing.T) {
	img, err := raster.FromUint8(4, 2, []uint8{
		1, 2, 3, 4,
		5, 6, 90, 80,
	})
	require.NoError(t, err)
	tmpl, err := raster.FromUint8(2, 1, []uint8{90, 80})
	require.NoError(t, err)

	params := map[string]interface{}{ParamTemplate: tmpl, ParamMethod: "ssd"}
	out, err := NewCorrelationHighlightStep().Apply(context.Background(), img, params)
	require.NoError(t, err)

	match, ok := params[ParamMatchResult].(correlation.Match)
	require.True(t, ok)
	assert.Equal(t, 2, match.DX)
	assert.Equal(t, 1, match.DY)
	assert.Equal(t, []uint8{0, 1, 1, 2, 2, 3, 90, 80}, pix(t, out))
}

func TestCorrelationHighlightStep_BadMethod(t *testing.T) {
	tmpl, err := raster.FromUint8(1, 1, []uint8{1})
	require.NoError(t, err)

	params := map[string]interface{}{ParamTemplate: tmpl, ParamMethod: "fourier"}
	_, err = NewCorrelationHighlightStep().Apply(context.Background(), ramp(t), params)
	assert.ErrorIs(t, err, correlation.ErrUnsupportedMethod)
}
