package filters

import (
	"context"
	"errors"
	"fmt"

	"improc/internal/processing/parallel"
	"improc/internal/raster"
)

// ErrEvenKernel is returned when a convolution kernel has no center pixel.
var ErrEvenKernel = errors.New("kernel size must be odd")

// Convolve correlates img with the weights in channel 0 of kernel. The input
// is padded by replicating its border so the output keeps the input size.
// Weights are used as given; no normalization is applied.
//
// Uint8 channels accumulate in float and clip to [0, MaxGray]. Wider
// channels are convolved on a float copy and cast back to their own type.
func Convolve(ctx context.Context, img, kernel *raster.Image) (*raster.Image, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	if err := raster.Validate(kernel); err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	ww, hh := kernel.Width(), kernel.Height()
	if ww%2 == 0 || hh%2 == 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrEvenKernel, ww, hh)
	}

	wc, err := raster.Convert(kernel.Channel(0), raster.Float32)
	if err != nil {
		return nil, err
	}
	weights := wc.(*raster.Plane[float32])

	padded, err := raster.Pad(img, ww/2, hh/2, ww/2, hh/2, raster.BorderReplicate)
	if err != nil {
		return nil, fmt.Errorf("pad input: %w", err)
	}

	w, h := img.Width(), img.Height()
	out := img.Twin()
	for ch := 0; ch < padded.NumChannels(); ch++ {
		c := padded.Channel(ch)
		if c.Type() == raster.Uint8 {
			src, err := raster.PlaneAt[uint8](padded, ch)
			if err != nil {
				return nil, err
			}
			dst, err := raster.PlaneAt[uint8](out, ch)
			if err != nil {
				return nil, err
			}
			err = convolvePlane(ctx, src, weights, w, h, func(i int, sum float32) {
				dst.Pix[i] = uint8(raster.Clip(float64(sum), 0, raster.MaxGray))
			})
			if err != nil {
				return nil, err
			}
			continue
		}

		fc, err := raster.Convert(c, raster.Float32)
		if err != nil {
			return nil, err
		}
		result := raster.NewPlane[float32](w, h)
		err = convolvePlane(ctx, fc.(*raster.Plane[float32]), weights, w, h, func(i int, sum float32) {
			result.Pix[i] = sum
		})
		if err != nil {
			return nil, err
		}
		back, err := raster.Convert(result, c.Type())
		if err != nil {
			return nil, err
		}
		if err := out.SetChannel(ch, back); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// convolvePlane slides weights over the padded src and hands each w x h
// output sum to store, indexed row-major in output coordinates.
func convolvePlane[T raster.Sample](ctx context.Context, src *raster.Plane[T], weights *raster.Plane[float32], w, h int, store func(i int, sum float32)) error {
	ww, hh := weights.Width(), weights.Height()
	return parallel.For(ctx, h, func(start, end int) error {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				var sum float32
				for i := 0; i < hh; i++ {
					in := src.Row(y + i)
					wt := weights.Row(i)
					for j := 0; j < ww; j++ {
						sum += wt.At(j) * float32(in.At(x+j))
					}
				}
				store(y*w+x, sum)
			}
		}
		return nil
	})
}
