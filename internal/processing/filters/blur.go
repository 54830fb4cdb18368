package filters

import (
	"context"
	"fmt"

	"improc/internal/processing/parallel"
	"improc/internal/raster"
)

// Blur applies a w x h box filter (unweighted mean) with edge replication.
// The filter is separable: a horizontal pass of length w into a scratch
// plane, then a vertical pass of length h into the output. Integer channels
// keep the truncated mean.
//
// An even size k averages the k/2 samples before each position, the
// position itself and the k/2-1 samples after it, so the window leans left
// (or up). Configured filters only accept odd sizes.
//
// Sizes of one or less disable the pass in that direction. When both
// directions are disabled, or both sizes exceed the image, the result is a
// copy of img.
func Blur(ctx context.Context, img *raster.Image, w, h int) (*raster.Image, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	if (w <= 1 && h <= 1) || (w > img.Width() && h > img.Height()) {
		return img.Clone(), nil
	}

	out := img.Twin()
	for ch := 0; ch < img.NumChannels(); ch++ {
		var err error
		switch img.Channel(ch).Type() {
		case raster.Uint8:
			err = blurChannel[uint8](ctx, img, out, ch, w, h)
		case raster.Int32:
			err = blurChannel[int32](ctx, img, out, ch, w, h)
		case raster.Float32:
			err = blurChannel[float32](ctx, img, out, ch, w, h)
		default:
			err = fmt.Errorf("unsupported sample type %s", img.Channel(ch).Type())
		}
		if err != nil {
			return nil, fmt.Errorf("blur channel %d: %w", ch, err)
		}
	}
	return out, nil
}

func blurChannel[T raster.Sample](ctx context.Context, in, out *raster.Image, ch, w, h int) error {
	src, err := raster.PlaneAt[T](in, ch)
	if err != nil {
		return err
	}
	dst, err := raster.PlaneAt[T](out, ch)
	if err != nil {
		return err
	}
	width, height := src.Width(), src.Height()

	tmp := raster.NewPlane[T](width, height)
	if w > 1 {
		err := parallel.For(ctx, height, func(start, end int) error {
			line := make([]T, paddedLen(width, w))
			for y := start; y < end; y++ {
				blur1D(src.Row(y), tmp.Row(y), w, line)
			}
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		copy(tmp.Pix, src.Pix)
	}

	if h <= 1 {
		copy(dst.Pix, tmp.Pix)
		return nil
	}
	return parallel.For(ctx, width, func(start, end int) error {
		line := make([]T, paddedLen(height, h))
		for x := start; x < end; x++ {
			blur1D(tmp.Col(x), dst.Col(x), h, line)
		}
		return nil
	})
}

// paddedLen is the scratch line length for a 1-D pass of length k over n
// samples: k/2 replicated samples on each side.
func paddedLen(n, k int) int {
	return n + 2*(k/2)
}

// blur1D writes the k-sample moving average of in to out. buf must hold at
// least paddedLen(in.Len(), k) samples.
func blur1D[T raster.Sample](in, out raster.View[T], k int, buf []T) {
	n := in.Len()
	half := k / 2
	buf = buf[:paddedLen(n, k)]

	first, last := in.At(0), in.At(n-1)
	for i := 0; i < half; i++ {
		buf[i] = first
		buf[half+n+i] = last
	}
	for i := 0; i < n; i++ {
		buf[half+i] = in.At(i)
	}

	for i := 0; i < n; i++ {
		var sum float64
		for _, v := range buf[i : i+k] {
			sum += float64(v)
		}
		out.Set(i, T(sum/float64(k)))
	}
}
