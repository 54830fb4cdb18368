package histogram

import (
	"context"

	"improc/internal/raster"
)

// Match remaps every channel of img so that its histogram approximates
// target. The mapping is monotonic in the input gray level. target is
// rescaled to the image's sample count on a private copy.
//
// Pixels are assigned in row-major order: each input level owns an interval
// [left, right] of output levels and fills them lowest first, moving on once
// an output level holds its share of the target. Two images with the same
// histogram but different pixel order can therefore map differently.
func Match(ctx context.Context, img *raster.Image, target Histogram) (*raster.Image, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	targetTotal := target.Total()
	if targetTotal <= 0 {
		return nil, ErrEmptyHistogram
	}

	total := img.Total()
	h2 := target
	scale := float64(total) / float64(targetTotal)
	for i := range h2 {
		h2[i] = int(float64(h2[i]) * scale)
	}

	out, err := raster.New(img.Width(), img.Height(), uint8Types(img.NumChannels())...)
	if err != nil {
		return nil, err
	}
	for ch := 0; ch < img.NumChannels(); ch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := grayChannel(img, ch)
		if err != nil {
			return nil, err
		}
		dst, err := raster.PlaneAt[uint8](out, ch)
		if err != nil {
			return nil, err
		}
		var h1 Histogram
		for _, v := range src {
			h1[v]++
		}
		matchChannel(src, dst.Pix, &h1, &h2)
	}
	return out, nil
}

func matchChannel(src, dst []uint8, h1, h2 *Histogram) {
	const top = raster.GrayLevels - 1
	var left, right [raster.GrayLevels]int

	r, hsum := 0, 0
	for i := 0; i < raster.GrayLevels; i++ {
		// Skip output levels already filled by lower input levels.
		for hsum >= h2[r] && r < top {
			hsum -= h2[r]
			r++
		}
		left[i] = r
		hsum += h1[i]
		for hsum > h2[r] && r < top {
			hsum -= h2[r]
			r++
		}
		right[i] = r
	}

	var used Histogram
	for i, v := range src {
		p := left[v]
		if used[p] >= h2[p] {
			p = min(p+1, right[v])
			left[v] = p
		}
		dst[i] = uint8(p)
		used[p]++
	}
}

func uint8Types(n int) []raster.SampleType {
	types := make([]raster.SampleType, n)
	for i := range types {
		types[i] = raster.Uint8
	}
	return types
}
