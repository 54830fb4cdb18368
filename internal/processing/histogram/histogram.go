// Package histogram remaps gray levels through monotonic lookup tables:
// matching a target histogram and uniform quantization with optional dither.
//
// Every remap works per channel on 8-bit samples. Channels of a wider type
// are cast to uint8 (clipped and truncated) first, so the output image is
// always uint8 with the input's geometry and channel count. Callers holding
// 16-bit or float data rescale it onto [0, 255] beforehand; see
// raster.Rescale.
package histogram

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"improc/internal/raster"
)

var (
	ErrInvalidLevels  = errors.New("quantization levels must be in [1, 256]")
	ErrEmptyHistogram = errors.New("target histogram has no samples")
	ErrInvalidTable   = errors.New("histogram table is malformed")
)

// Histogram maps a gray level to its sample count.
type Histogram [raster.GrayLevels]int

// Total returns the number of samples counted.
func (h *Histogram) Total() int {
	return lo.Sum(h[:])
}

// Compute counts the gray levels of channel ch.
func Compute(img *raster.Image, ch int) (Histogram, error) {
	var h Histogram
	if err := raster.Validate(img); err != nil {
		return h, err
	}
	pix, err := grayChannel(img, ch)
	if err != nil {
		return h, err
	}
	for _, v := range pix {
		h[v]++
	}
	return h, nil
}

// FromTable reads a histogram stored as the first 256 samples of an Int32
// channel 0, in row-major order.
func FromTable(img *raster.Image) (Histogram, error) {
	var h Histogram
	if err := raster.Validate(img); err != nil {
		return h, err
	}
	p, err := raster.PlaneAt[int32](img, 0)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if len(p.Pix) < raster.GrayLevels {
		return h, fmt.Errorf("%w: %d entries, need %d", ErrInvalidTable, len(p.Pix), raster.GrayLevels)
	}
	for i := range h {
		if p.Pix[i] < 0 {
			return h, fmt.Errorf("%w: negative count %d at level %d", ErrInvalidTable, p.Pix[i], i)
		}
		h[i] = int(p.Pix[i])
	}
	return h, nil
}

// Flat returns a uniform histogram holding total samples. The remainder of
// total/256 goes to the lowest levels.
func Flat(total int) Histogram {
	var h Histogram
	if total <= 0 {
		return h
	}
	base, extra := total/raster.GrayLevels, total%raster.GrayLevels
	for i := range h {
		h[i] = base
		if i < extra {
			h[i]++
		}
	}
	return h
}

// grayChannel returns channel ch as uint8 samples, casting when needed. The
// returned slice may alias the image and must not be written.
func grayChannel(img *raster.Image, ch int) ([]uint8, error) {
	c := img.Channel(ch)
	if c == nil {
		return nil, fmt.Errorf("%w: no channel %d", raster.ErrUnusableImage, ch)
	}
	if c.Type() != raster.Uint8 {
		conv, err := raster.Convert(c, raster.Uint8)
		if err != nil {
			return nil, err
		}
		c = conv
	}
	return c.(*raster.Plane[uint8]).Pix, nil
}
