package raster

import (
	"fmt"
	"math"
)

// Border selects how Pad fills samples outside the source image.
type Border int

const (
	// BorderReplicate repeats the nearest edge sample.
	BorderReplicate Border = iota
	// BorderZero fills with zero.
	BorderZero
)

// Convert returns c cast to type t. Casting to the same type returns a copy.
func Convert(c Channel, t SampleType) (Channel, error) {
	dst, err := newChannel(t, c.Width(), c.Height())
	if err != nil {
		return nil, err
	}
	for i := 0; i < c.Len(); i++ {
		dst.SetFloat(i, c.Float(i))
	}
	return dst, nil
}

// CastChannel casts src channel srcCh into dst channel dstCh, replacing the
// destination channel with one of type t.
func CastChannel(src *Image, srcCh int, dst *Image, dstCh int, t SampleType) error {
	c := src.Channel(srcCh)
	if c == nil {
		return fmt.Errorf("source channel %d out of range", srcCh)
	}
	converted, err := Convert(c, t)
	if err != nil {
		return err
	}
	return dst.SetChannel(dstCh, converted)
}

// Cast returns a copy of img with every channel converted to t.
func Cast(img *Image, t SampleType) (*Image, error) {
	if err := Validate(img); err != nil {
		return nil, err
	}
	out := &Image{width: img.width, height: img.height, channels: make([]Channel, len(img.channels))}
	for i, c := range img.channels {
		converted, err := Convert(c, t)
		if err != nil {
			return nil, err
		}
		out.channels[i] = converted
	}
	return out, nil
}

// Pad returns img grown by the given per-side sample counts. Channel types
// are preserved.
func Pad(img *Image, left, top, right, bottom int, border Border) (*Image, error) {
	if err := Validate(img); err != nil {
		return nil, err
	}
	if left < 0 || top < 0 || right < 0 || bottom < 0 {
		return nil, fmt.Errorf("negative padding %d,%d,%d,%d", left, top, right, bottom)
	}

	w := img.width + left + right
	h := img.height + top + bottom
	out := &Image{width: w, height: h, channels: make([]Channel, len(img.channels))}
	for i, c := range img.channels {
		dst, err := newChannel(c.Type(), w, h)
		if err != nil {
			return nil, err
		}
		for y := 0; y < h; y++ {
			sy := y - top
			for x := 0; x < w; x++ {
				sx := x - left
				inside := sx >= 0 && sx < img.width && sy >= 0 && sy < img.height
				switch {
				case inside:
					dst.SetFloat(y*w+x, c.Float(sy*img.width+sx))
				case border == BorderReplicate:
					dst.SetFloat(y*w+x, c.Float(ClampIndex(sy, img.height)*img.width+ClampIndex(sx, img.width)))
				}
			}
		}
		out.channels[i] = dst
	}
	return out, nil
}

// Rescale linearly maps each channel's [min, max] onto [0, maxValue]. A
// constant channel maps to zero.
func Rescale(img *Image, maxValue float64) (*Image, error) {
	if err := Validate(img); err != nil {
		return nil, err
	}
	out := img.Twin()
	for i, c := range img.channels {
		lo, hi := math.Inf(1), math.Inf(-1)
		for j := 0; j < c.Len(); j++ {
			v := c.Float(j)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		dst := out.channels[i]
		if hi == lo {
			continue
		}
		scale := maxValue / (hi - lo)
		for j := 0; j < c.Len(); j++ {
			dst.SetFloat(j, (c.Float(j)-lo)*scale)
		}
	}
	return out, nil
}
