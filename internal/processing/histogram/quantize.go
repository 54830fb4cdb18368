package histogram

import (
	"context"
	"fmt"
	"math/rand/v2"

	"improc/internal/processing/parallel"
	"improc/internal/raster"
)

// RandomSource yields uniform values in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// QuantizeTable returns the lookup table that maps each gray level to the
// center of one of levels equal-width bins.
func QuantizeTable(levels int) ([raster.GrayLevels]uint8, error) {
	var lut [raster.GrayLevels]uint8
	if levels < 1 || levels > raster.GrayLevels {
		return lut, fmt.Errorf("%w: got %d", ErrInvalidLevels, levels)
	}
	scale := float64(raster.GrayLevels / levels)
	bias := scale / 2
	for i := range lut {
		v := scale*float64(int(float64(i)/scale)) + bias
		lut[i] = uint8(raster.Clip(float64(int(v)), 0, raster.MaxGray))
	}
	return lut, nil
}

// Quantize reduces every channel of img to levels gray values.
//
// With dither set, each sample is offset before lookup by a random amount
// in [0, bias) whose sign alternates from one sample to the next, starting
// negative on even rows. rng supplies the randomness; nil uses the global
// generator. Dithered channels are processed sequentially so that a seeded
// rng gives reproducible output.
func Quantize(ctx context.Context, img *raster.Image, levels int, dither bool, rng RandomSource) (*raster.Image, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	lut, err := QuantizeTable(levels)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = globalSource{}
	}
	amplitude := float64(int(float64(raster.GrayLevels/levels) / 2))

	out, err := raster.New(img.Width(), img.Height(), uint8Types(img.NumChannels())...)
	if err != nil {
		return nil, err
	}
	w := img.Width()
	for ch := 0; ch < img.NumChannels(); ch++ {
		src, err := grayChannel(img, ch)
		if err != nil {
			return nil, err
		}
		dst, err := raster.PlaneAt[uint8](out, ch)
		if err != nil {
			return nil, err
		}

		if !dither {
			err = parallel.For(ctx, img.Height(), func(start, end int) error {
				for i := start * w; i < end*w; i++ {
					dst.Pix[i] = lut[src[i]]
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			continue
		}

		for y := 0; y < img.Height(); y++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s := -1
			if y%2 == 1 {
				s = 1
			}
			for i := y * w; i < (y+1)*w; i++ {
				offset := int(rng.Float64()*amplitude) * s
				s = -s
				k := int(raster.Clip(float64(int(src[i])+offset), 0, raster.MaxGray))
				dst.Pix[i] = lut[k]
			}
		}
	}
	return out, nil
}
