package correlation

import (
	"fmt"

	"improc/internal/raster"
)

// Pyramid is a sequence of single-channel float images where level 0 is the
// base and each next level is a 2x2 block average of the previous one.
// Levels are built on first use.
type Pyramid struct {
	levels []*raster.Image
}

// NewPyramid starts a pyramid whose base is channel 0 of img cast to float.
func NewPyramid(img *raster.Image) (*Pyramid, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	base, err := raster.New(img.Width(), img.Height(), raster.Float32)
	if err != nil {
		return nil, err
	}
	if err := raster.CastChannel(img, 0, base, 0, raster.Float32); err != nil {
		return nil, err
	}
	return &Pyramid{levels: []*raster.Image{base}}, nil
}

// Level returns level n, downsampling as many times as needed to reach it.
func (p *Pyramid) Level(n int) (*raster.Image, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative pyramid level %d", n)
	}
	for len(p.levels) <= n {
		next, err := halve(p.levels[len(p.levels)-1])
		if err != nil {
			return nil, fmt.Errorf("pyramid level %d: %w", len(p.levels), err)
		}
		p.levels = append(p.levels, next)
	}
	return p.levels[n], nil
}

func halve(img *raster.Image) (*raster.Image, error) {
	src, err := raster.PlaneAt[float32](img, 0)
	if err != nil {
		return nil, err
	}
	w, h := src.Width()/2, src.Height()/2
	out, err := raster.New(w, h, raster.Float32)
	if err != nil {
		return nil, err
	}
	dst, err := raster.PlaneAt[float32](out, 0)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		top, bottom := src.Row(2*y), src.Row(2*y+1)
		row := dst.Row(y)
		for x := 0; x < w; x++ {
			sum := top.At(2*x) + top.At(2*x+1) + bottom.At(2*x) + bottom.At(2*x+1)
			row.Set(x, sum*0.25)
		}
	}
	return out, nil
}

// pyramidDepth returns the index of the coarsest level for a template of
// tw x th: halving continues while the template keeps at least
// MinPyramidTemplate samples per side.
func pyramidDepth(tw, th int) int {
	n := 0
	for n+1 < MaxPyramidLevels && tw>>(n+1) >= MinPyramidTemplate && th>>(n+1) >= MinPyramidTemplate {
		n++
	}
	return n
}
