// Package correlation locates a template inside a larger image.
//
// The search slides the template over every candidate top-left offset and
// scores the overlap with one of the Method metrics. Multiresolution search
// runs the full window only on the coarsest pyramid level and refines the
// best offset in a small neighborhood on each finer level. That bounds the
// work but can miss a global optimum that the coarse level does not see.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"improc/internal/raster"
)

const (
	// MinPyramidTemplate is the smallest template side kept on a pyramid level.
	MinPyramidTemplate = 4
	// MaxPyramidLevels caps the number of pyramid levels, base included.
	MaxPyramidLevels = 8
)

var (
	ErrTemplateTooLarge   = errors.New("image is smaller than template")
	ErrUnsupportedMethod  = errors.New("unsupported correlation method")
	ErrNoComparableOffset = errors.New("no offset with non-zero image energy")
)

// Method selects the similarity metric.
type Method int

const (
	// CrossCorrelation maximizes sum(T*I) / sqrt(sum(I*I)).
	CrossCorrelation Method = iota
	// SumSquaredDifferences minimizes sum((T-I)^2) / sqrt(sum(I*I)).
	SumSquaredDifferences
	// CorrelationCoefficient maximizes the zero-mean normalized correlation.
	CorrelationCoefficient
	// PhaseCorrelation is reserved; Correlate rejects it.
	PhaseCorrelation
)

func (m Method) String() string {
	switch m {
	case CrossCorrelation:
		return "cross"
	case SumSquaredDifferences:
		return "ssd"
	case CorrelationCoefficient:
		return "coeff"
	case PhaseCorrelation:
		return "phase"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a method name as printed by String to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cross", "cross_corr", "cc":
		return CrossCorrelation, nil
	case "ssd":
		return SumSquaredDifferences, nil
	case "coeff", "corr_coeff":
		return CorrelationCoefficient, nil
	case "phase", "phase_corr":
		return PhaseCorrelation, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
	}
}

// minimizes reports whether a lower score is a better match.
func (m Method) minimizes() bool {
	return m == SumSquaredDifferences
}

// Match is the result of a correlation search.
type Match struct {
	DX, DY int
	Score  float64
	// Levels is the number of pyramid levels searched.
	Levels int
}

type window struct {
	x1, y1, x2, y2 int
}

// Correlate finds the offset of tmpl inside img. Only channel 0 of each is
// used, cast to float. Among equal scores the first offset in row-major
// order wins. Offsets whose image window has zero energy are never chosen.
//
// For CrossCorrelation and SumSquaredDifferences the returned score is
// divided by the template energy sqrt(sum(T*T)) so that scores from
// different templates are comparable.
func Correlate(ctx context.Context, img, tmpl *raster.Image, method Method, multires bool) (Match, error) {
	if err := raster.Validate(img); err != nil {
		return Match{}, err
	}
	if err := raster.Validate(tmpl); err != nil {
		return Match{}, fmt.Errorf("template: %w", err)
	}
	if tmpl.Width() > img.Width() || tmpl.Height() > img.Height() {
		return Match{}, fmt.Errorf("%w: image %dx%d, template %dx%d",
			ErrTemplateTooLarge, img.Width(), img.Height(), tmpl.Width(), tmpl.Height())
	}
	switch method {
	case CrossCorrelation, SumSquaredDifferences, CorrelationCoefficient:
	default:
		return Match{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	imgPyr, err := NewPyramid(img)
	if err != nil {
		return Match{}, err
	}
	tmplPyr, err := NewPyramid(tmpl)
	if err != nil {
		return Match{}, fmt.Errorf("template: %w", err)
	}

	top := 0
	if multires {
		top = pyramidDepth(tmpl.Width(), tmpl.Height())
	}

	var (
		dx, dy int
		best   float64
		win    window
	)
	fullWindow := true
	for n := top; n >= 0; n-- {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}
		level, err := imgPyr.Level(n)
		if err != nil {
			return Match{}, err
		}
		tl, err := tmplPyr.Level(n)
		if err != nil {
			return Match{}, err
		}
		if fullWindow {
			win = window{x2: level.Width() - tl.Width(), y2: level.Height() - tl.Height()}
		}

		var found bool
		dx, dy, best, found, err = search(ctx, level, tl, method, win)
		if err != nil {
			return Match{}, err
		}
		if !found {
			if n == 0 {
				return Match{}, ErrNoComparableOffset
			}
			fullWindow = true
			continue
		}

		if n > 0 {
			next, err := imgPyr.Level(n - 1)
			if err != nil {
				return Match{}, err
			}
			nextTmpl, err := tmplPyr.Level(n - 1)
			if err != nil {
				return Match{}, err
			}
			win = window{
				x1: max(0, 2*dx-n),
				y1: max(0, 2*dy-n),
				x2: min(next.Width()-nextTmpl.Width(), 2*dx+n),
				y2: min(next.Height()-nextTmpl.Height(), 2*dy+n),
			}
			fullWindow = false
		}
	}

	score := best
	if method != CorrelationCoefficient {
		if energy := templateEnergy(tmplPyr.levels[0]); energy > 0 {
			score /= math.Sqrt(energy)
		}
	}
	return Match{DX: dx, DY: dy, Score: score, Levels: top + 1}, nil
}

// search scores every offset in win and returns the best one.
func search(ctx context.Context, img, tmpl *raster.Image, method Method, win window) (bx, by int, best float64, found bool, err error) {
	ip, err := raster.PlaneAt[float32](img, 0)
	if err != nil {
		return 0, 0, 0, false, err
	}
	tp, err := raster.PlaneAt[float32](tmpl, 0)
	if err != nil {
		return 0, 0, 0, false, err
	}

	var tmean float64
	if method == CorrelationCoefficient {
		tmean = mean(tp.Pix)
	}

	for y := win.y1; y <= win.y2; y++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, 0, false, err
		}
		for x := win.x1; x <= win.x2; x++ {
			score, ok := scoreAt(ip, tp, x, y, method, tmean)
			if !ok {
				continue
			}
			better := !found ||
				(method.minimizes() && score < best) ||
				(!method.minimizes() && score > best)
			if better {
				bx, by, best, found = x, y, score, true
			}
		}
	}
	return bx, by, best, found, nil
}

// scoreAt computes the metric for the template placed at (x, y). It returns
// false when the denominator is zero.
func scoreAt(img, tmpl *raster.Plane[float32], x, y int, method Method, tmean float64) (float64, bool) {
	tw, th := tmpl.Width(), tmpl.Height()

	switch method {
	case CorrelationCoefficient:
		var isum float64
		for i := 0; i < th; i++ {
			row := img.Row(y + i)
			for j := 0; j < tw; j++ {
				isum += float64(row.At(x + j))
			}
		}
		imean := isum / float64(tw*th)

		var num, tvar, ivar float64
		for i := 0; i < th; i++ {
			row := img.Row(y + i)
			trow := tmpl.Row(i)
			for j := 0; j < tw; j++ {
				dt := float64(trow.At(j)) - tmean
				di := float64(row.At(x+j)) - imean
				num += dt * di
				tvar += dt * dt
				ivar += di * di
			}
		}
		den := math.Sqrt(tvar * ivar)
		if den == 0 {
			return 0, false
		}
		return num / den, true

	default:
		var sum1, sum2 float64
		for i := 0; i < th; i++ {
			row := img.Row(y + i)
			trow := tmpl.Row(i)
			for j := 0; j < tw; j++ {
				t := float64(trow.At(j))
				v := float64(row.At(x + j))
				if method == SumSquaredDifferences {
					d := t - v
					sum1 += d * d
				} else {
					sum1 += t * v
				}
				sum2 += v * v
			}
		}
		if sum2 == 0 {
			return 0, false
		}
		return sum1 / math.Sqrt(sum2), true
	}
}

func templateEnergy(tmpl *raster.Image) float64 {
	tp, err := raster.PlaneAt[float32](tmpl, 0)
	if err != nil {
		return 0
	}
	var sum float64
	for _, v := range tp.Pix {
		sum += float64(v) * float64(v)
	}
	return sum
}

func mean(pix []float32) float64 {
	var sum float64
	for _, v := range pix {
		sum += float64(v)
	}
	return sum / float64(len(pix))
}
