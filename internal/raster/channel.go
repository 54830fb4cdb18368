package raster

import (
	"fmt"
	"math"
)

// Sample is the set of supported channel storage types.
type Sample interface {
	uint8 | int32 | float32
}

// Channel is one typed sample buffer of an Image. Float and SetFloat give
// type-agnostic access; SetFloat casts with the same rules as Convert.
type Channel interface {
	Type() SampleType
	Width() int
	Height() int
	Len() int
	Float(i int) float64
	SetFloat(i int, v float64)
	// Clone returns a deep copy.
	Clone() Channel
	// Empty returns a zeroed channel of the same type and geometry.
	Empty() Channel
}

// Plane is a channel stored as a row-major slice of T.
type Plane[T Sample] struct {
	Pix    []T
	width  int
	height int
}

// NewPlane allocates a zeroed width x height plane.
func NewPlane[T Sample](width, height int) *Plane[T] {
	return &Plane[T]{Pix: make([]T, width*height), width: width, height: height}
}

func (p *Plane[T]) Type() SampleType { return sampleTypeOf[T]() }
func (p *Plane[T]) Width() int       { return p.width }
func (p *Plane[T]) Height() int      { return p.height }
func (p *Plane[T]) Len() int         { return len(p.Pix) }

func (p *Plane[T]) Float(i int) float64 { return float64(p.Pix[i]) }

func (p *Plane[T]) SetFloat(i int, v float64) { p.Pix[i] = castFloat[T](v) }

func (p *Plane[T]) Clone() Channel {
	c := NewPlane[T](p.width, p.height)
	copy(c.Pix, p.Pix)
	return c
}

func (p *Plane[T]) Empty() Channel { return NewPlane[T](p.width, p.height) }

// At returns the sample at column x, row y.
func (p *Plane[T]) At(x, y int) T {
	return p.Pix[p.offset(x, y)]
}

// Set stores v at column x, row y.
func (p *Plane[T]) Set(x, y int, v T) {
	p.Pix[p.offset(x, y)] = v
}

func (p *Plane[T]) offset(x, y int) int {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		panic(fmt.Sprintf("raster: (%d,%d) outside %dx%d plane", x, y, p.width, p.height))
	}
	return y*p.width + x
}

// Row returns a view over row y, stepping by one sample.
func (p *Plane[T]) Row(y int) View[T] {
	return NewView(p.Pix, p.offset(0, y), 1, p.width)
}

// Col returns a view over column x, stepping by the plane width.
func (p *Plane[T]) Col(x int) View[T] {
	return NewView(p.Pix, p.offset(x, 0), p.width, p.height)
}

func newChannel(t SampleType, width, height int) (Channel, error) {
	switch t {
	case Uint8:
		return NewPlane[uint8](width, height), nil
	case Int32:
		return NewPlane[int32](width, height), nil
	case Float32:
		return NewPlane[float32](width, height), nil
	default:
		return nil, fmt.Errorf("unsupported sample type %s", t)
	}
}

func sampleTypeOf[T Sample]() SampleType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case int32:
		return Int32
	default:
		return Float32
	}
}

// castFloat converts v to T: integer targets are clipped to their range and
// truncated toward zero, float targets are converted directly.
func castFloat[T Sample](v float64) T {
	switch sampleTypeOf[T]() {
	case Uint8:
		return T(Clip(v, 0, MaxGray))
	case Int32:
		return T(Clip(v, math.MinInt32, math.MaxInt32))
	default:
		return T(v)
	}
}

// Clip limits v to [lo, hi]. NaN maps to lo.
func Clip(v, lo, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v >= lo {
		return v
	}
	return lo
}

// ClampIndex returns index clamped to [0, size-1]. It is the coordinate rule
// for replicate-edge borders.
func ClampIndex(index, size int) int {
	if index < 0 {
		return 0
	}
	if index >= size {
		return size - 1
	}
	return index
}
