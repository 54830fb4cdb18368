package raster

import "fmt"

// View is a strided window over a channel buffer: element i lives at
// start + i*step. All indices are checked against the view length, and the
// constructor checks the whole span against the buffer.
type View[T Sample] struct {
	data  []T
	start int
	step  int
	n     int
}

// NewView returns a view of n elements of data beginning at start.
func NewView[T Sample](data []T, start, step, n int) View[T] {
	if n < 0 || step < 1 || start < 0 || (n > 0 && start+(n-1)*step >= len(data)) {
		panic(fmt.Sprintf("raster: view start=%d step=%d n=%d exceeds buffer of %d", start, step, n, len(data)))
	}
	return View[T]{data: data, start: start, step: step, n: n}
}

func (v View[T]) Len() int { return v.n }

func (v View[T]) At(i int) T {
	return v.data[v.index(i)]
}

func (v View[T]) Set(i int, x T) {
	v.data[v.index(i)] = x
}

func (v View[T]) index(i int) int {
	if i < 0 || i >= v.n {
		panic(fmt.Sprintf("raster: view index %d out of range [0,%d)", i, v.n))
	}
	return v.start + i*v.step
}
