// Package raster holds the multi-channel image model shared by the filter
// kernels: independently typed channel planes addressed by row-major offset,
// with bounds-checked stride views for row and column traversal.
package raster

import (
	"errors"
	"fmt"
)

const (
	// GrayLevels is the number of distinct 8-bit sample values.
	GrayLevels = 256
	// MaxGray is the largest 8-bit sample value.
	MaxGray = GrayLevels - 1
)

// ErrUnusableImage is returned for nil, empty, or inconsistent images.
var ErrUnusableImage = errors.New("unusable image")

// SampleType tags the storage type of a channel. The order is significant:
// a larger value is a wider type.
type SampleType int

const (
	Uint8 SampleType = iota
	Int32
	Float32
)

func (t SampleType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("SampleType(%d)", int(t))
	}
}

// Image is a width x height grid with one or more channels. Each channel is
// its own linear buffer of width*height samples.
type Image struct {
	width    int
	height   int
	channels []Channel
}

// New allocates a zeroed image with one channel per listed type.
func New(width, height int, types ...SampleType) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrUnusableImage, width, height)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no channels", ErrUnusableImage)
	}

	img := &Image{width: width, height: height, channels: make([]Channel, len(types))}
	for i, t := range types {
		c, err := newChannel(t, width, height)
		if err != nil {
			return nil, err
		}
		img.channels[i] = c
	}
	return img, nil
}

// FromUint8 wraps copies of the given planes as an 8-bit image.
func FromUint8(width, height int, planes ...[]uint8) (*Image, error) {
	return fromPlanes(width, height, planes)
}

// FromFloat32 wraps copies of the given planes as a float image.
func FromFloat32(width, height int, planes ...[]float32) (*Image, error) {
	return fromPlanes(width, height, planes)
}

// FromInt32 wraps copies of the given planes as a 32-bit integer image.
func FromInt32(width, height int, planes ...[]int32) (*Image, error) {
	return fromPlanes(width, height, planes)
}

func fromPlanes[T Sample](width, height int, planes [][]T) (*Image, error) {
	if width <= 0 || height <= 0 || len(planes) == 0 {
		return nil, fmt.Errorf("%w: invalid geometry %dx%d with %d channels",
			ErrUnusableImage, width, height, len(planes))
	}
	img := &Image{width: width, height: height, channels: make([]Channel, len(planes))}
	for i, pix := range planes {
		if len(pix) != width*height {
			return nil, fmt.Errorf("%w: channel %d has %d samples, want %d",
				ErrUnusableImage, i, len(pix), width*height)
		}
		p := NewPlane[T](width, height)
		copy(p.Pix, pix)
		img.channels[i] = p
	}
	return img, nil
}

// Validate reports whether img can be handed to a kernel.
func Validate(img *Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrUnusableImage)
	}
	if img.width <= 0 || img.height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrUnusableImage, img.width, img.height)
	}
	if len(img.channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrUnusableImage)
	}
	for i, c := range img.channels {
		if c == nil || c.Len() != img.width*img.height {
			return fmt.Errorf("%w: channel %d not allocated", ErrUnusableImage, i)
		}
	}
	return nil
}

func (img *Image) Width() int  { return img.width }
func (img *Image) Height() int { return img.height }

// Total returns the number of samples per channel.
func (img *Image) Total() int { return img.width * img.height }

func (img *Image) NumChannels() int { return len(img.channels) }

// Channel returns channel ch, or nil when out of range.
func (img *Image) Channel(ch int) Channel {
	if ch < 0 || ch >= len(img.channels) {
		return nil
	}
	return img.channels[ch]
}

// SetChannel replaces channel ch. The channel must match the image geometry.
func (img *Image) SetChannel(ch int, c Channel) error {
	if ch < 0 || ch >= len(img.channels) {
		return fmt.Errorf("channel %d out of range for %d channels", ch, len(img.channels))
	}
	if c == nil || c.Width() != img.width || c.Height() != img.height {
		return fmt.Errorf("%w: channel geometry does not match %dx%d", ErrUnusableImage, img.width, img.height)
	}
	img.channels[ch] = c
	return nil
}

// MaxType returns the widest sample type across all channels.
func (img *Image) MaxType() SampleType {
	maxType := Uint8
	for _, c := range img.channels {
		if c.Type() > maxType {
			maxType = c.Type()
		}
	}
	return maxType
}

// Twin returns a zeroed image with the same geometry and channel types.
func (img *Image) Twin() *Image {
	twin := &Image{width: img.width, height: img.height, channels: make([]Channel, len(img.channels))}
	for i, c := range img.channels {
		twin.channels[i] = c.Empty()
	}
	return twin
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	clone := &Image{width: img.width, height: img.height, channels: make([]Channel, len(img.channels))}
	for i, c := range img.channels {
		clone.channels[i] = c.Clone()
	}
	return clone
}

// PlaneAt returns channel ch as a typed plane.
func PlaneAt[T Sample](img *Image, ch int) (*Plane[T], error) {
	c := img.Channel(ch)
	if c == nil {
		return nil, fmt.Errorf("channel %d out of range for %d channels", ch, img.NumChannels())
	}
	p, ok := c.(*Plane[T])
	if !ok {
		return nil, fmt.Errorf("channel %d is %s, not %s", ch, c.Type(), sampleTypeOf[T]())
	}
	return p, nil
}
