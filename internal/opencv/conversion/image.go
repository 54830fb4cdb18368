package conversion

import (
	"fmt"
	"image"
	"image/color"

	"improc/internal/raster"
)

// ImageToRaster converts a decoded Go image. Gray images give one channel,
// opaque color images give B, G, R and images with transparency add A.
// 16-bit images keep their raw sample values in float32 planes, the same
// result the OpenCV reader gives for 16-bit depths.
func ImageToRaster(img image.Image) (*raster.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	switch typed := img.(type) {
	case *image.Gray:
		pix := make([]uint8, 0, width*height)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			start := typed.PixOffset(bounds.Min.X, y)
			pix = append(pix, typed.Pix[start:start+width]...)
		}
		return raster.FromUint8(width, height, pix)
	case *image.Gray16:
		pix := make([]float32, 0, width*height)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				pix = append(pix, float32(typed.Gray16At(x, y).Y))
			}
		}
		return raster.FromFloat32(width, height, pix)
	case *image.RGBA64, *image.NRGBA64:
		return wideColorToRaster(img)
	}

	b := make([]uint8, width*height)
	g := make([]uint8, width*height)
	r := make([]uint8, width*height)
	a := make([]uint8, width*height)
	opaque := true

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			b[i], g[i], r[i], a[i] = c.B, c.G, c.R, c.A
			if c.A != 0xff {
				opaque = false
			}
			i++
		}
	}

	if opaque {
		return raster.FromUint8(width, height, b, g, r)
	}
	return raster.FromUint8(width, height, b, g, r, a)
}

func wideColorToRaster(img image.Image) (*raster.Image, error) {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	b, g, r, a := make([]float32, n), make([]float32, n), make([]float32, n), make([]float32, n)
	opaque := true

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			b[i], g[i], r[i], a[i] = float32(c.B), float32(c.G), float32(c.R), float32(c.A)
			if c.A != 0xffff {
				opaque = false
			}
			i++
		}
	}

	if opaque {
		return raster.FromFloat32(bounds.Dx(), bounds.Dy(), b, g, r)
	}
	return raster.FromFloat32(bounds.Dx(), bounds.Dy(), b, g, r, a)
}

// RasterToImage converts a 1, 3 or 4 channel raster image for the Go
// encoders. Samples are clipped to [0, 255].
func RasterToImage(img *raster.Image) (image.Image, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}

	gray, err := raster.Cast(img, raster.Uint8)
	if err != nil {
		return nil, err
	}

	planes := make([][]uint8, gray.NumChannels())
	for ch := range planes {
		p, err := raster.PlaneAt[uint8](gray, ch)
		if err != nil {
			return nil, err
		}
		planes[ch] = p.Pix
	}

	width, height := gray.Width(), gray.Height()
	rect := image.Rect(0, 0, width, height)

	switch len(planes) {
	case 1:
		out := image.NewGray(rect)
		copy(out.Pix, planes[0])
		return out, nil
	case 3, 4:
		out := image.NewNRGBA(rect)
		for i := 0; i < width*height; i++ {
			alpha := uint8(0xff)
			if len(planes) == 4 {
				alpha = planes[3][i]
			}
			out.Pix[4*i+0] = planes[2][i]
			out.Pix[4*i+1] = planes[1][i]
			out.Pix[4*i+2] = planes[0][i]
			out.Pix[4*i+3] = alpha
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", len(planes))
	}
}
