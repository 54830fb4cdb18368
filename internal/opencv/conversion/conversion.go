// Package conversion moves pixel data between gocv Mats, Go images and
// raster images. Color data keeps OpenCV's BGR(A) channel order on both
// sides.
package conversion

import (
	"fmt"

	"improc/internal/opencv/safe"
	"improc/internal/raster"

	"gocv.io/x/gocv"
)

// MatToRaster copies src into a new raster image with one plane per Mat
// channel. 8-bit and 32-bit float depths are kept; every other depth is
// converted to float32.
func MatToRaster(src *safe.Mat) (*raster.Image, error) {
	if err := safe.ValidateMatForOperation(src, "Mat to raster conversion"); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	rows, cols := src.Rows(), src.Cols()
	planes := gocv.Split(src.GetMat())
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()

	types := make([]raster.SampleType, len(planes))
	for i, p := range planes {
		if p.Type() == gocv.MatTypeCV8UC1 {
			types[i] = raster.Uint8
		} else {
			types[i] = raster.Float32
		}
	}

	img, err := raster.New(cols, rows, types...)
	if err != nil {
		return nil, err
	}

	for i, p := range planes {
		if err := copyPlane(p, img, i, types[i]); err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return img, nil
}

func copyPlane(p gocv.Mat, img *raster.Image, ch int, t raster.SampleType) error {
	if t == raster.Uint8 {
		data, err := p.DataPtrUint8()
		if err != nil {
			return fmt.Errorf("pixel access failed: %w", err)
		}
		dst, err := raster.PlaneAt[uint8](img, ch)
		if err != nil {
			return err
		}
		copy(dst.Pix, data)
		return nil
	}

	src := p
	if p.Type() != gocv.MatTypeCV32FC1 {
		converted := gocv.NewMat()
		defer converted.Close()
		p.ConvertTo(&converted, gocv.MatTypeCV32FC1)
		src = converted
	}
	data, err := src.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("pixel access failed: %w", err)
	}
	dst, err := raster.PlaneAt[float32](img, ch)
	if err != nil {
		return err
	}
	copy(dst.Pix, data)
	return nil
}

// RasterToMat builds an 8-bit Mat with one channel per raster channel.
// Wider samples are clipped to [0, 255]; callers wanting the full range
// preserved rescale first.
func RasterToMat(img *raster.Image) (*safe.Mat, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	if err := safe.ValidateChannelCount(img.NumChannels(), "raster to Mat conversion"); err != nil {
		return nil, err
	}

	gray, err := raster.Cast(img, raster.Uint8)
	if err != nil {
		return nil, err
	}

	planes := make([]gocv.Mat, 0, gray.NumChannels())
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()

	for ch := 0; ch < gray.NumChannels(); ch++ {
		src, err := raster.PlaneAt[uint8](gray, ch)
		if err != nil {
			return nil, err
		}
		p, err := gocv.NewMatFromBytes(gray.Height(), gray.Width(), gocv.MatTypeCV8UC1, src.Pix)
		if err != nil {
			return nil, fmt.Errorf("channel %d Mat creation failed: %w", ch, err)
		}
		planes = append(planes, p)
	}

	if len(planes) == 1 {
		return safe.Adopt(planes[0].Clone(), "raster_to_mat")
	}

	merged := gocv.NewMat()
	gocv.Merge(planes, &merged)
	return safe.Adopt(merged, "raster_to_mat")
}
