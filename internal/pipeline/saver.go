package pipeline

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"improc/internal/logger"
	"improc/internal/opencv/conversion"
	"improc/internal/raster"

	"gocv.io/x/gocv"
)

// Saver encodes raster images. Images wider than 8 bits are rescaled onto
// [0, 255] first so float results such as correlation maps stay visible.
type Saver struct {
	logger        Logger
	timingTracker TimingTracker
}

func NewSaver(log Logger, tracker TimingTracker) *Saver {
	if log == nil {
		log = logger.Nop()
	}
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &Saver{logger: log, timingTracker: tracker}
}

func (s *Saver) Save(ctx context.Context, path string, img *raster.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx = s.timingTracker.StartTiming(ctx, "save_to_path")
	defer s.timingTracker.EndTiming(ctx)

	out, err := displayable(img)
	if err != nil {
		return err
	}

	format := formatFromPath(path)
	s.logger.Debug("ImageSaver", "saving image", map[string]interface{}{
		"path":   path,
		"format": format,
		"width":  out.Width(),
		"height": out.Height(),
	})

	if format != "unknown" && s.writeWithOpenCV(path, out) {
		s.logger.Info("ImageSaver", "image saved", map[string]interface{}{"path": path, "format": format})
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := s.SaveToWriter(f, out, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	s.logger.Info("ImageSaver", "image saved", map[string]interface{}{"path": path, "format": format})
	return nil
}

func (s *Saver) writeWithOpenCV(path string, img *raster.Image) bool {
	mat, err := conversion.RasterToMat(img)
	if err != nil {
		return false
	}
	defer mat.Close()

	if !gocv.IMWrite(path, mat.GetMat()) {
		s.logger.Debug("ImageSaver", "OpenCV encode failed, using Go encoders", map[string]interface{}{
			"path": path,
		})
		return false
	}
	return true
}

// SaveToWriter encodes img with the Go encoders. Unknown formats are
// written as PNG.
func (s *Saver) SaveToWriter(w io.Writer, img *raster.Image, format string) error {
	out, err := displayable(img)
	if err != nil {
		return err
	}
	goImg, err := conversion.RasterToImage(out)
	if err != nil {
		return err
	}

	switch format {
	case "jpeg":
		err = jpeg.Encode(w, goImg, &jpeg.Options{Quality: 95})
	case "bmp":
		err = bmp.Encode(w, goImg)
	case "tiff":
		err = tiff.Encode(w, goImg, &tiff.Options{Compression: tiff.Deflate})
	case "png":
		err = png.Encode(w, goImg)
	default:
		s.logger.Warning("ImageSaver", "format not supported, using PNG", map[string]interface{}{
			"requested_format": format,
		})
		err = png.Encode(w, goImg)
	}

	if err != nil {
		s.logger.Error("ImageSaver", err, map[string]interface{}{"format": format})
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return nil
}

func displayable(img *raster.Image) (*raster.Image, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	if img.MaxType() == raster.Uint8 {
		return img, nil
	}
	return raster.Rescale(img, raster.MaxGray)
}
