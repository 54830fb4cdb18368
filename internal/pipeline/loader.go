package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"improc/internal/logger"
	"improc/internal/models"
	"improc/internal/opencv/conversion"
	"improc/internal/opencv/safe"
	"improc/internal/raster"

	"gocv.io/x/gocv"
)

// Loader decodes image files into raster images. OpenCV is tried first so
// 16-bit and float files keep their depth; the Go decoders cover anything
// OpenCV rejects.
type Loader struct {
	logger        Logger
	timingTracker TimingTracker
}

func NewLoader(log Logger, tracker TimingTracker) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &Loader{logger: log, timingTracker: tracker}
}

func (l *Loader) Load(ctx context.Context, path string) (*models.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx = l.timingTracker.StartTiming(ctx, "load_from_path")
	defer l.timingTracker.EndTiming(ctx)

	format := formatFromPath(path)
	l.logger.Debug("ImageLoader", "loading image", map[string]interface{}{
		"path":   path,
		"format": format,
	})

	mat := gocv.IMRead(path, gocv.IMReadUnchanged)
	if img, err := l.fromMat(mat, path); err == nil {
		return l.finish(img, path, format), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	img, decoded, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l.finish(img, path, determineActualFormat(format, decoded)), nil
}

// fromMat takes ownership of mat.
func (l *Loader) fromMat(mat gocv.Mat, source string) (*raster.Image, error) {
	safeMat, err := safe.Adopt(mat, "loaded_image")
	if err != nil {
		l.logger.Debug("ImageLoader", "OpenCV decode failed, using Go decoders", map[string]interface{}{
			"source": source,
		})
		return nil, err
	}
	defer safeMat.Close()

	if err := safe.ValidateChannelCount(safeMat.Channels(), "load"); err != nil {
		return nil, err
	}
	return conversion.MatToRaster(safeMat)
}

func (l *Loader) finish(img *raster.Image, source, format string) *models.ImageData {
	data := models.NewImageData(img, source, format)
	l.logger.Info("ImageLoader", "image loaded successfully", map[string]interface{}{
		"width":    img.Width(),
		"height":   img.Height(),
		"channels": img.NumChannels(),
		"type":     img.MaxType().String(),
		"format":   format,
	})
	return data
}

// Decode decodes data with the registered Go image decoders and returns the
// detected format name.
func Decode(data []byte) (*raster.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	out, err := conversion.ImageToRaster(img)
	if err != nil {
		return nil, "", err
	}
	return out, format, nil
}

func formatFromPath(path string) string {
	return determineActualFormat(strings.ToLower(filepath.Ext(path)), "")
}

func determineActualFormat(extension, decodedFormat string) string {
	switch strings.TrimPrefix(strings.ToLower(extension), ".") {
	case "tiff", "tif":
		return "tiff"
	case "jpg", "jpeg":
		return "jpeg"
	case "png":
		return "png"
	case "bmp":
		return "bmp"
	case "gif":
		return "gif"
	case "webp":
		return "webp"
	default:
		if decodedFormat != "" {
			return decodedFormat
		}
		return "unknown"
	}
}
