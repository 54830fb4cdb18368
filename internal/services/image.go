package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"improc/internal/logger"
	"improc/internal/models"
	"improc/internal/pipeline"
	"improc/internal/processing/histogram"
	"improc/internal/raster"
)

// ImageService handles image loading, saving and the auxiliary inputs the
// filters read from disk
type ImageService struct {
	loader     pipeline.ImageLoader
	saver      pipeline.ImageSaver
	repository *models.ImageRepository
	logger     logger.Logger
}

func NewImageService(loader pipeline.ImageLoader, saver pipeline.ImageSaver, repo *models.ImageRepository, log logger.Logger) *ImageService {
	if log == nil {
		log = logger.Nop()
	}
	return &ImageService{
		loader:     loader,
		saver:      saver,
		repository: repo,
		logger:     log,
	}
}

// LoadImage decodes path and stores it as the repository's original image.
func (is *ImageService) LoadImage(ctx context.Context, path string) (*models.ImageData, error) {
	data, err := is.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	is.repository.SetOriginalImage(data)
	return data, nil
}

// LoadKernel reads a convolution kernel. Files ending in .txt use the text
// format; anything else is decoded as an image whose first channel holds
// the weights.
func (is *ImageService) LoadKernel(ctx context.Context, path string) (*raster.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open kernel: %w", err)
		}
		defer f.Close()
		return pipeline.ParseKernel(f)
	}

	data, err := is.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	kernel, err := raster.New(data.Image.Width(), data.Image.Height(), raster.Float32)
	if err != nil {
		return nil, err
	}
	if err := raster.CastChannel(data.Image, 0, kernel, 0, raster.Float32); err != nil {
		return nil, err
	}
	return kernel, nil
}

// LoadTemplate decodes a correlation template. It is not stored in the
// repository.
func (is *ImageService) LoadTemplate(ctx context.Context, path string) (*raster.Image, error) {
	data, err := is.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return data.Image, nil
}

// LoadGrayLevels is LoadImage for the gray-level remap filters: 16-bit and
// float inputs are rescaled onto [0, 255] the way the saver displays them,
// instead of being clipped by the remap.
func (is *ImageService) LoadGrayLevels(ctx context.Context, path string) (*models.ImageData, error) {
	data, err := is.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if data.Image.MaxType() != raster.Uint8 {
		scaled, err := raster.Rescale(data.Image, raster.MaxGray)
		if err != nil {
			return nil, err
		}
		is.logger.Debug("ImageService", "wide input rescaled to 8-bit range", map[string]interface{}{
			"path": path,
			"type": data.Image.MaxType().String(),
		})
		data = models.NewImageData(scaled, data.Source, data.Format)
	}
	is.repository.SetOriginalImage(data)
	return data, nil
}

// LoadHistogramTarget decodes path and returns the histogram of its first
// channel, rescaling wide inputs like LoadGrayLevels.
func (is *ImageService) LoadHistogramTarget(ctx context.Context, path string) (histogram.Histogram, error) {
	data, err := is.loader.Load(ctx, path)
	if err != nil {
		return histogram.Histogram{}, err
	}
	img := data.Image
	if img.MaxType() != raster.Uint8 {
		if img, err = raster.Rescale(img, raster.MaxGray); err != nil {
			return histogram.Histogram{}, err
		}
	}
	return histogram.Compute(img, 0)
}

// LoadHistogramTable decodes a histogram stored as an image: the first 256
// samples of channel 0, row-major, are the counts of levels 0 to 255. A
// 16-bit grayscale PNG holds counts up to 65535.
func (is *ImageService) LoadHistogramTable(ctx context.Context, path string) (histogram.Histogram, error) {
	data, err := is.loader.Load(ctx, path)
	if err != nil {
		return histogram.Histogram{}, err
	}
	table, err := raster.New(data.Image.Width(), data.Image.Height(), raster.Int32)
	if err != nil {
		return histogram.Histogram{}, err
	}
	if err := raster.CastChannel(data.Image, 0, table, 0, raster.Int32); err != nil {
		return histogram.Histogram{}, err
	}
	return histogram.FromTable(table)
}

// SaveImage writes imageData to path; the format follows the extension.
func (is *ImageService) SaveImage(ctx context.Context, path string, imageData *models.ImageData) error {
	if imageData == nil || imageData.Image == nil {
		return fmt.Errorf("no image data to save")
	}
	if err := is.saver.Save(ctx, path, imageData.Image); err != nil {
		return err
	}
	is.logger.Debug("ImageService", "image written", map[string]interface{}{
		"id":   imageData.ID,
		"path": path,
	})
	return nil
}

// SaveLatest writes the most recent processed image.
func (is *ImageService) SaveLatest(ctx context.Context, path string) error {
	latest := is.repository.GetLatestProcessedImage()
	if latest == nil {
		return fmt.Errorf("no processed image to save")
	}
	return is.SaveImage(ctx, path, latest)
}

// CropImage copies the width x height region at (x, y). The region must lie
// inside the image.
func (is *ImageService) CropImage(img *raster.Image, x, y, width, height int) (*raster.Image, error) {
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x+width > img.Width() || y+height > img.Height() {
		return nil, models.NewValidationError("crop", fmt.Sprintf("%d,%d %dx%d", x, y, width, height),
			fmt.Sprintf("region must lie inside %dx%d", img.Width(), img.Height()))
	}

	types := make([]raster.SampleType, img.NumChannels())
	for ch := range types {
		types[ch] = img.Channel(ch).Type()
	}
	out, err := raster.New(width, height, types...)
	if err != nil {
		return nil, err
	}

	for ch := range types {
		src, dst := img.Channel(ch), out.Channel(ch)
		for row := 0; row < height; row++ {
			for col := 0; col < width; col++ {
				dst.SetFloat(row*width+col, src.Float((y+row)*img.Width()+x+col))
			}
		}
	}
	return out, nil
}

func (is *ImageService) Cleanup() {
	is.repository.ClearAll()
}
