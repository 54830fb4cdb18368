package pipeline

import (
	"context"

	"improc/internal/models"
	"improc/internal/raster"
)

// ImageLoader decodes image files
type ImageLoader interface {
	Load(ctx context.Context, path string) (*models.ImageData, error)
}

// ImageSaver writes image files
type ImageSaver interface {
	Save(ctx context.Context, path string, img *raster.Image) error
}

var (
	_ ImageLoader = (*Loader)(nil)
	_ ImageSaver  = (*Saver)(nil)
)
