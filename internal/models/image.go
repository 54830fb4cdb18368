package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"improc/internal/processing/correlation"
	"improc/internal/raster"
)

// ImageData is a raster image with its origin
type ImageData struct {
	ID          string
	Image       *raster.Image
	Source      string
	Format      string
	LoadTime    time.Time
	ProcessTime time.Duration
}

// NewImageData wraps img under a fresh ID.
func NewImageData(img *raster.Image, source, format string) *ImageData {
	return &ImageData{
		ID:       uuid.NewString(),
		Image:    img,
		Source:   source,
		Format:   format,
		LoadTime: time.Now(),
	}
}

// Bytes returns the sample storage held by the image.
func (d *ImageData) Bytes() int64 {
	if d == nil || d.Image == nil {
		return 0
	}
	var total int64
	for ch := 0; ch < d.Image.NumChannels(); ch++ {
		c := d.Image.Channel(ch)
		size := int64(4)
		if c.Type() == raster.Uint8 {
			size = 1
		}
		total += int64(c.Len()) * size
	}
	return total
}

// ProcessingResult records one completed operation
type ProcessingResult struct {
	ID             string
	ProcessedImage *ImageData
	Operation      string
	Parameters     map[string]interface{}
	Match          *correlation.Match
	ProcessTime    time.Duration
	CompletedAt    time.Time
}

// ImageRepository keeps the source image and a bounded history of results
type ImageRepository struct {
	mu                sync.RWMutex
	originalImage     *ImageData
	processedImages   map[string]*ImageData
	processingHistory []ProcessingResult
	maxHistorySize    int
}

// NewImageRepository keeps at most maxHistory results; values below one
// mean the default of 10.
func NewImageRepository(maxHistory int) *ImageRepository {
	if maxHistory < 1 {
		maxHistory = 10
	}
	return &ImageRepository{
		processedImages:   make(map[string]*ImageData),
		processingHistory: make([]ProcessingResult, 0),
		maxHistorySize:    maxHistory,
	}
}

func (r *ImageRepository) SetOriginalImage(img *ImageData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.originalImage = img
}

// AddProcessedImage stores result, assigning IDs where missing, and evicts
// the oldest entry once the history is full. It returns the result ID.
func (r *ImageRepository) AddProcessedImage(result ProcessingResult) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}
	if result.ProcessedImage != nil {
		if result.ProcessedImage.ID == "" {
			result.ProcessedImage.ID = uuid.NewString()
		}
		r.processedImages[result.ProcessedImage.ID] = result.ProcessedImage
	}

	r.processingHistory = append(r.processingHistory, result)

	if len(r.processingHistory) > r.maxHistorySize {
		oldest := r.processingHistory[0]
		if oldest.ProcessedImage != nil {
			delete(r.processedImages, oldest.ProcessedImage.ID)
		}
		r.processingHistory = r.processingHistory[1:]
	}
	return result.ID
}

func (r *ImageRepository) GetLatestProcessedImage() *ImageData {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.processingHistory) == 0 {
		return nil
	}
	return r.processingHistory[len(r.processingHistory)-1].ProcessedImage
}

// GetProcessingHistory returns a copy of the history, oldest first.
func (r *ImageRepository) GetProcessingHistory() []ProcessingResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := make([]ProcessingResult, len(r.processingHistory))
	copy(history, r.processingHistory)
	return history
}

func (r *ImageRepository) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.originalImage = nil
	r.processedImages = make(map[string]*ImageData)
	r.processingHistory = make([]ProcessingResult, 0)
}

// ImageStats summarizes the repository contents
type ImageStats struct {
	HasOriginal        bool
	ProcessedCount     int
	HistorySize        int
	TotalMemoryUsage   int64
	AverageProcessTime time.Duration
}

func (r *ImageRepository) GetImageStats() ImageStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := ImageStats{
		HasOriginal:      r.originalImage != nil,
		ProcessedCount:   len(r.processedImages),
		HistorySize:      len(r.processingHistory),
		TotalMemoryUsage: r.originalImage.Bytes(),
	}
	stats.TotalMemoryUsage += lo.SumBy(lo.Values(r.processedImages), func(d *ImageData) int64 {
		return d.Bytes()
	})
	if n := len(r.processingHistory); n > 0 {
		total := lo.SumBy(r.processingHistory, func(p ProcessingResult) time.Duration {
			return p.ProcessTime
		})
		stats.AverageProcessTime = total / time.Duration(n)
	}
	return stats
}

func (r *ImageRepository) Shutdown() {
	r.ClearAll()
}
