package media

import (
	"context"
	"image"
	"log/slog"
)

// Thumbnailer derives a preview image from a receipt's original bytes.
// A nil image is a valid result and never an error.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, data []byte, kind Kind) image.Image
}

// DefaultThumbnailer decodes images directly and rasterizes the first page of PDFs
type DefaultThumbnailer struct {
	logger *slog.Logger
}

// NewThumbnailer creates a DefaultThumbnailer
func NewThumbnailer(logger *slog.Logger) *DefaultThumbnailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultThumbnailer{logger: logger}
}

// Thumbnail returns the preview image, or nil when none can be produced
func (t *DefaultThumbnailer) Thumbnail(ctx context.Context, data []byte, kind Kind) image.Image {
	if ctx.Err() != nil {
		return nil
	}

	var (
		img image.Image
		err error
	)
	switch kind {
	case KindPDF:
		img, err = RasterizeFirstPage(data)
	default:
		img, err = Decode(data)
	}
	if err != nil {
		t.logger.Debug("thumbnail unavailable", "kind", kind, "size", len(data), "error", err)
		return nil
	}
	return img
}
