package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const (
	// PayloadQuality is the JPEG quality stored image payloads are re-encoded with
	PayloadQuality = 92
	// ThumbnailQuality is the JPEG quality used for persisted thumbnails
	ThumbnailQuality = 80

	// pdfPointsDPI renders a page at one pixel per PDF point, i.e. at media box size
	pdfPointsDPI = 72.0
)

// Decode decodes JPEG, PNG, GIF and HEIC/HEIF images
func Decode(data []byte) (image.Image, error) {
	if isHEICFormat(data) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes img as a JPEG with the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Normalize bounds the stored size of a payload. Images are decoded and
// re-encoded as JPEG at PayloadQuality; PDFs are returned unchanged. An image
// that cannot be decoded is also returned unchanged.
func Normalize(data []byte, kind Kind) ([]byte, error) {
	if kind == KindPDF {
		return data, nil
	}

	img, err := Decode(data)
	if err != nil {
		return data, err
	}
	out, err := EncodeJPEG(img, PayloadQuality)
	if err != nil {
		return data, err
	}
	return out, nil
}

// RasterizeFirstPage renders the first page of a PDF at its media box size
// on a white background
func RasterizeFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	page, err := doc.ImageDPI(0, pdfPointsDPI)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	out := image.NewRGBA(page.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), page, page.Bounds().Min, draw.Over)
	return out, nil
}

// ToPNG converts an image or the first page of a PDF to PNG, which is what
// the vision model providers accept most reliably
func ToPNG(data []byte, kind Kind) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	if kind == KindPDF {
		img, err = RasterizeFirstPage(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
	} else {
		if isPNGFormat(data) {
			return data, nil
		}
		img, err = Decode(data)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func isPNGFormat(data []byte) bool {
	return len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n"
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
