// Package media handles the raw bytes of captured receipts: decoding,
// re-encoding and rasterizing them into preview images.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies how a receipt's bytes must be interpreted
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
)

// Extension returns the canonical file extension, without the dot
func (k Kind) Extension() string {
	if k == KindPDF {
		return "pdf"
	}
	return "jpg"
}

// MIMEType returns the content type used when the normalized bytes are served or uploaded
func (k Kind) MIMEType() string {
	if k == KindPDF {
		return "application/pdf"
	}
	return "image/jpeg"
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	return k == KindImage || k == KindPDF
}

// ParseKind converts a stored or user supplied string into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown media kind %q", s)
	}
	return k, nil
}

// DetectKind guesses the kind from a content type, falling back to the
// file extension and finally to the leading bytes
func DetectKind(contentType, filename string, data []byte) Kind {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case contentType == "application/pdf":
		return KindPDF
	case strings.HasPrefix(contentType, "image/"):
		return KindImage
	}

	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return KindPDF
	}
	if len(data) >= 5 && string(data[:5]) == "%PDF-" {
		return KindPDF
	}
	return KindImage
}
