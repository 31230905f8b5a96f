package receipt

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/zombor/ahorro/internal/media"
)

var unsafeFileNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeFileName replaces every character outside [A-Za-z0-9._-] with an
// underscore and makes sure the name ends in the extension of the media kind
func sanitizeFileName(original string, kind media.Kind) string {
	ext := "." + kind.Extension()
	sanitized := unsafeFileNameChars.ReplaceAllString(original, "_")
	if sanitized == "" {
		return "receipt-" + uuid.NewString() + ext
	}
	if strings.HasSuffix(strings.ToLower(sanitized), ext) {
		return sanitized
	}
	return sanitized + ext
}

// fileNameFor derives the stored file name of a receipt. The id prefix keeps
// two captures with the same original name from colliding.
func fileNameFor(id, original string, kind media.Kind) string {
	return id + "_" + sanitizeFileName(original, kind)
}
