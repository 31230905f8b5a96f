package receipt

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/zombor/ahorro/internal/scanning"
)

// minHintTokenLength is the shortest hint token kept as a keyword, exclusive
const minHintTokenLength = 2

// EnrichKeywords merges the analysis keywords with the longer tokens of the
// user's hint. Keywords are lower-cased, deduplicated and sorted.
func EnrichKeywords(keywords []string, hint string) []string {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			set[k] = struct{}{}
		}
	}
	for _, token := range scanning.Tokenize(hint) {
		if utf8.RuneCountInString(token) > minHintTokenLength {
			set[token] = struct{}{}
		}
	}

	result := make([]string, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	slices.Sort(result)
	return result
}
