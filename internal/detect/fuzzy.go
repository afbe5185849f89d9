package detect

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// TokenSortRatio is a 0-100 similarity of a and b that ignores case,
// punctuation and word order. Two blank names are treated as identical.
func TokenSortRatio(a, b string) int {
	if strings.TrimSpace(a) == "" && strings.TrimSpace(b) == "" {
		return 100
	}
	return fuzzy.TokenSortRatio(a, b)
}
