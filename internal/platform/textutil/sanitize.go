package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Clean strips markup from user-supplied text and trims surrounding
// whitespace. Free-text answers and notes pass through here before they are
// stored or echoed back into chat messages.
func Clean(value string) string {
	return strings.TrimSpace(strict.Sanitize(value))
}

// CleanMap applies Clean to every value, dropping entries with empty keys.
func CleanMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		out[k] = Clean(value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
