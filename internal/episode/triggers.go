package episode

import (
	"regexp"
	"strings"
)

// KnownTriggers are the labels offered by clients. Any other label is accepted.
var KnownTriggers = []string{"Crohns", "Coffee", "Sleep", "Stress", "Dehydration", "Other"}

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// normalizeLabel trims and collapses internal whitespace.
func normalizeLabel(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// NormalizeTriggers turns a label list into a set: labels are trimmed, empty
// ones dropped, and duplicates removed case-insensitively (first spelling wins).
// Returns nil when nothing is left.
func NormalizeTriggers(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = normalizeLabel(l)
		if l == "" {
			continue
		}
		key := strings.ToLower(l)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
