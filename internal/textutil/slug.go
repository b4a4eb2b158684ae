package textutil

import "strings"

// Slug converts text to a lowercase alphanumeric slug with hyphens. Spaces,
// underscores, periods, and hyphens collapse into single hyphens; every other
// character is dropped. Returns "" when nothing survives, so callers choose
// their own fallback.
func Slug(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	var slug strings.Builder
	lastHyphen := false
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			slug.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if !lastHyphen {
				slug.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(slug.String(), "-")
}
