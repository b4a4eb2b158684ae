package resolving

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const fallbackTitle = "Untitled Media"

// deriveTitle builds a display title from the resolver's suggested filename,
// falling back to the last source URL path segment when no filename arrived.
func deriveTitle(filename, sourceURL string) string {
	base := strings.TrimSpace(filename)
	if base == "" {
		base = lastPathSegment(sourceURL)
	}
	if base == "" {
		return fallbackTitle
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return fallbackTitle
	}
	return cases.Title(language.Und).String(title)
}

func lastPathSegment(sourceURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return ""
	}
	segment := path.Base(parsed.Path)
	if segment == "." || segment == "/" {
		return ""
	}
	return segment
}
