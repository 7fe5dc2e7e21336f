// Package clipboard pulls batch URIs out of the system clipboard.
package clipboard

import (
	"net/url"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/surge-downloader/batchget/internal/source"
)

var clipboardReadAll = clipboard.ReadAll

const maxLineLength = 8192

type Validator struct {
	allowedSchemes map[string]bool
}

func NewValidator() *Validator {
	return &Validator{
		allowedSchemes: map[string]bool{"http": true, "https": true, "magnet": true},
	}
}

// ExtractURL returns the URI on a single line, or "" when the line is not
// something the engine can fetch.
func (v *Validator) ExtractURL(text string) string {
	text = strings.TrimSpace(text)

	// Quick reject: too long, contains newlines, or obviously not a URL
	if len(text) > maxLineLength || strings.ContainsAny(text, "\n\r") {
		return ""
	}

	parsed, err := url.Parse(text)
	if err != nil || !v.allowedSchemes[strings.ToLower(parsed.Scheme)] {
		return ""
	}
	if source.Validate(text) != nil {
		return ""
	}

	if source.IsMagnet(text) {
		return text
	}
	return parsed.String()
}

// ExtractURLs returns every usable URI in text, one per line, in order and
// without duplicates.
func (v *Validator) ExtractURLs(text string) []string {
	var out []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if u := v.ExtractURL(line); u != "" {
			out = append(out, u)
		}
	}
	return source.Dedupe(out)
}

// ReadURLs returns the URIs currently on the clipboard.
func ReadURLs() []string {
	text, err := clipboardReadAll()
	if err != nil {
		return nil
	}
	return NewValidator().ExtractURLs(text)
}
