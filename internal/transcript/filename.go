package transcript

import (
	"regexp"
	"strings"
)

// DefaultFileName is used when no usable title is available.
const DefaultFileName = "claude_conversation.md"

const maxFileStem = 80

var unsafeRun = regexp.MustCompile(`[^a-z0-9]+`)

// FileName derives an output file name from a conversation title: lowercase,
// every run of characters outside [a-z0-9] collapsed to "_", trimmed, capped
// at 80 characters, with ext appended. An empty result falls back to the
// default name with ext.
func FileName(title, ext string) string {
	if ext == "" {
		ext = ".md"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	stem := unsafeRun.ReplaceAllString(strings.ToLower(title), "_")
	stem = strings.Trim(stem, "_")
	if len(stem) > maxFileStem {
		stem = strings.TrimRight(stem[:maxFileStem], "_")
	}
	if stem == "" || stem == strings.Trim(unsafeRun.ReplaceAllString(strings.ToLower(DefaultTitle), "_"), "_") {
		return strings.TrimSuffix(DefaultFileName, ".md") + ext
	}
	return stem + ext
}
