package transcript

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// NoMessagesNotice is written in place of the body when nothing was captured.
const NoMessagesNotice = "_No messages captured._"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Markdown renders the transcript:
//
//	# <title>
//
//	## Human:
//
//	<text>
//
//	## Claude:
//	...
func (t *Transcript) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.DisplayTitle())

	if len(t.Messages) == 0 {
		b.WriteString(NoMessagesNotice)
		b.WriteString("\n")
		return b.String()
	}

	for _, m := range t.Messages {
		fmt.Fprintf(&b, "## %s:\n\n", m.Role.Heading())
		b.WriteString(m.Text)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// JSON renders the transcript as indented JSON.
func (t *Transcript) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return out, nil
}
