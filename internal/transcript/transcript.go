// Package transcript holds the ordered accumulator of conversation turns
// captured during one export run, and renders it to Markdown or JSON.
package transcript

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Heading returns the label used for the role's Markdown section.
func (r Role) Heading() string {
	if r == RoleHuman {
		return "Human"
	}
	return "Claude"
}

// Source records which extraction strategy produced a message.
type Source string

const (
	SourceStatic      Source = "static"
	SourceInteractive Source = "interactive"
)

// DefaultTitle is used when the page exposes no conversation title.
const DefaultTitle = "Conversation with Claude"

// ErrNoMessages is returned by Validate when nothing was captured.
var ErrNoMessages = errors.New("no messages captured")

// Message is one conversation turn. Index is the message's position in the
// page's document order.
type Message struct {
	Index  int    `json:"index"`
	Role   Role   `json:"role"`
	Text   string `json:"text"`
	Source Source `json:"source"`
}

// Transcript is the ordered set of messages captured from one page.
type Transcript struct {
	RunID      string    `json:"run_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Messages   []Message `json:"messages"`
}

// New starts an empty transcript for a run.
func New(title, url string) *Transcript {
	return &Transcript{
		RunID:      uuid.New().String(),
		Title:      title,
		URL:        url,
		CapturedAt: time.Now().UTC(),
		Messages:   []Message{},
	}
}

// Add appends a message. Text is trimmed; empty messages are dropped and
// Add reports false.
func (t *Transcript) Add(m Message) bool {
	m.Text = strings.TrimSpace(m.Text)
	if m.Text == "" {
		return false
	}
	t.Messages = append(t.Messages, m)
	return true
}

// Merge combines messages from several strategies into document order.
// When two messages share an Index the one already present wins.
func (t *Transcript) Merge(others ...Message) {
	seen := make(map[int]bool, len(t.Messages))
	for _, m := range t.Messages {
		seen[m.Index] = true
	}
	for _, m := range others {
		if seen[m.Index] {
			continue
		}
		if t.Add(m) {
			seen[m.Index] = true
		}
	}
	sort.SliceStable(t.Messages, func(i, j int) bool {
		return t.Messages[i].Index < t.Messages[j].Index
	})
}

// Len returns the number of captured messages.
func (t *Transcript) Len() int { return len(t.Messages) }

// Count returns how many messages have the given role.
func (t *Transcript) Count(role Role) int {
	n := 0
	for _, m := range t.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// Validate reports ErrNoMessages for an empty transcript.
func (t *Transcript) Validate() error {
	if len(t.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}

// DisplayTitle returns the title, or DefaultTitle when none was detected.
func (t *Transcript) DisplayTitle() string {
	if title := strings.TrimSpace(t.Title); title != "" {
		return title
	}
	return DefaultTitle
}
