// Package selectors holds the CSS selectors that locate chat messages for each
// known revision of the page markup.
//
// Markup changes without notice, so every revision is a named Profile and the
// set can be extended or overridden from configuration.
package selectors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xkilldash9x/chatscribe/internal/config"
)

// ErrProfileNotFound is returned when a profile name is not known.
var ErrProfileNotFound = errors.New("selector profile not found")

// Profile describes one revision of the chat page markup.
type Profile struct {
	Name string
	// MessageSelector matches every message, human and assistant, in
	// document order.
	MessageSelector   string
	HumanSelector     string
	AssistantSelector string
	// AssistantContentSelector locates the rendered body inside an assistant
	// message. Empty means the message element itself.
	AssistantContentSelector string
	TitleSelector            string
	EditButtonTexts          []string
	CopyButtonTexts          []string
	EditInputSelector        string
}

// Builtin returns the built-in profiles, oldest first.
func Builtin() []Profile {
	return []Profile{
		{
			Name:                     "legacy-font",
			MessageSelector:          ".font-claude-message, .font-user-message",
			HumanSelector:            ".font-user-message",
			AssistantSelector:        ".font-claude-message",
			AssistantContentSelector: ".grid-cols-1",
			EditButtonTexts:          []string{"Edit"},
			CopyButtonTexts:          []string{"Copy"},
			EditInputSelector:        "textarea",
		},
		{
			Name:              "testid",
			MessageSelector:   `[data-testid="user-message"], .font-claude-response`,
			HumanSelector:     `[data-testid="user-message"]`,
			AssistantSelector: ".font-claude-response",
			TitleSelector:     `[data-testid="chat-menu-trigger"]`,
			EditButtonTexts:   []string{"Edit"},
			CopyButtonTexts:   []string{"Copy"},
			EditInputSelector: "textarea",
		},
		{
			Name:                     "testid-grid",
			MessageSelector:          `[data-testid="user-message"], [data-is-streaming] .font-claude-response`,
			HumanSelector:            `[data-testid="user-message"]`,
			AssistantSelector:        "[data-is-streaming] .font-claude-response",
			AssistantContentSelector: ".grid-cols-1",
			TitleSelector:            `[data-testid="chat-menu-trigger"]`,
			EditButtonTexts:          []string{"Edit"},
			CopyButtonTexts:          []string{"Copy"},
			EditInputSelector:        "textarea",
		},
	}
}

// FromConfig returns the built-in profiles with the configured ones applied.
// A configured profile whose name matches a built-in overrides the non-empty
// fields of that profile; other configured profiles are appended as the
// newest revisions, unless they lack a message selector.
func FromConfig(cfg config.SelectorsConfig) []Profile {
	profiles := Builtin()
	for _, pc := range cfg.Profiles {
		override := fromProfileConfig(pc)
		idx := indexOf(profiles, override.Name)
		if idx < 0 {
			if override.MessageSelector != "" {
				profiles = append(profiles, override)
			}
			continue
		}
		profiles[idx] = merge(profiles[idx], override)
	}
	return profiles
}

func fromProfileConfig(pc config.ProfileConfig) Profile {
	return Profile{
		Name:                     pc.Name,
		MessageSelector:          pc.MessageSelector,
		HumanSelector:            pc.HumanSelector,
		AssistantSelector:        pc.AssistantSelector,
		AssistantContentSelector: pc.AssistantContentSelector,
		TitleSelector:            pc.TitleSelector,
		EditButtonTexts:          pc.EditButtonTexts,
		CopyButtonTexts:          pc.CopyButtonTexts,
		EditInputSelector:        pc.EditInputSelector,
	}
}

func merge(base, o Profile) Profile {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&base.MessageSelector, o.MessageSelector)
	set(&base.HumanSelector, o.HumanSelector)
	set(&base.AssistantSelector, o.AssistantSelector)
	set(&base.AssistantContentSelector, o.AssistantContentSelector)
	set(&base.TitleSelector, o.TitleSelector)
	set(&base.EditInputSelector, o.EditInputSelector)
	if len(o.EditButtonTexts) > 0 {
		base.EditButtonTexts = o.EditButtonTexts
	}
	if len(o.CopyButtonTexts) > 0 {
		base.CopyButtonTexts = o.CopyButtonTexts
	}
	return base
}

func indexOf(profiles []Profile, name string) int {
	for i, p := range profiles {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

// Lookup finds a profile by name (case-insensitive).
func Lookup(profiles []Profile, name string) (Profile, error) {
	if idx := indexOf(profiles, name); idx >= 0 {
		return profiles[idx], nil
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
}

// Detect returns the profile whose message selector matches the most
// elements of doc, preferring the newest profile on ties.
func Detect(doc *goquery.Document, profiles []Profile) (Profile, bool) {
	best, bestCount := -1, 0
	for i := len(profiles) - 1; i >= 0; i-- {
		if n := doc.Find(profiles[i].MessageSelector).Length(); n > bestCount {
			best, bestCount = i, n
		}
	}
	if best < 0 {
		return Profile{}, false
	}
	return profiles[best], true
}

// Resolve picks the profile named by name, or detects one from doc when name
// is empty.
func Resolve(doc *goquery.Document, profiles []Profile, name string) (Profile, error) {
	if name != "" {
		return Lookup(profiles, name)
	}
	p, ok := Detect(doc, profiles)
	if !ok {
		return Profile{}, fmt.Errorf("%w: no profile matches the page", ErrProfileNotFound)
	}
	return p, nil
}

// IsHuman reports whether sel is a human message under p. Elements matching
// neither role selector are treated as assistant messages.
func (p Profile) IsHuman(sel *goquery.Selection) bool {
	if p.HumanSelector == "" {
		return false
	}
	return sel.Is(p.HumanSelector)
}

// Content returns the element holding the rendered body of sel.
func (p Profile) Content(sel *goquery.Selection, human bool) *goquery.Selection {
	if human || p.AssistantContentSelector == "" {
		return sel
	}
	if content := sel.Find(p.AssistantContentSelector).First(); content.Length() > 0 {
		return content
	}
	return sel
}
