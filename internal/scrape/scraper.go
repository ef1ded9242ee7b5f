// Package scrape reconstructs a transcript from a static HTML snapshot of a
// chat page.
package scrape

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatscribe/internal/markdown"
	"github.com/xkilldash9x/chatscribe/internal/selectors"
	"github.com/xkilldash9x/chatscribe/internal/transcript"
)

// titleSuffixes are stripped from the document <title>.
var titleSuffixes = []string{" - Claude", " | Claude"}

// Options controls a scrape.
type Options struct {
	// Profile forces a selector profile by name. Empty means detect.
	Profile  string
	Profiles []selectors.Profile
	// Converter defaults to the native markdown walker.
	Converter markdown.Converter
	URL       string
	Logger    *zap.Logger
}

// Result is the outcome of a scrape.
type Result struct {
	Transcript *transcript.Transcript
	Profile    selectors.Profile
	// Elements is the number of message elements the profile matched,
	// including ones that produced no text.
	Elements int
}

// Scrape parses an HTML snapshot and extracts its messages.
func Scrape(r io.Reader, opts Options) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return ScrapeDocument(doc, opts)
}

// ScrapeDocument extracts messages from doc in document order. Messages whose
// body converts to nothing are skipped. A page no profile recognizes yields
// an empty transcript and a nil error; an unknown forced profile is an error.
func ScrapeDocument(doc *goquery.Document, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scrape")

	profiles := opts.Profiles
	if len(profiles) == 0 {
		profiles = selectors.Builtin()
	}
	conv := opts.Converter
	if conv == nil {
		conv = markdown.Native{}
	}

	profile, err := selectors.Resolve(doc, profiles, opts.Profile)
	if err != nil {
		if opts.Profile != "" || !errors.Is(err, selectors.ErrProfileNotFound) {
			return nil, err
		}
		logger.Warn("No selector profile matched the page.")
		return &Result{Transcript: transcript.New(Title(doc, ""), opts.URL)}, nil
	}

	t := transcript.New(Title(doc, profile.TitleSelector), opts.URL)
	msgs := doc.Find(profile.MessageSelector)
	logger.Debug("Selected message elements.",
		zap.String("profile", profile.Name),
		zap.Int("count", msgs.Length()))

	msgs.Each(func(i int, sel *goquery.Selection) {
		human := profile.IsHuman(sel)
		role := transcript.RoleAssistant
		if human {
			role = transcript.RoleHuman
		}

		content := profile.Content(sel, human)
		node := content.Get(0)
		text, err := conv.Convert(node)
		if err != nil {
			logger.Warn("Failed to convert message.",
				zap.Int("index", i),
				zap.String("xpath", NodeXPath(node)),
				zap.Error(err))
			return
		}
		if !t.Add(transcript.Message{Index: i, Role: role, Text: text, Source: transcript.SourceStatic}) {
			logger.Debug("Skipping empty message.",
				zap.Int("index", i),
				zap.String("role", string(role)),
				zap.String("xpath", NodeXPath(node)))
		}
	})

	return &Result{Transcript: t, Profile: profile, Elements: msgs.Length()}, nil
}

// Title returns the conversation title: the text of titleSelector when it
// matches, otherwise the document <title> with the site suffix removed.
func Title(doc *goquery.Document, titleSelector string) string {
	if titleSelector != "" {
		if text := strings.TrimSpace(doc.Find(titleSelector).First().Text()); text != "" {
			return text
		}
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	for _, suffix := range titleSuffixes {
		title = strings.TrimSuffix(title, suffix)
	}
	if strings.EqualFold(title, "Claude") {
		return ""
	}
	return strings.TrimSpace(title)
}
