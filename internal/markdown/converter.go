package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	EngineNative     = "native"
	EngineCommonMark = "commonmark"
)

// ErrUnknownEngine is returned by New for an unrecognized engine name.
var ErrUnknownEngine = errors.New("unknown markdown engine")

// Converter turns the content node of one message into Markdown.
type Converter interface {
	Convert(n *html.Node) (string, error)
}

// New returns the converter for engine. An empty name selects the native
// walker.
func New(engine string) (Converter, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineNative:
		return Native{}, nil
	case EngineCommonMark:
		return CommonMark{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// Native is the hand-written walker tuned for chat markup.
type Native struct{}

func (Native) Convert(n *html.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	return Normalize(ProcessContent(n, 0)), nil
}

// CommonMark delegates to html-to-markdown. It handles arbitrary markup but
// doesn't know about the chat page's language labels.
type CommonMark struct{}

func (CommonMark) Convert(n *html.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("failed to render node: %w", err)
		}
	}
	md, err := htmltomarkdown.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("html-to-markdown conversion failed: %w", err)
	}
	return Normalize(md), nil
}

// ConvertString parses an HTML fragment and converts it with c.
func ConvertString(c Converter, fragment string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", fmt.Errorf("failed to parse fragment: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return c.Convert(body)
}
