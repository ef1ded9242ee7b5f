package scrape

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// anchorAttrs are attributes stable enough to root a path at, tried in order.
var anchorAttrs = []string{"id", "data-testid"}

// NodeXPath builds an XPath that locates node in its document. The path is
// anchored at the nearest ancestor whose id or data-testid identifies it
// uniquely, otherwise it is absolute. It is used to point at problem nodes in
// log output.
func NodeXPath(node *html.Node) string {
	if node == nil {
		return ""
	}
	root := node
	for root.Parent != nil {
		root = root.Parent
	}

	var steps []string
	anchored := false
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(n.Data)

		if step := anchorStep(root, n, tag); step != "" {
			steps = append(steps, step)
			anchored = true
			break
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", tag, siblingIndex(n, tag)))
	}

	if len(steps) == 0 {
		return "/"
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}

	path := strings.Join(steps, "/")
	if !anchored {
		path = "/" + path
	}
	return path
}

// anchorStep returns a //tag[@attr='v'] step for n when one of anchorAttrs
// matches n and nothing else in the document. Chat markup reuses test ids on
// every message, so those are skipped.
func anchorStep(root, n *html.Node, tag string) string {
	for _, a := range anchorAttrs {
		v := htmlquery.SelectAttr(n, a)
		if v == "" {
			continue
		}
		step := fmt.Sprintf(`//%s[@%s=%s]`, tag, a, quoteXPath(v))
		matches, err := htmlquery.QueryAll(root, step)
		if err == nil && len(matches) == 1 && matches[0] == n {
			return step
		}
	}
	return ""
}

// siblingIndex is the 1-based position of n among same-tag siblings.
func siblingIndex(n *html.Node, tag string) int {
	idx := 1
	for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
			idx++
		}
	}
	return idx
}

// quoteXPath quotes s as an XPath 1.0 string literal. Values holding both
// quote kinds are split with concat().
func quoteXPath(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
