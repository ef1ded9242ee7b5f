// Package markdown converts the HTML subtree of a chat message into Markdown.
//
// The native walker handles the small, shallow set of elements chat pages
// render (paragraphs, lists, fenced code, headings, quotes and the usual
// inline markup) and flattens anything else to its inline text.
package markdown

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	languageClass = regexp.MustCompile(`(?:^|\s)(?:language|lang)-([\w+#-]+)`)
	backtickRuns  = regexp.MustCompile("`{3,}")
)

// ListKind selects the bullet style of a list.
type ListKind int

const (
	Unordered ListKind = iota
	Ordered
)

// walker accumulates block output in a single buffer so that later blocks
// can inspect (and edit) what earlier siblings and ancestors already wrote.
type walker struct {
	out strings.Builder
}

// ProcessContent converts the children of el to Markdown. depth is the list
// nesting depth used for lists found directly under el.
func ProcessContent(el *html.Node, depth int) string {
	w := &walker{}
	w.content(el, depth)
	return w.out.String()
}

// Normalize trims the output and collapses runs of blank lines outside
// fenced code blocks. Fence contents are left byte for byte.
func Normalize(md string) string {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))

	fence := ""
	blank := false
	for _, line := range lines {
		marker := strings.TrimLeft(line, " ")
		switch {
		case fence != "":
			if strings.TrimRight(marker, " ") == fence {
				fence = ""
			}
		case strings.HasPrefix(marker, "```"):
			fence = marker[:len(marker)-len(strings.TrimLeft(marker, "`"))]
		case line == "":
			if blank {
				continue
			}
			blank = true
			out = append(out, line)
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// fenceFor returns a backtick fence longer than any backtick run in code.
func fenceFor(code string) string {
	n := 3
	for _, run := range backtickRuns.FindAllString(code, -1) {
		if len(run) >= n {
			n = len(run) + 1
		}
	}
	return strings.Repeat("`", n)
}

func (w *walker) content(el *html.Node, depth int) {
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			// Whitespace between blocks is source formatting, not content.
			if strings.TrimSpace(c.Data) == "" {
				continue
			}
			w.out.WriteString(c.Data)
		case html.ElementNode:
			w.element(c, depth)
		}
	}
}

func (w *walker) element(c *html.Node, depth int) {
	switch c.DataAtom {
	case atom.P:
		w.out.WriteString(ProcessInline(c) + "\n\n")
	case atom.Ol:
		w.out.WriteString(ProcessList(c, Ordered, depth) + "\n")
	case atom.Ul:
		w.out.WriteString(ProcessList(c, Unordered, depth) + "\n")
	case atom.Pre:
		w.codeBlock(c)
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level, _ := strconv.Atoi(c.Data[1:])
		w.out.WriteString(strings.Repeat("#", level) + " " + strings.TrimSpace(ProcessInline(c)) + "\n\n")
	case atom.Blockquote:
		w.out.WriteString(quote(Normalize(ProcessContent(c, depth))) + "\n\n")
	case atom.Hr:
		w.out.WriteString("---\n\n")
	case atom.Table:
		w.out.WriteString(table(c) + "\n\n")
	case atom.Script, atom.Style, atom.Button, atom.Svg, atom.Template, atom.Noscript:
		// Chrome around the message, never content.
	default:
		if isContainer(c) && hasBlockChild(c) {
			w.content(c, depth)
			return
		}
		text := ProcessInline(c)
		if strings.TrimSpace(text) == "" {
			return
		}
		w.out.WriteString(text + "\n\n")
	}
}

// codeBlock emits a fenced block for a <pre>. Chat pages print the language
// name as a visible label right before the block; when that label is the last
// line already written it is removed so it isn't duplicated above the fence.
func (w *walker) codeBlock(pre *html.Node) {
	code := findFirst(pre, atom.Code)
	src := pre
	if code != nil {
		src = code
	}
	lang := Language(src)
	if lang == "" && code != nil {
		lang = Language(pre)
	}
	text := strings.Trim(TextContent(src), "\r\n")

	if lang != "" {
		w.dropTrailingLine(lang)
	}
	fence := fenceFor(text)
	w.out.WriteString(fence + lang + "\n" + text + "\n" + fence + "\n\n")
}

// dropTrailingLine removes the last non-empty line of the output when it
// equals line (case-insensitively, ignoring surrounding whitespace).
func (w *walker) dropTrailingLine(line string) {
	current := w.out.String()
	trimmed := strings.TrimRight(current, " \t\r\n")
	if trimmed == "" {
		return
	}
	start := strings.LastIndex(trimmed, "\n") + 1
	if !strings.EqualFold(strings.TrimSpace(trimmed[start:]), strings.TrimSpace(line)) {
		return
	}
	w.out.Reset()
	w.out.WriteString(trimmed[:start])
	if start > 0 && !strings.HasSuffix(trimmed[:start], "\n\n") {
		w.out.WriteString("\n")
	}
}

// Language returns the code language named by a language-xxx (or lang-xxx)
// class on n, or "".
func Language(n *html.Node) string {
	if m := languageClass.FindStringSubmatch(attr(n, "class")); m != nil {
		return m[1]
	}
	return attr(n, "data-language")
}

// ProcessList renders the element children of list as Markdown list items,
// two spaces of indent per depth. Lists nested directly inside an item are
// rendered after the item at depth+1.
func ProcessList(list *html.Node, kind ListKind, depth int) string {
	var b strings.Builder
	indent := strings.Repeat("  ", depth)

	n := 1
	if kind == Ordered {
		if start, err := strconv.Atoi(attr(list, "start")); err == nil {
			n = start
		}
	}

	for item := list.FirstChild; item != nil; item = item.NextSibling {
		if item.Type != html.ElementNode {
			continue
		}
		prefix := "- "
		if kind == Ordered {
			prefix = strconv.Itoa(n) + ". "
		}
		b.WriteString(indent + prefix + collapseLines(strings.TrimSpace(ProcessInline(item))) + "\n")

		for child := item.FirstChild; child != nil; child = child.NextSibling {
			switch child.DataAtom {
			case atom.Ol:
				b.WriteString(ProcessList(child, Ordered, depth+1))
			case atom.Ul:
				b.WriteString(ProcessList(child, Unordered, depth+1))
			}
		}
		n++
	}
	return b.String()
}

// ProcessInline flattens el to inline Markdown. Nested lists are skipped; the
// list walker renders them.
func ProcessInline(el *html.Node) string {
	var b strings.Builder
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			b.WriteString(inlineElement(c))
		}
	}
	return b.String()
}

func inlineElement(c *html.Node) string {
	switch c.DataAtom {
	case atom.Code:
		return inlineCode(TextContent(c))
	case atom.Strong, atom.B:
		return wrap(ProcessInline(c), "**")
	case atom.Em, atom.I:
		return wrap(ProcessInline(c), "*")
	case atom.Del, atom.S:
		return wrap(ProcessInline(c), "~~")
	case atom.A:
		text := ProcessInline(c)
		href := attr(c, "href")
		if href == "" {
			return text
		}
		if strings.TrimSpace(text) == "" {
			text = href
		}
		return "[" + text + "](" + href + ")"
	case atom.Img:
		if src := attr(c, "src"); src != "" {
			return "![" + attr(c, "alt") + "](" + src + ")"
		}
		return ""
	case atom.Br:
		return "\n"
	case atom.Ol, atom.Ul, atom.Script, atom.Style, atom.Button, atom.Svg, atom.Template:
		return ""
	case atom.P, atom.Div:
		// Block children inside an inline context (e.g. loose list items).
		inner := ProcessInline(c)
		if strings.TrimSpace(inner) == "" {
			return ""
		}
		return inner + " "
	default:
		return ProcessInline(c)
	}
}

// wrap surrounds text with marker, keeping surrounding whitespace outside the
// markers so the result stays valid emphasis.
func wrap(text, marker string) string {
	core := strings.TrimSpace(text)
	if core == "" {
		return text
	}
	lead := text[:strings.Index(text, core)]
	trail := text[len(lead)+len(core):]
	return lead + marker + core + marker + trail
}

func inlineCode(text string) string {
	if strings.Contains(text, "`") {
		return "`` " + text + " ``"
	}
	return "`" + text + "`"
}

func quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

func collapseLines(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " ")
}
