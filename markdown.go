package main

import (
	"html"
	"regexp"
	"strings"
)

// The assistant is told to use a tiny markup dialect: *bold* spans and lines
// starting with "* " or "1. " as list items. Everything here parses that
// dialect into a tagged node representation and renders it with every text
// fragment escaped, so free text from the model can never smuggle markup into
// the page.

type mdNodeKind int

const (
	mdText mdNodeKind = iota
	mdBold
	mdListItem
	mdLineBreak
)

type mdNode struct {
	kind   mdNodeKind
	text   string   // mdText, mdBold
	inline []mdNode // mdListItem
}

var (
	boldRe     = regexp.MustCompile(`\*(.+?)\*`)
	listLineRe = regexp.MustCompile(`^(?:\*|\d+\.) `)
)

// parseMarkdown turns raw assistant text into the node stream. Rules, in
// order: bold spans are matched non-greedily within a line; a line whose
// prefix matches the list marker becomes a list item holding the remainder
// after the first space; every other line is emitted as-is, separated from
// the previous plain line by a line break.
func parseMarkdown(text string) []mdNode {
	var nodes []mdNode
	prevPlain := false
	for _, line := range strings.Split(text, "\n") {
		if loc := listLineRe.FindString(line); loc != "" {
			nodes = append(nodes, mdNode{kind: mdListItem, inline: parseInline(line[len(loc):])})
			prevPlain = false
			continue
		}
		if prevPlain {
			nodes = append(nodes, mdNode{kind: mdLineBreak})
		}
		nodes = append(nodes, parseInline(line)...)
		prevPlain = true
	}
	return nodes
}

func parseInline(line string) []mdNode {
	var nodes []mdNode
	rest := line
	for {
		loc := boldRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		if loc[0] > 0 {
			nodes = append(nodes, mdNode{kind: mdText, text: rest[:loc[0]]})
		}
		nodes = append(nodes, mdNode{kind: mdBold, text: rest[loc[2]:loc[3]]})
		rest = rest[loc[1]:]
	}
	if rest != "" {
		nodes = append(nodes, mdNode{kind: mdText, text: rest})
	}
	return nodes
}

// renderHTML serializes the node stream. Consecutive list items share one
// <ul>; a non-list node closes any open list first.
func renderHTML(nodes []mdNode) string {
	var b strings.Builder
	listOpen := false
	closeList := func() {
		if listOpen {
			b.WriteString("</ul>")
			listOpen = false
		}
	}
	for _, n := range nodes {
		switch n.kind {
		case mdListItem:
			if !listOpen {
				b.WriteString("<ul>")
				listOpen = true
			}
			b.WriteString("<li>")
			b.WriteString(renderHTML(n.inline))
			b.WriteString("</li>")
		case mdBold:
			closeList()
			b.WriteString("<strong>")
			b.WriteString(html.EscapeString(n.text))
			b.WriteString("</strong>")
		case mdLineBreak:
			closeList()
			b.WriteString("<br>")
		default:
			closeList()
			b.WriteString(html.EscapeString(n.text))
		}
	}
	closeList()
	return b.String()
}

// RenderMarkdown converts one turn's text to display markup. Applied at
// render time only; stored turns stay plain text.
func RenderMarkdown(text string) string {
	return renderHTML(parseMarkdown(text))
}
