package chunker

import (
	"context"
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

func markdownLanguage() *language {
	md := goldmark.New()
	return &language{
		name:      "markdown",
		chunkable: kinds("section"),
		parse: func(_ context.Context, src []byte) (*node, error) {
			return parseMarkdown(md, src), nil
		},
	}
}

type heading struct {
	level     int
	lineStart int
}

// parseMarkdown turns top-level headings into a tree of sections. A section runs
// from its heading to the next heading of the same or a higher level. Text before
// the first heading becomes its own section. Documents without headings produce
// a root with no children so the caller falls back to line chunking.
func parseMarkdown(md goldmark.Markdown, src []byte) *node {
	doc := md.Parser().Parse(text.NewReader(src))
	lines := newLineIndex(src)

	var headings []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		headings = append(headings, heading{
			level:     h.Level,
			lineStart: lines.lineStart(seg.Start),
		})
	}

	root := &node{
		kind:      "document",
		startByte: 0,
		endByte:   len(src),
		startRow:  0,
		endRow:    lines.row(len(src)),
	}
	if len(headings) == 0 {
		return root
	}

	if first := headings[0].lineStart; first > 0 {
		if pre := lines.section(src, 0, first); pre != nil {
			root.children = append(root.children, pre)
		}
	}

	root.children = append(root.children, buildSections(src, lines, headings, len(src))...)
	return root
}

// buildSections nests headings by level. end bounds the last section.
func buildSections(src []byte, lines *lineIndex, headings []heading, end int) []*node {
	var sections []*node
	for i := 0; i < len(headings); {
		h := headings[i]
		j := i + 1
		for j < len(headings) && headings[j].level > h.level {
			j++
		}

		sectionEnd := end
		if j < len(headings) {
			sectionEnd = headings[j].lineStart
		}

		if s := lines.section(src, h.lineStart, sectionEnd); s != nil {
			if j > i+1 {
				// heading line and text before the first subsection
				if intro := lines.section(src, h.lineStart, headings[i+1].lineStart); intro != nil {
					s.children = append(s.children, intro)
				}
				s.children = append(s.children, buildSections(src, lines, headings[i+1:j], sectionEnd)...)
			}
			sections = append(sections, s)
		}
		i = j
	}
	return sections
}

// lineIndex maps byte offsets to 0-based rows
type lineIndex struct {
	starts []int
}

func newLineIndex(src []byte) *lineIndex {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

func (l *lineIndex) row(offset int) int {
	return sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset }) - 1
}

func (l *lineIndex) lineStart(offset int) int {
	return l.starts[l.row(offset)]
}

// section builds a node for src[start:end] with trailing whitespace trimmed
func (l *lineIndex) section(src []byte, start, end int) *node {
	for end > start && isSpace(src[end-1]) {
		end--
	}
	if end <= start {
		return nil
	}
	return &node{
		kind:      "section",
		startByte: start,
		endByte:   end,
		startRow:  l.row(start),
		endRow:    l.row(end - 1),
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
