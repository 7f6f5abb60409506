package parser

import (
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
)

// sections collects heading-delimited units for the structured formats.
// Text before the first heading lands in an untitled unit.
type sections struct {
	nodes []*doctree.DocNode
	title string
	text  strings.Builder
	open  bool
}

func (s *sections) heading(title string) {
	s.flush()
	s.title = strings.TrimSpace(title)
	s.open = true
}

func (s *sections) para(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if s.text.Len() > 0 {
		s.text.WriteString("\n\n")
	}
	s.text.WriteString(text)
	s.open = true
}

func (s *sections) flush() {
	if s.open && (s.title != "" || s.text.Len() > 0) {
		s.nodes = append(s.nodes, &doctree.DocNode{Title: s.title, Text: s.text.String()})
	}
	s.title = ""
	s.text.Reset()
	s.open = false
}

func (s *sections) finish() []*doctree.DocNode {
	s.flush()
	return s.nodes
}
