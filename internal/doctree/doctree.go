package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Pages or sections, in document order
}

// DocNode is one logical unit of extracted text: a PDF page, a section, a paragraph.
type DocNode struct {
	Title string // Section heading (empty for plain text units)
	Text  string
	Page  int // Source page (0 if N/A)
}

// PlainText flattens the tree into the text handed to the chunker.
// Each unit is whitespace-normalized; empty units are dropped and the
// rest are joined with a single newline.
func (t *DocTree) PlainText() string {
	parts := make([]string, 0, len(t.Children))
	for _, n := range t.Children {
		var unit string
		switch {
		case n.Title != "" && n.Text != "":
			unit = NormalizeSpace(n.Title + " " + n.Text)
		case n.Title != "":
			unit = NormalizeSpace(n.Title)
		default:
			unit = NormalizeSpace(n.Text)
		}
		if unit != "" {
			parts = append(parts, unit)
		}
	}
	return strings.Join(parts, "\n")
}

// NormalizeSpace replaces invalid UTF-8 with U+FFFD and NUL bytes with a
// space, then collapses whitespace runs to one space.
func NormalizeSpace(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Chunk is a bounded contiguous excerpt of one source's text, the unit of retrieval.
type Chunk struct {
	ID      string `json:"id"`     // "<source>:<ordinal>"
	Source  string `json:"source"` // originating document, e.g. a filename
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
}
