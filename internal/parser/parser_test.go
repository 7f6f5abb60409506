package parser

import (
	"strings"
	"testing"
)

func TestForFile(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"cv.pdf", "*parser.PDFParser", false},
		{"CV.PDF", "*parser.PDFParser", false},
		{"notes.txt", "*parser.TextParser", false},
		{"readme.md", "*parser.MarkdownParser", false},
		{"page.html", "*parser.HTMLParser", false},
		{"letter.docx", "*parser.DOCXParser", false},
		{"data.csv", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		p, err := ForFile(tt.name, Options{})
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
			if IsSupportedExtension(tt.name) {
				t.Errorf("%s: expected unsupported", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if got := typeName(p); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
		if !IsSupportedExtension(tt.name) {
			t.Errorf("%s: expected supported", tt.name)
		}
	}
}

func TestForFile_PDFFallbackOption(t *testing.T) {
	p, err := ForFile("a.pdf", Options{PDFFallbackPdftotext: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.(*PDFParser).FallbackPdftotext {
		t.Error("expected fallback to be enabled")
	}
}

func TestPDFParser_RejectsGarbage(t *testing.T) {
	p := &PDFParser{}
	if _, err := p.Parse(strings.NewReader("this is not a pdf"), "broken.pdf"); err == nil {
		t.Fatal("expected error for malformed pdf")
	}
	if _, err := p.Parse(strings.NewReader(""), "empty.pdf"); err == nil {
		t.Fatal("expected error for empty pdf")
	}
}

func TestDOCXParser_RejectsGarbage(t *testing.T) {
	p := &DOCXParser{}
	if _, err := p.Parse(strings.NewReader("not a zip"), "broken.docx"); err == nil {
		t.Fatal("expected error for malformed docx")
	}
}

func typeName(p Parser) string {
	switch p.(type) {
	case *PDFParser:
		return "*parser.PDFParser"
	case *TextParser:
		return "*parser.TextParser"
	case *MarkdownParser:
		return "*parser.MarkdownParser"
	case *HTMLParser:
		return "*parser.HTMLParser"
	case *DOCXParser:
		return "*parser.DOCXParser"
	}
	return "unknown"
}
