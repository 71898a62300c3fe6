package printer

import (
	"fmt"
	"strings"
)

// PaperType selects the output format a printer renders into.
type PaperType uint8

const (
	Raw PaperType = iota
	Trim
	ASCII
	PDF
	SVG
	PNG
	HTML
	HTMLATASCII
)

var paperNames = [...]string{
	Raw:         "RAW",
	Trim:        "TRIM",
	ASCII:       "ASCII",
	PDF:         "PDF",
	SVG:         "SVG",
	PNG:         "PNG",
	HTML:        "HTML",
	HTMLATASCII: "HTML_ATASCII",
}

func (p PaperType) String() string {
	if int(p) < len(paperNames) {
		return paperNames[p]
	}
	return fmt.Sprintf("PAPER(%d)", uint8(p))
}

// ParsePaperType matches a configured printer type case-insensitively.
func ParsePaperType(s string) (PaperType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range paperNames {
		if name == s {
			return PaperType(i), true
		}
	}
	return Trim, false
}

// Supported lists the paper types this printer can render.
func Supported() []PaperType {
	var out []PaperType
	for p := range PaperType(len(paperNames)) {
		if _, ok := newEmulator(p); ok {
			out = append(out, p)
		}
	}
	return out
}

// Extension is the file extension a finished printout is served with.
func (p PaperType) Extension() string {
	switch p {
	case Raw:
		return "bin"
	case Trim:
		return "atascii"
	case ASCII:
		return "txt"
	case PDF:
		return "pdf"
	case SVG:
		return "svg"
	case PNG:
		return "png"
	case HTML, HTMLATASCII:
		return "html"
	default:
		return "bin"
	}
}

// Inline reports whether a browser should display the printout instead of
// downloading it.
func (p PaperType) Inline() bool {
	switch p {
	case ASCII, SVG, PNG, HTML, HTMLATASCII:
		return true
	default:
		return false
	}
}

// Disposition is the Content-Disposition value for a printout named name.
func (p PaperType) Disposition(name string) string {
	if p.Inline() {
		return fmt.Sprintf("inline; filename=%q", name)
	}
	return fmt.Sprintf("attachment; filename=%q", name)
}
