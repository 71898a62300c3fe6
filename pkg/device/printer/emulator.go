package printer

import (
	"bytes"
	"fmt"
	"html"
	"io"
)

// EOL is the ATASCII end-of-line byte that terminates a print line.
const EOL byte = 0x9B

// emulator renders print lines into one output format. header runs before
// the first line of a job and footer once when the job is finalized.
type emulator interface {
	header(w io.Writer) error
	line(w io.Writer, data []byte) error
	footer(w io.Writer) error
}

// newEmulator returns the renderer for p. Formats that need a graphics
// backend (PDF, PNG) are not rendered here; callers fall back to Trim.
func newEmulator(p PaperType) (emulator, bool) {
	switch p {
	case Raw:
		return rawEmulator{}, true
	case Trim:
		return trimEmulator{}, true
	case ASCII:
		return asciiEmulator{}, true
	case HTML:
		return &htmlEmulator{}, true
	case HTMLATASCII:
		return &htmlEmulator{atascii: true}, true
	case SVG:
		return &svgEmulator{}, true
	default:
		return nil, false
	}
}

// cutLine returns data up to and including the first EOL. The remainder of
// a fixed-size print frame is padding.
func cutLine(data []byte) ([]byte, bool) {
	if i := bytes.IndexByte(data, EOL); i >= 0 {
		return data[:i+1], true
	}
	return data, false
}

type rawEmulator struct{}

func (rawEmulator) header(io.Writer) error { return nil }
func (rawEmulator) footer(io.Writer) error { return nil }

func (rawEmulator) line(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

type trimEmulator struct{}

func (trimEmulator) header(io.Writer) error { return nil }
func (trimEmulator) footer(io.Writer) error { return nil }

func (trimEmulator) line(w io.Writer, data []byte) error {
	l, _ := cutLine(data)
	_, err := w.Write(l)
	return err
}

// toASCII maps EOL to newline and drops everything outside printable ASCII.
func toASCII(data []byte) []byte {
	l, eol := cutLine(data)
	if eol {
		l = l[:len(l)-1]
	}
	out := make([]byte, 0, len(l)+1)
	for _, b := range l {
		if b >= 0x20 && b < 0x7F {
			out = append(out, b)
		}
	}
	if eol {
		out = append(out, '\n')
	}
	return out
}

type asciiEmulator struct{}

func (asciiEmulator) header(io.Writer) error { return nil }
func (asciiEmulator) footer(io.Writer) error { return nil }

func (asciiEmulator) line(w io.Writer, data []byte) error {
	_, err := w.Write(toASCII(data))
	return err
}

const htmlHeader = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>printout</title></head>
<body><pre>
`

const htmlFooter = "</pre></body></html>\n"

// htmlEmulator writes a preformatted page. In ATASCII mode non-printable
// bytes become private-use code points that an ATASCII web font renders.
type htmlEmulator struct {
	atascii bool
}

func (e *htmlEmulator) header(w io.Writer) error {
	_, err := io.WriteString(w, htmlHeader)
	return err
}

func (e *htmlEmulator) footer(w io.Writer) error {
	_, err := io.WriteString(w, htmlFooter)
	return err
}

func (e *htmlEmulator) line(w io.Writer, data []byte) error {
	if !e.atascii {
		_, err := io.WriteString(w, html.EscapeString(string(toASCII(data))))
		return err
	}

	l, eol := cutLine(data)
	if eol {
		l = l[:len(l)-1]
	}
	var sb bytes.Buffer
	for _, b := range l {
		if b >= 0x20 && b < 0x7F {
			sb.WriteString(html.EscapeString(string(rune(b))))
			continue
		}
		fmt.Fprintf(&sb, "&#x%04X;", 0xE000+int(b))
	}
	if eol {
		sb.WriteByte('\n')
	}
	_, err := w.Write(sb.Bytes())
	return err
}

const (
	svgLineHeight = 16
	svgFontSize   = 14
)

type svgEmulator struct {
	y       int
	partial bytes.Buffer
}

func (e *svgEmulator) header(w io.Writer) error {
	e.y = 0
	e.partial.Reset()
	_, err := fmt.Fprintf(w, "<svg xmlns=\"http://www.w3.org/2000/svg\" font-family=\"monospace\" font-size=\"%d\">\n", svgFontSize)
	return err
}

func (e *svgEmulator) line(w io.Writer, data []byte) error {
	text := toASCII(data)
	if n := len(text); n == 0 || text[n-1] != '\n' {
		e.partial.Write(text)
		return nil
	}
	e.partial.Write(text[:len(text)-1])
	return e.flush(w)
}

func (e *svgEmulator) flush(w io.Writer) error {
	e.y += svgLineHeight
	_, err := fmt.Fprintf(w, "<text x=\"0\" y=\"%d\" xml:space=\"preserve\">%s</text>\n",
		e.y, html.EscapeString(e.partial.String()))
	e.partial.Reset()
	return err
}

func (e *svgEmulator) footer(w io.Writer) error {
	if e.partial.Len() > 0 {
		if err := e.flush(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</svg>\n")
	return err
}
