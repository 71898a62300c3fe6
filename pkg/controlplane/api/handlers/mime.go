package handlers

import (
	"net/http"
	"path"
	"strings"
)

const octetStream = "application/octet-stream"

var mimeTypes = map[string]string{
	"html":    "text/html",
	"css":     "text/css",
	"png":     "image/png",
	"jpg":     "image/jpeg",
	"gif":     "image/gif",
	"svg":     "image/svg+xml",
	"pdf":     "application/pdf",
	"ico":     "image/x-icon",
	"txt":     "text/plain",
	"js":      "text/javascript",
	"wav":     "audio/wav",
	"bin":     octetStream,
	"com":     octetStream,
	"exe":     octetStream,
	"xex":     octetStream,
	"atr":     octetStream,
	"atx":     octetStream,
	"cas":     octetStream,
	"tur":     octetStream,
	"atascii": octetStream,
}

// MimeType returns the content type for name's extension, or "" when the
// extension is not known.
func MimeType(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	return mimeTypes[strings.ToLower(ext)]
}

// SetFileContentType sets Content-Type from name's extension. For an
// unknown extension no Content-Type is sent at all; a nil header value
// stops net/http from sniffing one.
func SetFileContentType(w http.ResponseWriter, name string) {
	if mt := MimeType(name); mt != "" {
		w.Header().Set("Content-Type", mt)
		return
	}
	w.Header()["Content-Type"] = nil
}
