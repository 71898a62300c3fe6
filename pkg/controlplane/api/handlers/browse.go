package handlers

import (
	"context"
	"html/template"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/internal/telemetry"
	"github.com/marmos91/dittonet/pkg/device/netfs"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

const browsePrefix = "/browse/host/"

// HostSlots is the number of browsable host slots.
const HostSlots = 8

// Browser resolves a path on a configured host slot.
type Browser interface {
	Browse(ctx context.Context, hostSlot int, path string) ([]netfs.DirEntry, io.ReadCloser, error)
}

// ParseBrowsePath splits "/browse/host/{1..8}[/path]" into a zero-based
// host slot and the remaining path.
func ParseBrowsePath(p string) (slot int, rest string, ok bool) {
	s, found := strings.CutPrefix(p, browsePrefix)
	if !found || s == "" {
		return 0, "", false
	}
	if s[0] < '1' || s[0] > '0'+HostSlots {
		return 0, "", false
	}
	if len(s) > 1 && s[1] != '/' {
		return 0, "", false
	}
	return int(s[0] - '1'), s[1:], true
}

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Host {{.Slot}}: {{.Path}}</title></head>
<body><h1>Host {{.Slot}}: {{.Path}}</h1><ul>
{{- if .Parent}}
<li><a href="{{.Parent}}">..</a></li>
{{- end}}
{{- range .Entries}}
<li><a href="{{.Link}}">{{.Name}}{{if .IsDir}}/{{end}}</a>{{if not .IsDir}} {{.Size}}{{end}}</li>
{{- end}}
</ul></body></html>
`))

type listingEntry struct {
	netfs.DirEntry
	Link string
}

type listingPage struct {
	Slot    int
	Path    string
	Parent  string
	Entries []listingEntry
}

// BrowseHandler serves GET /browse/host/{1..8}[/path].
type BrowseHandler struct {
	browser Browser
	chunk   int
}

func NewBrowseHandler(b Browser, chunk int) *BrowseHandler {
	if chunk <= 0 {
		chunk = 512
	}
	return &BrowseHandler{browser: b, chunk: chunk}
}

// Browse lists a directory as HTML or downloads a file. The host slot is
// validated before any host is contacted.
func (h *BrowseHandler) Browse(w http.ResponseWriter, r *http.Request) {
	slot, rest, ok := ParseBrowsePath(r.URL.Path)
	if !ok {
		WriteText(w, http.StatusBadRequest, MsgBadHostSlot)
		return
	}
	if rest == "" {
		rest = "/"
	}
	if h.browser == nil {
		WriteError(w, r, derrors.Unsupported("http.browse"))
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanBrowse)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.HostSlot(slot), telemetry.Path(rest))
	r = r.WithContext(ctx)

	entries, rc, err := h.browser.Browse(ctx, slot, rest)
	if err != nil {
		telemetry.RecordError(ctx, err)
		WriteError(w, r, err)
		return
	}
	if rc != nil {
		h.download(w, r, rest, rc)
		return
	}
	h.list(w, slot, rest, entries)
}

func (h *BrowseHandler) list(w http.ResponseWriter, slot int, dir string, entries []netfs.DirEntry) {
	base := browsePrefix + strconv.Itoa(slot+1)
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	page := listingPage{Slot: slot + 1, Path: dir}
	if dir != "/" {
		page.Parent = base + path.Dir(strings.TrimSuffix(dir, "/"))
	}
	for _, e := range entries {
		page.Entries = append(page.Entries, listingEntry{DirEntry: e, Link: base + dir + e.Name})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := listingTemplate.Execute(w, page); err != nil {
		logger.Warn("Failed to render listing", logger.Err(err))
	}
}

func (h *BrowseHandler) download(w http.ResponseWriter, r *http.Request, name string, rc io.ReadCloser) {
	defer func() { _ = rc.Close() }()

	SetFileContentType(w, name)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(path.Base(name)))
	w.WriteHeader(http.StatusOK)

	sent, err := StreamChunks(w, rc, h.chunk)
	if err != nil {
		logger.WarnCtx(r.Context(), "Browse download aborted", logger.Path(name), logger.Err(err))
		return
	}
	logger.DebugCtx(r.Context(), "Browse download sent", logger.Path(name), logger.KeySize, sent)
}
