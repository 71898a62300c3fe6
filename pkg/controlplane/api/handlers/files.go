package handlers

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/bufpool"
	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/spf13/afero"
)

// maxFileQuery bounds the file name accepted by /file?<name>.
const maxFileQuery = 59

// Parser substitutes dynamic values into a page before it is served.
type Parser interface {
	Parse(contents string) string
}

var tagPattern = regexp.MustCompile(`<%([A-Za-z0-9_]+)%>`)

// TagParser replaces <%NAME%> with the result of the func registered for
// NAME. Unknown tags are left as they are.
type TagParser map[string]func() string

func (p TagParser) Parse(contents string) string {
	return tagPattern.ReplaceAllStringFunc(contents, func(tag string) string {
		name := tag[2 : len(tag)-2]
		if fn, ok := p[name]; ok {
			return fn()
		}
		return tag
	})
}

// FileHandler serves pages from the web root.
type FileHandler struct {
	fs       afero.Fs
	parser   Parser
	chunk    int
	maxParse int64
}

// NewFileHandler serves files from root. Streams use chunk-sized writes;
// pages parsed whole may be at most maxParse bytes.
func NewFileHandler(root afero.Fs, parser Parser, chunk int, maxParse int64) *FileHandler {
	if chunk <= 0 {
		chunk = 512
	}
	return &FileHandler{fs: root, parser: parser, chunk: chunk, maxParse: maxParse}
}

// Index serves index.html with placeholders substituted.
func (h *FileHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.SendParsed(w, r, "index.html")
}

// File streams the file named by the raw query string.
func (h *FileHandler) File(w http.ResponseWriter, r *http.Request) {
	name := r.URL.RawQuery
	if name == "" || len(name) > maxFileQuery {
		WriteText(w, http.StatusBadRequest, MsgBadFile)
		return
	}
	if unescaped, err := url.QueryUnescape(name); err == nil {
		name = unescaped
	}
	h.Send(w, r, name)
}

// Static serves anything no other route matched. A directory serves its
// index.html; a missing file is a 404.
func (h *FileHandler) Static(w http.ResponseWriter, r *http.Request) {
	name := clean(r.URL.Path)
	info, err := h.fs.Stat(name)
	if err == nil && info.IsDir() {
		name = path.Join(name, "index.html")
		_, err = h.fs.Stat(name)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			WriteText(w, http.StatusNotFound, MsgStaticNotFound)
			return
		}
		WriteError(w, r, derrors.Open("http.static", err))
		return
	}
	h.Send(w, r, name)
}

// Send streams name verbatim in chunks.
func (h *FileHandler) Send(w http.ResponseWriter, r *http.Request, name string) {
	name = clean(name)
	f, info, err := h.open(name)
	if err != nil {
		logger.DebugCtx(r.Context(), "Failed to open file for sending", logger.Path(name), logger.Err(err))
		WriteError(w, r, derrors.Open("http.send", err))
		return
	}
	defer func() { _ = f.Close() }()

	SetFileContentType(w, name)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := StreamChunks(w, f, h.chunk); err != nil {
		logger.DebugCtx(r.Context(), "File transfer aborted", logger.Path(name), logger.Err(err))
	}
}

// SendParsed loads name whole, substitutes placeholders and sends it.
func (h *FileHandler) SendParsed(w http.ResponseWriter, r *http.Request, name string) {
	name = clean(name)
	f, info, err := h.open(name)
	if err != nil {
		logger.DebugCtx(r.Context(), "Failed to open file for parsing", logger.Path(name), logger.Err(err))
		WriteError(w, r, derrors.Open("http.parse", err))
		return
	}
	defer func() { _ = f.Close() }()

	if h.maxParse > 0 && info.Size() > h.maxParse {
		WriteError(w, r, derrors.E(derrors.KindOutOfMemory, "http.parse",
			errors.New("page exceeds parse buffer")))
		return
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		WriteError(w, r, derrors.IO("http.parse", err))
		return
	}

	contents := string(raw)
	if h.parser != nil {
		contents = h.parser.Parse(contents)
	}

	SetFileContentType(w, name)
	w.Header().Set("Content-Length", strconv.Itoa(len(contents)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, contents)
	}
}

func (h *FileHandler) open(name string) (afero.File, fs.FileInfo, error) {
	f, err := h.fs.Open(name)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return f, info, nil
}

// clean roots name so it cannot escape the web root.
func clean(name string) string {
	return path.Clean("/" + strings.TrimLeft(name, "/"))
}

// StreamChunks copies src to w in writes of at most chunk bytes.
func StreamChunks(w io.Writer, src io.Reader, chunk int) (int64, error) {
	buf := bufpool.Get(chunk)
	defer bufpool.Put(buf)
	// Hide ReaderFrom/WriterTo so the chunk size is honoured.
	return io.CopyBuffer(struct{ io.Writer }{w}, struct{ io.Reader }{src}, buf)
}
