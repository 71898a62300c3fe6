// Package netfs implements the N: device: a legacy disk-like device whose
// OPEN target is a URL resolved to one of several network protocols (TNFS,
// HTTP, FTP, SMB, S3, local SD storage).
//
// The adapter keeps at most one protocol session, created on OPEN and
// released on CLOSE or on the next OPEN. Extended operations (delete,
// rename, mkdir, rmdir) run on a throw-away session so no network handle
// outlives the command that needed it.
package netfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/internal/telemetry"
	"github.com/marmos91/dittonet/pkg/device"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// SpecialListDir fills the SPECIAL buffer with the listing of the
// directory of the last opened URL.
const SpecialListDir = 0xFF

var (
	// errStalled is reported when every read attempt timed out.
	errStalled = errors.New("transport stalled")

	errNoSession = errors.New("no open session")
)

// Metrics records netfs activity. A nil Metrics disables collection.
type Metrics interface {
	ObserveOperation(scheme, op string, duration time.Duration, err error)
	RecordBytes(scheme, direction string, n int)
}

// Adapter is the network filesystem device.
type Adapter struct {
	cfg      Config
	registry *Registry
	metrics  Metrics

	session Protocol
	url     *ParsedURL
	mode    Mode
	cursor  uint32
	eof     bool
	lastErr byte
}

var _ device.Adapter = (*Adapter)(nil)

// New creates an N: device. cfg must have defaults applied. m may be nil.
func New(cfg Config, registry *Registry, m Metrics) *Adapter {
	return &Adapter{
		cfg:      cfg,
		registry: registry,
		metrics:  m,
		lastErr:  device.CodeSuccess,
	}
}

func (a *Adapter) Name() string { return "netfs" }

// URL returns the target of the open session, or nil.
func (a *Adapter) URL() *ParsedURL {
	if a.session == nil {
		return nil
	}
	return a.url
}

// resolve parses target and finds its protocol factory.
func (a *Adapter) resolve(op, target string) (*ParsedURL, Factory, error) {
	u, err := Parse(target, a.cfg.DefaultScheme)
	if err != nil {
		return nil, nil, derrors.BadRequest(op, "%v", err)
	}
	f, err := a.registry.Lookup(u.Scheme)
	if err != nil {
		return nil, nil, derrors.BadRequest(op, "%v", err)
	}
	return u, f, nil
}

// Open closes any previous session, then opens target. aux1 of cmd selects
// read, write, append or directory mode.
func (a *Adapter) Open(ctx context.Context, target string, cmd *device.Command) (err error) {
	a.Close()

	var aux1 byte
	if cmd != nil {
		aux1 = cmd.Aux1
	}
	mode := ModeFromAux1(aux1)

	u, factory, err := a.resolve("netfs.open", target)
	if err != nil {
		return a.fail(err)
	}

	ctx, span := telemetry.StartNetFSSpan(ctx, telemetry.SpanNetFSOpen, u.Scheme,
		telemetry.Host(u.Host), telemetry.Path(u.Path), telemetry.Directory(mode.Has(ModeDirectory)))
	defer span.End()

	start := time.Now()
	defer func() {
		a.observe(u.Scheme, "open", start, err)
		telemetry.RecordError(ctx, err)
	}()

	dctx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()

	p := factory()
	if mode.Has(ModeDirectory) {
		lister, ok := p.(DirLister)
		if !ok {
			return a.fail(derrors.Unsupported("netfs.list"))
		}
		entries, err := lister.ReadDir(dctx, u)
		_ = p.Close()
		if err != nil {
			return a.fail(classify(derrors.KindOpen, "netfs.list", err))
		}
		p = newListing(entries)
	} else if err := p.Open(dctx, u, mode); err != nil {
		return a.fail(classify(derrors.KindOpen, "netfs.open", err))
	}

	a.session = p
	a.url = u
	a.mode = mode
	a.cursor = 0
	a.eof = false
	a.lastErr = device.CodeSuccess

	logger.DebugCtx(ctx, "N: session opened",
		logger.Scheme(u.Scheme), logger.KeyURL, u.Redacted(), logger.KeyMode, mode.String())
	return nil
}

// Read fills buf completely unless the data ends first. Stalled or failed
// transport reads are retried up to MaxReadAttempts times, each bounded
// by AttemptTimeout; a short count is only ever returned with io.EOF or
// with an I/O error.
func (a *Adapter) Read(ctx context.Context, buf []byte) (int, error) {
	if a.session == nil {
		return 0, a.fail(derrors.E(derrors.KindIO, "netfs.read", errNoSession))
	}
	if !a.mode.Has(ModeRead) {
		return 0, a.fail(derrors.BadRequest("netfs.read", "opened write-only"))
	}

	total := 0
	attempts := 0
	var lastErr error

	for total < len(buf) {
		actx, cancel := context.WithTimeout(ctx, a.cfg.AttemptTimeout)
		n, err := a.session.Read(actx, buf[total:])
		cancel()
		total += n

		if errors.Is(err, io.EOF) {
			a.eof = true
			break
		}
		if err != nil || n == 0 {
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
			attempts++
			lastErr = err
			logger.DebugCtx(ctx, "N: read attempt made no progress",
				logger.Attempt(attempts), logger.BytesRead(total), logger.Err(err))
			if attempts >= a.cfg.MaxReadAttempts {
				break
			}
			continue
		}
	}

	a.cursor += uint32(total)
	a.record("read", total)

	switch {
	case total == len(buf):
		a.lastErr = device.CodeSuccess
		return total, nil
	case a.eof:
		a.lastErr = device.CodeEOF
		return total, io.EOF
	default:
		if lastErr == nil || errors.Is(lastErr, context.DeadlineExceeded) {
			lastErr = errStalled
		}
		return total, a.fail(derrors.IO("netfs.read", lastErr))
	}
}

// Write forwards buf to the session.
func (a *Adapter) Write(ctx context.Context, buf []byte) (int, error) {
	if a.session == nil {
		return 0, a.fail(derrors.E(derrors.KindIO, "netfs.write", errNoSession))
	}
	if !a.mode.Has(ModeWrite) {
		return 0, a.fail(derrors.BadRequest("netfs.write", "opened read-only"))
	}

	wctx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()

	n, err := a.session.Write(wctx, buf)
	a.cursor += uint32(n)
	a.record("write", n)
	if err != nil {
		return n, a.fail(classify(derrors.KindIO, "netfs.write", err))
	}
	a.lastErr = device.CodeSuccess
	return n, nil
}

// Status reports bytes waiting, whether a session is open and the last
// error. End of data is reported as CodeEOF with nothing waiting.
func (a *Adapter) Status() device.Status {
	if a.session == nil {
		return device.Status{Error: a.lastErr}
	}

	if a.eof || a.session.EOF() {
		return device.Status{Connected: true, Error: device.CodeEOF}
	}

	waiting := a.session.Available()
	if waiting < 0 {
		waiting = 0
	}
	if waiting > 0xFFFF {
		waiting = 0xFFFF
	}
	return device.Status{BytesWaiting: uint16(waiting), Connected: true, Error: a.lastErr}
}

// Close releases the session. Failures (a rejected upload, a dropped
// connection) are logged; the legacy host has no way to receive them.
func (a *Adapter) Close() {
	if a.session == nil {
		return
	}

	start := time.Now()
	err := a.session.Close()
	a.observe(a.url.Scheme, "close", start, err)
	if err != nil {
		logger.Warn("N: close failed", logger.Scheme(a.url.Scheme), logger.KeyURL, a.url.Redacted(), logger.Err(err))
	}

	a.session = nil
	a.eof = false
	a.cursor = 0
}

// Special handles SpecialListDir; every other code is unsupported.
func (a *Adapter) Special(ctx context.Context, buf []byte, cmd *device.Command) (int, error) {
	if cmd == nil || cmd.Code != SpecialListDir {
		return 0, a.fail(derrors.Unsupported("netfs.special"))
	}
	if a.url == nil {
		return 0, a.fail(derrors.BadRequest("netfs.special", "no directory selected"))
	}

	dir := a.url.Dir()
	factory, err := a.registry.Lookup(dir.Scheme)
	if err != nil {
		return 0, a.fail(derrors.BadRequest("netfs.special", "%v", err))
	}

	p := factory()
	defer func() { _ = p.Close() }()

	lister, ok := p.(DirLister)
	if !ok {
		return 0, a.fail(derrors.Unsupported("netfs.list"))
	}

	lctx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()

	ctx, span := telemetry.StartNetFSSpan(lctx, telemetry.SpanNetFSListDir, dir.Scheme, telemetry.Path(dir.Path))
	defer span.End()

	entries, err := lister.ReadDir(ctx, dir)
	if err != nil {
		return 0, a.fail(classify(derrors.KindIO, "netfs.list", err))
	}
	a.lastErr = device.CodeSuccess
	return copy(buf, FormatListing(entries)), nil
}

func (a *Adapter) Delete(ctx context.Context, target string, _ *device.Command) error {
	return a.extended(ctx, "delete", target, func(ctx context.Context, p Protocol, u *ParsedURL) error {
		r, ok := p.(Remover)
		if !ok {
			return derrors.Unsupported("netfs.delete")
		}
		return r.Remove(ctx, u)
	})
}

// Rename takes "old,new". A new name without a leading slash stays in the
// directory of the old one.
func (a *Adapter) Rename(ctx context.Context, target string, _ *device.Command) error {
	i := strings.LastIndexByte(target, ',')
	if i < 0 {
		return a.fail(derrors.BadRequest("netfs.rename", "expected old,new"))
	}
	from, newName := target[:i], strings.TrimSpace(target[i+1:])
	if newName == "" {
		return a.fail(derrors.BadRequest("netfs.rename", "empty new name"))
	}

	return a.extended(ctx, "rename", from, func(ctx context.Context, p Protocol, u *ParsedURL) error {
		r, ok := p.(Renamer)
		if !ok {
			return derrors.Unsupported("netfs.rename")
		}
		to := newName
		if !strings.HasPrefix(to, "/") {
			to = u.Dir().Path + to
		}
		return r.Rename(ctx, u, u.WithPath(to))
	})
}

func (a *Adapter) Mkdir(ctx context.Context, target string, _ *device.Command) error {
	return a.extended(ctx, "mkdir", target, func(ctx context.Context, p Protocol, u *ParsedURL) error {
		m, ok := p.(DirMaker)
		if !ok {
			return derrors.Unsupported("netfs.mkdir")
		}
		return m.Mkdir(ctx, u)
	})
}

func (a *Adapter) Rmdir(ctx context.Context, target string, _ *device.Command) error {
	return a.extended(ctx, "rmdir", target, func(ctx context.Context, p Protocol, u *ParsedURL) error {
		m, ok := p.(DirRemover)
		if !ok {
			return derrors.Unsupported("netfs.rmdir")
		}
		return m.Rmdir(ctx, u)
	})
}

// Note reports the byte position of the open session.
func (a *Adapter) Note(context.Context) (uint32, error) {
	if a.session == nil {
		return 0, a.fail(derrors.E(derrors.KindIO, "netfs.note", errNoSession))
	}
	return a.cursor, nil
}

// Point seeks the open session when its protocol supports it.
func (a *Adapter) Point(ctx context.Context, pos uint32) error {
	if a.session == nil {
		return a.fail(derrors.E(derrors.KindIO, "netfs.point", errNoSession))
	}
	s, ok := a.session.(Seeker)
	if !ok {
		return a.fail(derrors.Unsupported("netfs.point"))
	}

	sctx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()

	if err := s.Seek(sctx, int64(pos)); err != nil {
		return a.fail(classify(derrors.KindIO, "netfs.point", err))
	}
	a.cursor = pos
	a.eof = false
	a.lastErr = device.CodeSuccess
	return nil
}

// extended runs fn against a fresh, unopened protocol for target.
func (a *Adapter) extended(ctx context.Context, op, target string, fn func(context.Context, Protocol, *ParsedURL) error) (err error) {
	u, factory, err := a.resolve("netfs."+op, target)
	if err != nil {
		return a.fail(err)
	}

	ctx, span := telemetry.StartNetFSSpan(ctx, telemetry.SpanNetFSExtOp, u.Scheme,
		telemetry.Op(op), telemetry.Host(u.Host), telemetry.Path(u.Path))
	defer span.End()

	start := time.Now()
	defer func() { a.observe(u.Scheme, op, start, err) }()

	xctx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()

	p := factory()
	defer func() { _ = p.Close() }()

	if err := fn(xctx, p, u); err != nil {
		telemetry.RecordError(ctx, err)
		return a.fail(classify(derrors.KindIO, "netfs."+op, err))
	}
	a.lastErr = device.CodeSuccess
	return nil
}

// fail remembers the legacy code of err for the next STATUS and returns it.
func (a *Adapter) fail(err error) error {
	a.lastErr = device.CodeFor(err)
	return err
}

func (a *Adapter) observe(scheme, op string, start time.Time, err error) {
	if a.metrics != nil {
		a.metrics.ObserveOperation(scheme, op, time.Since(start), err)
	}
}

func (a *Adapter) record(direction string, n int) {
	if a.metrics != nil && n > 0 && a.url != nil {
		a.metrics.RecordBytes(a.url.Scheme, direction, n)
	}
}

// classify keeps an existing error kind and wraps unclassified errors as
// kind k.
func classify(k derrors.Kind, op string, err error) error {
	var e *derrors.Error
	if errors.As(err, &e) {
		return err
	}
	return derrors.E(k, op, err)
}

// FormatListing renders entries one per line, directories first and with
// a trailing slash, files followed by their size.
func FormatListing(entries []DirEntry) []byte {
	sorted := append([]DirEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsDir != sorted[j].IsDir {
			return sorted[i].IsDir
		}
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})

	var b bytes.Buffer
	for _, e := range sorted {
		if e.IsDir {
			fmt.Fprintf(&b, "%s/\n", e.Name)
			continue
		}
		fmt.Fprintf(&b, "%s %d\n", e.Name, e.Size)
	}
	return b.Bytes()
}

// listing serves a directory listing through the Protocol interface.
type listing struct {
	r *bytes.Reader
}

func newListing(entries []DirEntry) *listing {
	return &listing{r: bytes.NewReader(FormatListing(entries))}
}

func (l *listing) Open(context.Context, *ParsedURL, Mode) error { return nil }

func (l *listing) Read(_ context.Context, buf []byte) (int, error) {
	return l.r.Read(buf)
}

func (l *listing) Write(context.Context, []byte) (int, error) {
	return 0, derrors.BadRequest("netfs.write", "directory listing is read-only")
}

func (l *listing) Close() error   { return nil }
func (l *listing) Available() int { return l.r.Len() }
func (l *listing) EOF() bool      { return l.r.Len() == 0 }

func (l *listing) Seek(_ context.Context, pos int64) error {
	_, err := l.r.Seek(pos, io.SeekStart)
	return err
}
