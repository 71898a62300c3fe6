package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/internal/telemetry"
	"github.com/marmos91/dittonet/pkg/device/printer"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// PrinterBusyTime is the minimum gap between a print download and the
// previous download or the last line the printer received.
const PrinterBusyTime = 2 * time.Second

var errNoPrinter = errors.New("no printer configured")

// Printer is the printer device as seen by the print route.
type Printer interface {
	LastPrintTime() time.Time
	Finalize() (*printer.Output, error)
	Reset()
}

// PrintSession remembers when the printout was last requested.
type PrintSession struct {
	LastRequest time.Time
}

// busy reports whether a request at now falls inside the busy window of
// either the previous request or the printer's last activity.
func (s *PrintSession) busy(now, lastPrint time.Time) bool {
	within := func(t time.Time) bool {
		return !t.IsZero() && now.Sub(t) < PrinterBusyTime
	}
	return within(s.LastRequest) || within(lastPrint)
}

// PrintHandler serves GET /print.
type PrintHandler struct {
	printer Printer
	session PrintSession
	chunk   int
	now     func() time.Time
}

// NewPrintHandler serves p's printout. p may be nil when printing is
// disabled; now may be nil for time.Now.
func NewPrintHandler(p Printer, chunk int, now func() time.Time) *PrintHandler {
	if now == nil {
		now = time.Now
	}
	if chunk <= 0 {
		chunk = 512
	}
	return &PrintHandler{printer: p, chunk: chunk, now: now}
}

// Session exposes the request history.
func (h *PrintHandler) Session() PrintSession { return h.session }

// Print finalizes the current job, streams it and starts a new one.
func (h *PrintHandler) Print(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanPrint)
	defer span.End()
	r = r.WithContext(ctx)

	if h.printer == nil {
		WriteError(w, r, derrors.Open("http.print", errNoPrinter))
		return
	}

	now := h.now()
	if h.session.busy(now, h.printer.LastPrintTime()) {
		WriteError(w, r, derrors.E(derrors.KindBusy, "http.print", errors.New("print job in progress")))
		return
	}
	h.session.LastRequest = now

	out, err := h.printer.Finalize()
	if err != nil {
		telemetry.RecordError(ctx, err)
		WriteError(w, r, derrors.Open("http.print", err))
		return
	}
	defer func() { _ = out.Close() }()

	SetFileContentType(w, out.Name)
	w.Header().Set("Content-Disposition", out.Paper.Disposition(out.Name))
	w.Header().Set("Content-Length", strconv.FormatInt(out.Size, 10))
	w.WriteHeader(http.StatusOK)

	sent, err := StreamChunks(w, out, h.chunk)
	if err != nil {
		logger.WarnCtx(ctx, "Print transfer aborted", logger.Err(err))
	}
	logger.InfoCtx(ctx, "Printout sent", logger.KeySize, sent, logger.KeyMode, out.Paper.String())

	h.printer.Reset()
}
