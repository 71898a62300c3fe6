// Package handlers implements the admin page routes.
//
// Every handler runs on the scheduler goroutine, so handlers may touch the
// device runtime (printer, Fuji slots) without locking.
package handlers

import (
	"net/http"

	"github.com/marmos91/dittonet/internal/logger"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// Fixed one-line error bodies. The browser never sees the underlying cause.
const (
	MsgOpenFailed     = "Error opening file"
	MsgOutOfMemory    = "Ran out of memory"
	MsgBusy           = "Server busy"
	MsgPostFailed     = "Post failed"
	MsgBadRequest     = "Bad request"
	MsgBadFile        = "Bad file request"
	MsgBadConfig      = "Bad config request"
	MsgBadHostSlot    = "Bad host slot"
	MsgUnsupported    = "Not supported"
	MsgUnexpected     = "Unexpected web server error"
	MsgStaticNotFound = "Not found"
)

// Message is the error line shown for err.
func Message(err error) string {
	switch derrors.KindOf(err) {
	case derrors.KindOpen, derrors.KindNotFound:
		return MsgOpenFailed
	case derrors.KindOutOfMemory:
		return MsgOutOfMemory
	case derrors.KindBusy:
		return MsgBusy
	case derrors.KindBadRequest:
		return MsgBadRequest
	case derrors.KindUnsupported:
		return MsgUnsupported
	default:
		return MsgUnexpected
	}
}

// WriteError answers 400 with the fixed message for err's kind.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	logger.DebugCtx(r.Context(), "Admin request failed",
		logger.KeyRoute, r.URL.Path, logger.Err(err))
	WriteText(w, http.StatusBadRequest, Message(err))
}

// WriteText writes msg as a one-line plain text body.
func WriteText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg + "\n"))
}
