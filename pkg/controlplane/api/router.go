package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/internal/telemetry"
	"github.com/marmos91/dittonet/pkg/controlplane/api/handlers"
)

// Deps are the collaborators behind the admin routes. Printer, Browser and
// Configurator may be nil when the feature is unavailable.
type Deps struct {
	// Flash is the filesystem holding the web root.
	Flash        afero.Fs
	Parser       handlers.Parser
	Configurator handlers.Configurator
	Printer      handlers.Printer
	Slots        handlers.Slots
	Browser      handlers.Browser
	Restarter    handlers.Restarter
	Now          func() time.Time
}

// NewRouter creates the chi router for the admin page.
//
// Exact routes are matched first in this order: /test, /, /file, /config,
// /print, /browse/*, /swap, /mount, /restart. Anything else is served from
// the web root.
func NewRouter(cfg APIConfig, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	root := deps.Flash
	if root == nil {
		root = afero.NewMemMapFs()
	}
	root = afero.NewBasePathFs(root, cfg.WWWRoot)

	chunk := int(cfg.SendBufferSize)
	files := handlers.NewFileHandler(root, deps.Parser, chunk, int64(cfg.MaxParseSize))
	config := handlers.NewConfigHandler(deps.Configurator, int64(cfg.MaxParseSize))
	printing := handlers.NewPrintHandler(deps.Printer, chunk, deps.Now)
	browse := handlers.NewBrowseHandler(deps.Browser, chunk)
	device := handlers.NewDeviceHandler(deps.Slots, deps.Restarter, files, cfg.RestartDelay)

	r.HandleFunc("/test", device.Test)
	r.HandleFunc("/", files.Index)
	r.HandleFunc("/file", files.File)
	r.HandleFunc("/config", config.Post)
	r.HandleFunc("/print", printing.Print)
	r.HandleFunc("/browse/*", browse.Browse)
	r.HandleFunc("/swap", device.Swap)
	r.HandleFunc("/mount", device.Mount)
	r.HandleFunc("/restart", device.Restart)
	r.NotFound(files.Static)

	return r
}

// routeLabel maps a path onto a bounded set of route names for metrics
// and spans.
func routeLabel(path string) string {
	switch path {
	case "/test", "/", "/file", "/config", "/print", "/swap", "/mount", "/restart":
		return path
	}
	if strings.HasPrefix(path, "/browse/") {
		return "/browse"
	}
	return "static"
}

// requestLogger logs each request with the internal logger and wraps it in
// a server span. It runs on the scheduler goroutine with the handler.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		route := routeLabel(r.URL.Path)

		ctx, span := telemetry.StartHTTPSpan(r.Context(), route, telemetry.ClientIP(r.RemoteAddr))
		defer span.End()
		r = r.WithContext(ctx)

		logger.DebugCtx(ctx, "Admin request started",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyClientIP, r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, time.Since(start).Milliseconds(),
		}

		// /test is polled by scripts
		if route == "/test" || ww.Status() < http.StatusBadRequest {
			logger.DebugCtx(ctx, "Admin request completed", logArgs...)
		} else {
			logger.InfoCtx(ctx, "Admin request completed", logArgs...)
		}
	})
}
