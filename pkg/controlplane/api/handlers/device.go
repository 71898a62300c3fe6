package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/lifecycle"
)

var (
	errBodyTooLarge   = errors.New("request body too large")
	errNoConfigurator = errors.New("configuration is read-only")
)

// Slots is the Fuji control device as seen by the admin page.
type Slots interface {
	ImageRotate(ctx context.Context) int
	MountAll(ctx context.Context) error
}

// Restarter schedules a deferred shutdown.
type Restarter interface {
	Schedule(delay time.Duration, mode lifecycle.Mode)
}

// DeviceHandler serves the device-control and lifecycle routes.
type DeviceHandler struct {
	slots     Slots
	restarter Restarter
	files     *FileHandler
	delay     time.Duration
}

// NewDeviceHandler wires the control routes. files serves restart.html;
// delay is how long a restart waits for the reply to finish.
func NewDeviceHandler(s Slots, r Restarter, files *FileHandler, delay time.Duration) *DeviceHandler {
	return &DeviceHandler{slots: s, restarter: r, files: files, delay: delay}
}

// Test answers {"result": 1}.
func (h *DeviceHandler) Test(w http.ResponseWriter, _ *http.Request) {
	WriteResult(w, 1)
}

// Swap rotates the mounted disk images.
func (h *DeviceHandler) Swap(w http.ResponseWriter, r *http.Request) {
	n := h.slots.ImageRotate(r.Context())
	logger.InfoCtx(r.Context(), "Disk swap from admin page", "drives", n)
	RedirectOrResult(w, r, 0)
}

// Mount mounts every configured disk slot when mountall is truthy. The
// result is 1 when any slot failed.
func (h *DeviceHandler) Mount(w http.ResponseWriter, r *http.Request) {
	result := 0
	if QueryFlag(r, "mountall") {
		logger.InfoCtx(r.Context(), "Mount all from admin page")
		if err := h.slots.MountAll(r.Context()); err != nil {
			logger.WarnCtx(r.Context(), "Mount all incomplete", logger.Err(err))
			result = 1
		}
	}
	RedirectOrResult(w, r, result)
}

// Restart performs the restart handshake. exit=1 answers at once and shuts
// down for good; otherwise restart.html is served and the process asks to
// be started again. Both wait for the reply to transfer first.
func (h *DeviceHandler) Restart(w http.ResponseWriter, r *http.Request) {
	if QueryFlag(r, "exit") {
		WriteResult(w, 1)
		h.restarter.Schedule(h.delay, lifecycle.ModeTerminal)
		return
	}

	h.files.Send(w, r, "restart.html")
	h.restarter.Schedule(h.delay, lifecycle.ModeRespawn)
}
