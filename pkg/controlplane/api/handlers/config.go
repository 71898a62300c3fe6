package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/marmos91/dittonet/internal/logger"
)

// Configurator applies a submitted admin form. The body is opaque here.
type Configurator interface {
	ProcessConfigPost(ctx context.Context, body []byte) error
}

// ConfigHandler handles POST /config.
type ConfigHandler struct {
	configurator Configurator
	maxBody      int64
}

// NewConfigHandler rejects bodies larger than maxBody.
func NewConfigHandler(c Configurator, maxBody int64) *ConfigHandler {
	return &ConfigHandler{configurator: c, maxBody: maxBody}
}

// Post applies the form and redirects to the root.
func (h *ConfigHandler) Post(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteText(w, http.StatusBadRequest, MsgBadConfig)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err == nil && int64(len(body)) > h.maxBody {
		err = errBodyTooLarge
	}
	if err == nil && h.configurator == nil {
		err = errNoConfigurator
	}
	if err == nil {
		err = h.configurator.ProcessConfigPost(r.Context(), body)
	}
	if err != nil {
		logger.WarnCtx(r.Context(), "Config post failed", logger.Err(err))
		WriteText(w, http.StatusBadRequest, MsgPostFailed)
		return
	}

	RedirectHome(w)
}
