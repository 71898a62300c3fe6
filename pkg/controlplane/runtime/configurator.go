package runtime

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/config"
	"github.com/marmos91/dittonet/pkg/device/printer"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// configurator applies the admin page's config form. Recognized keys:
//
//	hostname         device hostname
//	loglevel         DEBUG, INFO, WARN or ERROR (applied immediately)
//	printer_enabled  0 or 1 (applied on restart)
//	printermodel     paper type name (applied on restart)
//	host1 .. host8   host slot URLs (applied immediately)
//
// Unknown keys are ignored. When the runtime has a config path the
// resulting configuration is saved there.
type configurator struct {
	rt *Runtime
}

const opConfigPost = "config.post"

func (c *configurator) ProcessConfigPost(ctx context.Context, body []byte) error {
	form, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return derrors.BadRequest(opConfigPost, "malformed form: %v", err)
	}
	if len(form) == 0 {
		return derrors.BadRequest(opConfigPost, "empty form")
	}

	// Validate everything before changing anything.
	next := *c.rt.cfg
	next.Hosts = append([]string(nil), c.rt.cfg.Hosts...)
	hosts := map[int]string{}

	for key, values := range form {
		v := strings.TrimSpace(values[len(values)-1])

		switch {
		case key == "hostname":
			if v == "" {
				return derrors.BadRequest(opConfigPost, "hostname is empty")
			}
			next.General.Hostname = v
		case key == "loglevel":
			level, ok := logger.ParseLevel(v)
			if !ok {
				return derrors.BadRequest(opConfigPost, "invalid log level %q", v)
			}
			next.Logging.Level = level.String()
		case key == "printer_enabled":
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				return derrors.BadRequest(opConfigPost, "invalid printer_enabled %q", v)
			}
			next.Printer.Enabled = enabled
		case key == "printermodel":
			paper, ok := printer.ParsePaperType(v)
			if !ok {
				return derrors.BadRequest(opConfigPost, "unknown printer model %q", v)
			}
			next.Printer.Type = paper.String()
		case strings.HasPrefix(key, "host"):
			n, err := strconv.Atoi(strings.TrimPrefix(key, "host"))
			if err != nil || n < 1 || n > config.MaxSlots {
				return derrors.BadRequest(opConfigPost, "bad host slot key %q", key)
			}
			hosts[n-1] = v
		default:
			logger.DebugCtx(ctx, "Ignoring unknown config key", "key", key)
		}
	}

	for i, h := range hosts {
		if err := c.rt.fuji.SetHost(ctx, i, h); err != nil {
			return err
		}
		for len(next.Hosts) <= i {
			next.Hosts = append(next.Hosts, "")
		}
		next.Hosts[i] = h
	}

	if next.Logging.Level != c.rt.cfg.Logging.Level {
		logger.SetLevel(next.Logging.Level)
	}
	c.rt.cfg = &next

	if c.rt.configPath == "" {
		return nil
	}
	if err := config.SaveConfig(c.rt.cfg, c.rt.configPath); err != nil {
		return derrors.IO(opConfigPost, fmt.Errorf("save config: %w", err))
	}
	logger.InfoCtx(ctx, "Configuration saved", logger.KeyPath, c.rt.configPath)
	return nil
}
