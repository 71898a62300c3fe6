package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/bus"
	"github.com/marmos91/dittonet/pkg/bus/port"
	"github.com/marmos91/dittonet/pkg/bus/rs232"
	"github.com/marmos91/dittonet/pkg/bus/sio"
	"github.com/marmos91/dittonet/pkg/config"
	"github.com/marmos91/dittonet/pkg/controlplane/api"
	"github.com/marmos91/dittonet/pkg/device"
	"github.com/marmos91/dittonet/pkg/device/fuji"
	"github.com/marmos91/dittonet/pkg/device/netfs"
	"github.com/marmos91/dittonet/pkg/device/printer"
	"github.com/marmos91/dittonet/pkg/discovery"
	"github.com/marmos91/dittonet/pkg/lifecycle"
	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/marmos91/dittonet/pkg/store/slots"
)

// NewCodec returns the frame codec for a bus type. Exactly one engine
// exists per process, so the type is fixed at startup.
func NewCodec(busType string) (bus.Codec, error) {
	switch strings.ToLower(busType) {
	case "sio":
		return sio.New(), nil
	case "rs232":
		return rs232.New(), nil
	default:
		return nil, fmt.Errorf("unknown bus type: %q", busType)
	}
}

func openPort(cfg bus.Config) (bus.Port, error) {
	p, err := port.ListenTCP(cfg.Listen, cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open bus port: %w", err)
	}
	return p, nil
}

// openFilesystems roots flash at the data path, creating it if needed. SD
// is only used when its directory already exists, like a card that may or
// may not be inserted.
func openFilesystems(cfg config.GeneralConfig) (flash, sd afero.Fs, err error) {
	osfs := afero.NewOsFs()

	if err := osfs.MkdirAll(cfg.DataPath, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data path %s: %w", cfg.DataPath, err)
	}
	flash = afero.NewBasePathFs(osfs, cfg.DataPath)

	if cfg.SDPath != "" {
		ok, err := afero.DirExists(osfs, cfg.SDPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to stat SD path %s: %w", cfg.SDPath, err)
		}
		if ok {
			sd = afero.NewBasePathFs(osfs, cfg.SDPath)
		} else {
			logger.Info("No SD storage found", logger.KeyPath, cfg.SDPath)
		}
	}
	return flash, sd, nil
}

// DefaultSlots converts the configured hosts and disks into the slot table
// used when nothing has been persisted yet.
func DefaultSlots(cfg *config.Config) *slots.State {
	st := slots.NewState()
	for i, h := range cfg.Hosts {
		if i >= slots.Count {
			break
		}
		st.Hosts[i] = h
	}
	for i, d := range cfg.Disks {
		if i >= slots.Count {
			break
		}
		st.Disks[i] = slots.Disk{Host: uint8(d.Host), Mode: slots.ParseMode(d.Mode), Path: d.Path}
	}
	return st
}

// attachDevices registers every device on the bus:
//
//	0x31-0x38  disk drives D1: to D8:
//	0x40       printer P1:
//	0x70       Fuji control device
//	0x71-0x78  network devices N1: to N8:
//
// Both codecs share this address map.
func (rt *Runtime) attachDevices(ctx context.Context, now func() time.Time) error {
	reg := rt.engine.Registry()

	rt.fuji = fuji.New(
		fuji.NewImageOpener(rt.sd, rt.netfs, rt.cfg.NetFS),
		fuji.WithStore(rt.store),
		fuji.WithReset(func() { rt.restart.Schedule(0, lifecycle.ModeRespawn) }),
	)
	if err := rt.fuji.Load(ctx, DefaultSlots(rt.cfg)); err != nil {
		return err
	}
	if err := reg.Add(sio.Fuji, rt.fuji); err != nil {
		return err
	}
	for i := range slots.Count {
		if err := reg.Add(sio.DiskFirst+device.Slot(i), rt.fuji.Drive(i)); err != nil {
			return err
		}
	}

	netMetrics := metrics.NewNetFSMetrics()
	for slot := sio.NetworkFirst; slot <= sio.NetworkLast; slot++ {
		if err := reg.Add(slot, netfs.New(rt.cfg.NetFS, rt.netfs, netMetrics)); err != nil {
			return err
		}
	}

	if rt.cfg.Printer.Enabled {
		out := rt.sd
		if out == nil {
			out = rt.flash
		}
		rt.printer = printer.New(out, rt.cfg.Printer.Type, printer.WithClock(now))
		if err := reg.Add(sio.Printer, rt.printer); err != nil {
			return err
		}
	}

	if err := rt.fuji.MountAll(ctx); err != nil {
		logger.WarnCtx(ctx, "Some disk slots failed to mount", logger.Err(err))
	}
	return nil
}

func (rt *Runtime) deps(now func() time.Time) api.Deps {
	deps := api.Deps{
		Flash:        rt.flash,
		Parser:       rt.tagParser(),
		Configurator: &configurator{rt: rt},
		Slots:        rt.fuji,
		Browser:      &browser{rt: rt},
		Restarter:    rt.restart,
		Now:          now,
	}
	// A nil *printer.Printer in the interface would defeat the handler's
	// nil check.
	if rt.printer != nil {
		deps.Printer = rt.printer
	}
	return deps
}

func (rt *Runtime) serverOptions(extra []api.Option) []api.Option {
	opts := []api.Option{api.WithMetrics(metrics.NewHTTPMetrics())}

	if rt.cfg.General.SkipNetworkCheck {
		opts = append(opts, api.WithNetworkStatus(api.AlwaysConnected{}))
	} else {
		opts = append(opts, api.WithNetworkStatus(api.InterfaceProbe{}))
	}

	if d := rt.cfg.Discovery; d.Enabled {
		opts = append(opts, api.WithAnnouncer(discovery.NewAdvertiser(discovery.Config{
			Instance:  d.Instance,
			Interface: d.Interface,
			TTL:       d.TTL,
			Version:   rt.info.Version,
		})))
	}
	return append(opts, extra...)
}
