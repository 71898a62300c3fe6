package netfs

import (
	"context"
	"io"
	"strings"

	"github.com/marmos91/dittonet/internal/telemetry"
	"github.com/marmos91/dittonet/pkg/device"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// Browse resolves target for the admin page. A directory is returned as
// its entries; anything else is opened for reading and returned as a
// stream the caller must close. Exactly one of the two results is set
// when err is nil.
func Browse(ctx context.Context, cfg Config, reg *Registry, target string) ([]DirEntry, io.ReadCloser, error) {
	a := New(cfg, reg, nil)
	u, factory, err := a.resolve("netfs.browse", target)
	if err != nil {
		return nil, nil, err
	}

	ctx, span := telemetry.StartNetFSSpan(ctx, telemetry.SpanNetFSListDir, u.Scheme,
		telemetry.Host(u.Host), telemetry.Path(u.Path))
	defer span.End()

	p := factory()
	if lister, ok := p.(DirLister); ok {
		lctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		entries, lerr := lister.ReadDir(lctx, u)
		cancel()
		_ = p.Close()

		if lerr == nil {
			if entries == nil {
				entries = []DirEntry{}
			}
			telemetry.SetAttributes(ctx, telemetry.Directory(true), telemetry.Count(len(entries)))
			return entries, nil, nil
		}
		if u.Path == "" || strings.HasSuffix(u.Path, "/") {
			telemetry.RecordError(ctx, lerr)
			return nil, nil, classify(derrors.KindOpen, "netfs.browse", lerr)
		}
	}

	if err := a.Open(ctx, target, &device.Command{Aux1: aux1Read}); err != nil {
		telemetry.RecordError(ctx, err)
		return nil, nil, err
	}
	return nil, &browseReader{ctx: ctx, a: a}, nil
}

// browseReader drains an open adapter session. Reads reuse the adapter's
// bounded retry so a stalled server fails the download instead of hanging.
type browseReader struct {
	ctx context.Context
	a   *Adapter
}

func (r *browseReader) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return r.a.Read(r.ctx, buf)
}

func (r *browseReader) Close() error {
	r.a.Close()
	return nil
}
