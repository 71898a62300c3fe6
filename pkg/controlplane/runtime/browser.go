package runtime

import (
	"context"
	"io"

	"github.com/marmos91/dittonet/pkg/device/fuji"
	"github.com/marmos91/dittonet/pkg/device/netfs"
	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/marmos91/dittonet/pkg/store/slots"
)

// browser resolves /browse requests against the Fuji host slots.
type browser struct {
	rt *Runtime
}

func (b *browser) Browse(ctx context.Context, hostSlot int, path string) ([]netfs.DirEntry, io.ReadCloser, error) {
	if hostSlot < 0 || hostSlot >= slots.Count {
		return nil, nil, derrors.BadRequest("browse", "host slot %d out of range", hostSlot)
	}
	host := b.rt.fuji.Hosts()[hostSlot]
	if host == "" {
		return nil, nil, derrors.BadRequest("browse", "host slot %d is empty", hostSlot+1)
	}
	return netfs.Browse(ctx, b.rt.cfg.NetFS, b.rt.netfs, fuji.JoinTarget(host, path))
}
