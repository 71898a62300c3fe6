package fuji

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/marmos91/dittonet/pkg/device"
	"github.com/marmos91/dittonet/pkg/device/disk"
	"github.com/marmos91/dittonet/pkg/device/netfs"
	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/spf13/afero"
)

// MaxRemoteImage bounds images fetched from network hosts.
const MaxRemoteImage = 16 << 20

// LocalHost is the host slot value naming local SD storage.
const LocalHost = "SD"

var errRemoteReadOnly = errors.New("network images mount read-only")

// JoinTarget combines a host slot and an image path into a target URL.
func JoinTarget(host, imagePath string) string {
	if strings.EqualFold(host, LocalHost) {
		return "sd:///" + strings.TrimLeft(imagePath, "/")
	}
	return strings.TrimRight(host, "/") + "/" + strings.TrimLeft(imagePath, "/")
}

// NewImageOpener resolves disk targets. sd:// and file:// images open
// directly on sd; every other scheme is fetched into memory through the
// network filesystem protocols.
func NewImageOpener(sd afero.Fs, reg *netfs.Registry, cfg netfs.Config) disk.Opener {
	local := disk.FSOpener(sd)

	return func(ctx context.Context, target string, writable bool) (disk.Image, error) {
		u, err := netfs.Parse(target, cfg.DefaultScheme)
		if err != nil {
			return nil, derrors.BadRequest("fuji.image", "%v", err)
		}
		if u.Scheme == "sd" || u.Scheme == "file" {
			return local(ctx, u.Path, writable)
		}
		if writable {
			return nil, derrors.Open("fuji.image", errRemoteReadOnly)
		}

		b, err := fetch(ctx, netfs.New(cfg, reg, nil), target)
		if err != nil {
			return nil, err
		}
		return disk.NewMemImage(b), nil
	}
}

func fetch(ctx context.Context, a *netfs.Adapter, target string) ([]byte, error) {
	if err := a.Open(ctx, target, &device.Command{Aux1: 4}); err != nil {
		return nil, err
	}
	defer a.Close()

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := a.Read(ctx, buf)
		out = append(out, buf[:n]...)
		if len(out) > MaxRemoteImage {
			return nil, derrors.E(derrors.KindOutOfMemory, "fuji.fetch", errors.New("image too large"))
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
