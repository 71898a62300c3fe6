package netfs

import (
	"github.com/spf13/afero"
)

// NewDefaultRegistry returns a registry with every built-in scheme. sd is
// the local storage behind file:// and sd://; it may be nil when no card
// is mounted, in which case those schemes fail to open.
func NewDefaultRegistry(cfg Config, sd afero.Fs) *Registry {
	r := NewRegistry()

	r.Register("tnfs", newTNFSProto(cfg.TNFSPort))

	client := newHTTPClient(cfg.DialTimeout)
	r.Register("http", newHTTPProto(client, cfg.DialTimeout))
	r.Register("https", newHTTPProto(client, cfg.DialTimeout))

	r.Register("ftp", newFTPProto(cfg.FTP, cfg.DialTimeout))
	r.Register("smb", newSMBProto(cfg.SMB, cfg.DialTimeout))
	r.Register("s3", newS3Proto(&s3Client{cfg: cfg.S3}, cfg.DialTimeout))

	r.Register("file", newFileProto(sd))
	r.Register("sd", newFileProto(sd))
	return r
}

// RegisterS3 installs an s3:// handler backed by api instead of the
// client built from configuration.
func (r *Registry) RegisterS3(api S3API, cfg Config) {
	r.Register("s3", newS3Proto(&s3Client{cfg: cfg.S3, client: api}, cfg.DialTimeout))
}

// RegisterFS installs scheme as a handler over fsys.
func (r *Registry) RegisterFS(scheme string, fsys afero.Fs) {
	r.Register(scheme, newFileProto(fsys))
}
