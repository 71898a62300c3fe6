package netfs

import "time"

// Config configures the network filesystem device and its protocols.
type Config struct {
	// DefaultScheme is assumed when a target omits its scheme, e.g.
	// "N:fujinet.online/games" with the default "tnfs".
	// Default: tnfs
	DefaultScheme string `mapstructure:"default_scheme" validate:"required,oneof=tnfs http https ftp smb s3 file sd" yaml:"default_scheme"`

	// MaxReadAttempts bounds how many stalled or failed transport reads a
	// single READ retries before reporting an I/O error.
	// Default: 5
	MaxReadAttempts int `mapstructure:"max_read_attempts" validate:"gte=0" yaml:"max_read_attempts"`

	// AttemptTimeout bounds each transport read so the bus is never
	// starved waiting on the network.
	// Default: 250ms
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`

	// DialTimeout bounds connection establishment on OPEN.
	// Default: 5s
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// TNFSPort is used when a tnfs:// URL has no port.
	// Default: 16384
	TNFSPort int `mapstructure:"tnfs_port" validate:"omitempty,min=1,max=65535" yaml:"tnfs_port"`

	S3  S3Config  `mapstructure:"s3" yaml:"s3"`
	SMB SMBConfig `mapstructure:"smb" yaml:"smb"`
	FTP FTPConfig `mapstructure:"ftp" yaml:"ftp"`
}

// S3Config configures s3://bucket/key targets.
type S3Config struct {
	// Region is the AWS region. Default: us-east-1
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the service endpoint (MinIO, Localstack).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey select static credentials. When
	// empty the default AWS credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// ForcePathStyle addresses buckets as endpoint/bucket.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// SMBConfig holds credentials for smb://host/share/path targets when the
// URL carries none.
type SMBConfig struct {
	User     string `mapstructure:"user" yaml:"user,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Domain   string `mapstructure:"domain" yaml:"domain,omitempty"`
}

// FTPConfig holds credentials for ftp:// targets when the URL carries
// none. Without either, the anonymous login is used.
type FTPConfig struct {
	User     string `mapstructure:"user" yaml:"user,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.DefaultScheme == "" {
		c.DefaultScheme = "tnfs"
	}
	if c.MaxReadAttempts == 0 {
		c.MaxReadAttempts = 5
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = 250 * time.Millisecond
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.TNFSPort == 0 {
		c.TNFSPort = 16384
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
}
