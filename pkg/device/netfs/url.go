package netfs

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// ParsedURL is a network target decoded from a legacy device spec. It is
// rebuilt on every open and never cached.
type ParsedURL struct {
	Scheme   string
	User     string
	Password string
	Host     string
	Port     int
	Path     string
	Query    string
}

// stripDevicePrefix removes a leading "N:" or "N1:".."N8:" device name.
func stripDevicePrefix(target string) string {
	if len(target) >= 2 && (target[0] == 'N' || target[0] == 'n') {
		if target[1] == ':' {
			return target[2:]
		}
		if len(target) >= 3 && target[1] >= '1' && target[1] <= '8' && target[2] == ':' {
			return target[3:]
		}
	}
	return target
}

// Parse decodes target into a ParsedURL. A target without a scheme is
// parsed as defaultScheme://target, so a bare host always resolves to the
// same protocol.
func Parse(target, defaultScheme string) (*ParsedURL, error) {
	raw := strings.TrimSpace(stripDevicePrefix(target))
	if raw == "" {
		return nil, fmt.Errorf("empty target")
	}

	if !strings.Contains(raw, "://") {
		raw = strings.ToLower(defaultScheme) + "://" + strings.TrimPrefix(raw, "//")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", target, err)
	}

	p := &ParsedURL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
		Path:   u.Path,
		Query:  u.RawQuery,
	}
	if isLocalScheme(p.Scheme) && p.Host != "" {
		// sd://games/a.atr names /games/a.atr on the card
		p.Path = "/" + p.Host + p.Path
		p.Host = ""
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if u.User != nil {
		p.User = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	if ps := u.Port(); ps != "" {
		port, err := strconv.Atoi(ps)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", ps)
		}
		p.Port = port
	}
	return p, nil
}

func isLocalScheme(s string) bool {
	return s == "file" || s == "sd"
}

// HostPort joins Host with Port, or with def when no port was given.
func (u *ParsedURL) HostPort(def int) string {
	port := u.Port
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(u.Host, strconv.Itoa(port))
}

// Dir returns the URL of the directory containing Path.
func (u *ParsedURL) Dir() *ParsedURL {
	c := *u
	if strings.HasSuffix(c.Path, "/") {
		return &c
	}
	c.Path = path.Dir(c.Path)
	if !strings.HasSuffix(c.Path, "/") {
		c.Path += "/"
	}
	c.Query = ""
	return &c
}

// WithPath returns a copy of u addressing p.
func (u *ParsedURL) WithPath(p string) *ParsedURL {
	c := *u
	c.Path = p
	c.Query = ""
	return &c
}

func (u *ParsedURL) String() string {
	out := url.URL{Scheme: u.Scheme, Path: u.Path, RawQuery: u.Query}
	if u.Port != 0 {
		out.Host = net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
	} else {
		out.Host = u.Host
	}
	if u.User != "" {
		if u.Password != "" {
			out.User = url.UserPassword(u.User, u.Password)
		} else {
			out.User = url.User(u.User)
		}
	}
	return out.String()
}

// Redacted is String with the password masked, for logs.
func (u *ParsedURL) Redacted() string {
	c := *u
	if c.Password != "" {
		c.Password = "xxxxx"
	}
	return c.String()
}
