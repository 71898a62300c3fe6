// Package discovery advertises the admin page over mDNS so it can be found
// as "<instance>._http._tcp.local." without knowing the device address.
package discovery

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/marmos91/dittonet/internal/logger"
)

const (
	// ServiceType is the DNS-SD type of the admin page.
	ServiceType = "_http._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Config configures the advertiser.
type Config struct {
	Instance  string
	Interface string
	TTL       time.Duration
	Version   string
}

// registerFunc matches zeroconf.Register.
type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (*zeroconf.Server, error)

// Advertiser publishes one admin service record at a time.
type Advertiser struct {
	config   Config
	register registerFunc

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an idle advertiser.
func NewAdvertiser(config Config) *Advertiser {
	if len(config.Instance) > MaxInstanceNameLen {
		config.Instance = config.Instance[:MaxInstanceNameLen]
	}
	return &Advertiser{config: config, register: zeroconf.Register}
}

func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		logger.Warn("mDNS interface not found, advertising on all interfaces",
			"interface", a.config.Interface, logger.Err(err))
		return nil
	}
	return []net.Interface{*iface}
}

// TXT returns the TXT records published with the service.
func (a *Advertiser) TXT() []string {
	txt := []string{"path=/"}
	if a.config.Version != "" {
		txt = append(txt, "version="+a.config.Version)
	}
	return txt
}

// Announce starts advertising the admin page on port, replacing any
// previous record. The returned func withdraws it.
func (a *Advertiser) Announce(port int) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := a.register(a.config.Instance, ServiceType, Domain, port, a.TXT(), a.interfaces(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to register admin service: %w", err)
	}
	a.server = server

	logger.Info("Advertising admin page over mDNS", "instance", a.config.Instance, "port", port)
	return a.stop, nil
}

func (a *Advertiser) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
