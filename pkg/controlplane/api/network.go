package api

import "net"

// InterfaceProbe reports the network as connected when some non-loopback
// interface is up and has an address.
type InterfaceProbe struct{}

func (InterfaceProbe) Connected() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addrs, err := iface.Addrs(); err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// AlwaysConnected skips the network check.
type AlwaysConnected struct{}

func (AlwaysConnected) Connected() bool { return true }
