package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// GatewayConfig describes how to reach the device gateway.
// URL wins when set. Otherwise the URL is picked from the host's own network
// location: LANURL when an interface address starts with LANPrefix,
// LoopbackURL when the host only has loopback addresses, FallbackURL otherwise.
type GatewayConfig struct {
	// URL is an explicit gateway base URL.
	URL string `yaml:"url,omitempty"`
	// LoopbackURL is used on hosts without a network address.
	LoopbackURL string `yaml:"loopback_url,omitempty"`
	// LANPrefix is the address prefix of the plant network, e.g. "192.168.10.".
	LANPrefix string `yaml:"lan_prefix,omitempty"`
	// LANURL is used on hosts inside the plant network.
	LANURL string `yaml:"lan_url,omitempty"`
	// FallbackURL is used when nothing else matches.
	FallbackURL string `yaml:"fallback_url,omitempty"`
}

// AddrLister lists the host interface addresses.
type AddrLister func() ([]net.Addr, error)

// errNoGatewayURL is returned when no gateway URL could be resolved.
var errNoGatewayURL = errors.New("no gateway url could be resolved")

// ResolveURL picks the gateway base URL for this host.
// A nil lister uses net.InterfaceAddrs.
func (g GatewayConfig) ResolveURL(list AddrLister) (string, error) {
	if g.URL != "" {
		return strings.TrimRight(g.URL, "/"), nil
	}

	if list == nil {
		list = net.InterfaceAddrs
	}

	addrs, err := list()
	if err != nil {
		return "", fmt.Errorf("list interface addresses: %w", err)
	}

	onlyLoopback := true

	for _, addr := range addrs {
		ip := addrIP(addr)
		if ip == nil || ip.IsLoopback() {
			continue
		}

		onlyLoopback = false

		if g.LANPrefix != "" && g.LANURL != "" && strings.HasPrefix(ip.String(), g.LANPrefix) {
			return strings.TrimRight(g.LANURL, "/"), nil
		}
	}

	if onlyLoopback && g.LoopbackURL != "" {
		return strings.TrimRight(g.LoopbackURL, "/"), nil
	}

	if g.FallbackURL != "" {
		return strings.TrimRight(g.FallbackURL, "/"), nil
	}

	return "", errNoGatewayURL
}

// ResolveSourceURLs fills the base URL of every source without one.
// The gateway URL is only resolved when at least one source needs it.
func (c *Config) ResolveSourceURLs(list AddrLister) error {
	var gatewayURL string

	for i := range c.Sources {
		source := &c.Sources[i]
		if source.BaseURL != "" {
			source.BaseURL = strings.TrimRight(source.BaseURL, "/")
			continue
		}

		if gatewayURL == "" {
			resolved, err := c.Gateway.ResolveURL(list)
			if err != nil {
				return fmt.Errorf("source %s: %w", source.ID, err)
			}

			gatewayURL = resolved
		}

		source.BaseURL = gatewayURL
	}

	return nil
}

// addrIP extracts the IP from an interface address.
func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}
