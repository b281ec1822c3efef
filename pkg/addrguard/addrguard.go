// Package addrguard classifies outbound destination addresses and refuses
// calls to loopback, private, link-local, and cloud-metadata ranges unless
// explicitly permitted. Every delivery Sender resolves its destination
// through a Guard before opening a connection.
package addrguard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
)

// Guard is the address-classification policy. The zero value rejects
// everything; construct with New.
type Guard struct {
	allowPrivate bool
	resolver     *net.Resolver
}

// New creates a Guard. allowPrivate corresponds to SSRF_ALLOW_PRIVATE: when
// false, destinations resolving to loopback/private/link-local/metadata
// addresses are rejected.
func New(allowPrivate bool) *Guard {
	return &Guard{allowPrivate: allowPrivate, resolver: net.DefaultResolver}
}

// metadataPrefixes are well-known cloud metadata service ranges. Metadata
// endpoints leak instance credentials, so they are refused unless private
// ranges are explicitly allowed.
var metadataPrefixes = []netip.Prefix{
	netip.MustParsePrefix("169.254.169.254/32"), // AWS/GCP/Azure IMDS
	netip.MustParsePrefix("fd00:ec2::254/128"),  // AWS IMDSv6
	netip.MustParsePrefix("100.100.100.200/32"), // Alibaba
}

// CheckURL validates the host of an http(s) URL. It resolves the hostname
// and applies CheckAddr to every resolved address — a hostname is only as
// safe as its most dangerous A record.
func (g *Guard) CheckURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host")
	}
	return g.CheckHost(ctx, host)
}

// CheckHost validates a hostname or IP literal, resolving names via DNS.
func (g *Guard) CheckHost(ctx context.Context, host string) error {
	if addr, err := netip.ParseAddr(host); err == nil {
		return g.CheckAddr(addr)
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("host %q resolved to no addresses", host)
	}
	for _, addr := range addrs {
		if err := g.CheckAddr(addr); err != nil {
			return fmt.Errorf("host %q: %w", host, err)
		}
	}
	return nil
}

// CheckAddr applies the classification policy to a single address.
func (g *Guard) CheckAddr(addr netip.Addr) error {
	addr = addr.Unmap()

	for _, p := range metadataPrefixes {
		if p.Contains(addr) {
			if g.allowPrivate {
				return nil
			}
			return fmt.Errorf("address %s is a cloud metadata endpoint", addr)
		}
	}

	if g.allowPrivate {
		return nil
	}

	switch {
	case addr.IsLoopback():
		return fmt.Errorf("address %s is loopback", addr)
	case addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast():
		return fmt.Errorf("address %s is link-local", addr)
	case addr.IsPrivate():
		return fmt.Errorf("address %s is in a private range", addr)
	case addr.IsUnspecified():
		return fmt.Errorf("address %s is unspecified", addr)
	case !addr.IsValid() || addr.IsMulticast():
		return fmt.Errorf("address %s is not a valid unicast destination", addr)
	}
	return nil
}
