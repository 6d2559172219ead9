// Package service provides the outbound delivery building blocks: destination URL validation
// against private networks and the signed HTTP sender.
package service

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/bowerbird-app/captain-hook-sub004/internal/errors"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

// Resolver resolves host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598), not covered by net.IP.IsPrivate.
var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// URLGuard rejects delivery targets that are not absolute http(s) URLs or that resolve to
// loopback, private, link-local, unspecified or multicast addresses.
type URLGuard struct {
	resolver     Resolver
	allowPrivate bool
}

// NewURLGuard creates a URLGuard. allowPrivate disables the address checks.
func NewURLGuard(resolver Resolver, allowPrivate bool) *URLGuard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &URLGuard{resolver: resolver, allowPrivate: allowPrivate}
}

// ParseTarget validates the URL syntax: http or https, no userinfo and a host.
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrap(domain.ErrUnsafeURL, "malformed url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Wrap(domain.ErrUnsafeURL, "scheme must be http or https")
	}
	if u.User != nil {
		return nil, errors.Wrap(domain.ErrUnsafeURL, "userinfo is not allowed")
	}
	if u.Hostname() == "" {
		return nil, errors.Wrap(domain.ErrUnsafeURL, "host is required")
	}
	return u, nil
}

// Check validates the URL and every address its host resolves to.
func (g *URLGuard) Check(ctx context.Context, raw string) (*url.URL, error) {
	u, err := ParseTarget(raw)
	if err != nil {
		return nil, err
	}
	if g.allowPrivate {
		return u, nil
	}

	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return nil, blockedError(ip)
		}
		return u, nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, errors.Wrap(domain.ErrUnsafeURL, "host has no addresses")
	}
	for _, addr := range addrs {
		if IsBlockedIP(addr.IP) {
			return nil, blockedError(addr.IP)
		}
	}
	return u, nil
}

// Control is a net.Dialer Control hook that re-checks the address actually dialed, so a DNS
// answer that changed after Check cannot reach an internal address.
func (g *URLGuard) Control(_ string, address string, _ syscall.RawConn) error {
	if g.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return errors.Wrap(domain.ErrUnsafeURL, "invalid dial address")
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return errors.Wrap(domain.ErrUnsafeURL, "dial address is not an ip")
	}
	if IsBlockedIP(ip) {
		return blockedError(ip)
	}
	return nil
}

// IsBlockedIP reports whether ip is loopback, private, link-local, unspecified, multicast or in
// the shared address space.
func IsBlockedIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		sharedAddressSpace.Contains(ip) ||
		(len(ip) == net.IPv4len && ip[0] == 0)
}

func blockedError(ip net.IP) error {
	return errors.Wrap(domain.ErrUnsafeURL, fmt.Sprintf("address %s is not allowed", ip))
}
