package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrHostNotAllowed is returned for URLs the scraper must not fetch.
var ErrHostNotAllowed = errors.New("host not allowed")

// HostResolver looks up the addresses of a host name.
type HostResolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// URLGuard admits only http(s) URLs on allowlisted public hosts.
type URLGuard struct {
	allowed  map[string]struct{}
	resolver HostResolver
}

// NewURLGuard creates a guard for hosts. A nil resolver uses
// net.DefaultResolver.
func NewURLGuard(hosts []string, resolver HostResolver) *URLGuard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	return &URLGuard{allowed: allowed, resolver: resolver}
}

// Check returns nil when raw may be fetched.
func (g *URLGuard) Check(ctx context.Context, raw string) error {
	host, err := httpHost(raw)
	if err != nil {
		return err
	}
	if _, ok := g.allowed[host]; !ok {
		return fmt.Errorf("%w: %s is not allowlisted", ErrHostNotAllowed, host)
	}
	return g.checkPublic(ctx, host)
}

// Resolve turns href, relative to base, into an absolute URL and checks it.
func (g *URLGuard) Resolve(ctx context.Context, href, base string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("failed to parse link: %w", err)
	}
	abs := baseURL.ResolveReference(ref)
	abs.Fragment = ""
	if err := g.Check(ctx, abs.String()); err != nil {
		return "", err
	}
	return abs.String(), nil
}

func (g *URLGuard) checkPublic(ctx context.Context, host string) error {
	if addr, err := netip.ParseAddr(host); err == nil {
		if !isPublicAddr(addr) {
			return fmt.Errorf("%w: %s is not a public address", ErrHostNotAllowed, host)
		}
		return nil
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve %s: %v", ErrHostNotAllowed, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s has no addresses", ErrHostNotAllowed, host)
	}
	for _, addr := range addrs {
		if !isPublicAddr(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrHostNotAllowed, host, addr)
		}
	}
	return nil
}

// httpHost returns the lowercased host of an http(s) URL, rejecting local
// names.
func httpHost(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHostNotAllowed, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrHostNotAllowed)
	}
	for _, local := range []string{"localhost", "localdomain", "local"} {
		if host == local || strings.HasSuffix(host, "."+local) {
			return "", fmt.Errorf("%w: %s is local", ErrHostNotAllowed, host)
		}
	}
	return host, nil
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast():
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
}
