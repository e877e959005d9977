// Package urlvalidation guards outbound requests (reply delivery, remote
// recognizers) against server-side request forgery.
package urlvalidation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Option configures URL validation behavior.
type Option func(*validationConfig)

type validationConfig struct {
	allowPrivate bool
	allowHosts   map[string]struct{}
	lookup       func(host string) ([]string, error)
}

// AllowPrivateIPs disables the private IP check. Use only in tests.
func AllowPrivateIPs() Option {
	return func(c *validationConfig) {
		c.allowPrivate = true
	}
}

// AllowHosts exempts the named hosts from the private IP check, for
// collaborators deployed inside the cluster.
func AllowHosts(hosts ...string) Option {
	return func(c *validationConfig) {
		if c.allowHosts == nil {
			c.allowHosts = make(map[string]struct{}, len(hosts))
		}
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				c.allowHosts[h] = struct{}{}
			}
		}
	}
}

// WithLookup replaces DNS resolution.
func WithLookup(lookup func(host string) ([]string, error)) Option {
	return func(c *validationConfig) {
		c.lookup = lookup
	}
}

// ValidateOutboundURL checks that a URL is safe to call from the service.
// It rejects private/loopback IPs to prevent SSRF attacks.
func ValidateOutboundURL(rawURL string, opts ...Option) error {
	cfg := validationConfig{lookup: net.LookupHost}
	for _, opt := range opts {
		opt(&cfg)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Only allow HTTPS and HTTP schemes.
	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && scheme != "http" {
		return fmt.Errorf("URL scheme %q not allowed; use http or https", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if _, ok := cfg.allowHosts[strings.ToLower(host)]; ok || cfg.allowPrivate {
		return nil
	}

	// Resolve the hostname to check for private IPs.
	ips, err := cfg.lookup(host)
	if err != nil {
		return fmt.Errorf("cannot resolve hostname %q: %w", host, err)
	}

	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if isPrivateIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP %s", ipStr)
		}
	}

	return nil
}

var privateRanges = []*net.IPNet{
	parseCIDR("10.0.0.0/8"),
	parseCIDR("172.16.0.0/12"),
	parseCIDR("192.168.0.0/16"),
	parseCIDR("127.0.0.0/8"),
	parseCIDR("169.254.0.0/16"),     // link-local
	parseCIDR("::1/128"),            // IPv6 loopback
	parseCIDR("fc00::/7"),           // IPv6 unique local
	parseCIDR("fe80::/10"),          // IPv6 link-local
	parseCIDR("100.64.0.0/10"),      // shared address space (CGN)
	parseCIDR("0.0.0.0/8"),          // "this" network
	parseCIDR("192.0.0.0/24"),       // IETF protocol assignments
	parseCIDR("192.0.2.0/24"),       // TEST-NET-1
	parseCIDR("198.51.100.0/24"),    // TEST-NET-2
	parseCIDR("203.0.113.0/24"),     // TEST-NET-3
	parseCIDR("198.18.0.0/15"),      // benchmarking
	parseCIDR("224.0.0.0/4"),        // multicast
	parseCIDR("240.0.0.0/4"),        // reserved
	parseCIDR("255.255.255.255/32"), // broadcast
}

// isPrivateIP returns true if the IP is in a private, loopback, link-local,
// or other reserved range that should not be called from the service.
func isPrivateIP(ip net.IP) bool {
	for _, r := range privateRanges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

func parseCIDR(s string) *net.IPNet {
	_, network, err := net.ParseCIDR(s)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR %q: %v", s, err))
	}
	return network
}
