// Package validation guards the URLs and identifiers the CLI hands to the
// network.
//
// ValidateServerURL is strict: the inbox server must not live on private,
// loopback or cloud-metadata addresses, which keeps a tampered profile from
// turning the client into an SSRF probe. ValidateRedirectURL is the relaxed
// rule for OAuth redirect targets, which are normally the loopback callback
// server.
//
// Private ranges can be allowed with INBOX_ALLOW_PRIVATE (any value accepted
// by strconv.ParseBool) or SetAllowPrivate(true). Cloud metadata endpoints
// stay blocked either way.
package validation

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var allowPrivate atomic.Bool

// Parsed once; consulted on every lookup.
var privateNetworks []*net.IPNet

const dnsTimeout = 5 * time.Second

func init() {
	v, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("INBOX_ALLOW_PRIVATE")))
	allowPrivate.Store(v)

	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"100.64.0.0/10",
		"169.254.0.0/16",
		"192.0.0.0/24",
		"192.0.2.0/24",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"240.0.0.0/4",
		"fc00::/7",
		"fe80::/10",
		"ff00::/8",
		"::1/128",
		"::/128",
		"100::/64",
		"2001::/32",
		"2001:10::/28",
		"2001:db8::/32",
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// SetAllowPrivate toggles whether private and loopback server URLs pass.
func SetAllowPrivate(enabled bool) {
	allowPrivate.Store(enabled)
}

// AllowPrivateEnabled reports the current private-address policy.
func AllowPrivateEnabled() bool {
	return allowPrivate.Load()
}

// policy selects which address classes a URL may resolve to.
type policy struct {
	allowLoopback bool
	allowPrivate  bool
}

// ValidateServerURL checks the inbox server base URL. It requires http or
// https, a hostname, and an address that is neither private, loopback nor a
// cloud metadata endpoint (unless private addresses are allowed).
func ValidateServerURL(rawURL string) error {
	p := policy{allowPrivate: allowPrivate.Load()}
	p.allowLoopback = p.allowPrivate
	return validateURL(rawURL, p)
}

// ValidateRedirectURL checks an OAuth redirect target. Loopback hosts are
// accepted since the callback server listens on 127.0.0.1; other private
// ranges and metadata endpoints are not.
func ValidateRedirectURL(rawURL string) error {
	return validateURL(rawURL, policy{allowLoopback: true, allowPrivate: allowPrivate.Load()})
}

func validateURL(rawURL string, p policy) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if len(rawURL) > MaxURLLength {
		return fmt.Errorf("URL exceeds maximum length of %d characters", MaxURLLength)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: only http and https are allowed, got %q", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must contain a hostname")
	}
	if isCloudMetadata(hostname) {
		return fmt.Errorf("cloud metadata endpoints are not allowed")
	}
	if isLocalhost(hostname) {
		if !p.allowLoopback {
			return fmt.Errorf("localhost URLs are not allowed")
		}
		if net.ParseIP(hostname) == nil {
			return nil
		}
	}

	if ip := net.ParseIP(hostname); ip != nil {
		return p.checkIP(ip)
	}
	return p.checkDomain(hostname)
}

func isLocalhost(hostname string) bool {
	h := strings.ToLower(hostname)
	switch h {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0", "::":
		return true
	}
	return strings.HasSuffix(h, ".localhost")
}

func isCloudMetadata(hostname string) bool {
	h := strings.ToLower(hostname)
	switch h {
	case "169.254.169.254", "metadata.google.internal", "metadata", "instance-data", "fd00:ec2::254":
		return true
	}
	return strings.HasSuffix(h, ".metadata.google.internal")
}

func (p policy) checkIP(ip net.IP) error {
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("cloud metadata IP address is not allowed")
	}
	if ip.IsLoopback() || ip.IsUnspecified() {
		if p.allowLoopback {
			return nil
		}
		if ip.IsUnspecified() {
			return fmt.Errorf("unspecified IP addresses are not allowed")
		}
		return fmt.Errorf("loopback IP addresses are not allowed")
	}
	// Link-local is never a legitimate server, private or not.
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local IP addresses are not allowed")
	}
	if !p.allowPrivate && isPrivateIP(ip) {
		return fmt.Errorf("private IP addresses are not allowed")
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// checkDomain resolves hostname and checks every address. Names that do not
// resolve pass; the request itself will fail later.
func (p policy) checkDomain(hostname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), dnsTimeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", hostname)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if err := p.checkIP(ip); err != nil {
			return fmt.Errorf("domain %q resolves to forbidden IP %s: %w", hostname, ip.String(), err)
		}
	}
	return nil
}
