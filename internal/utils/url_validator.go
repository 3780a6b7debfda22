package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// ErrURLNotAllowed is returned when a source URL fails the fetch policy.
var ErrURLNotAllowed = errors.New("url not allowed")

var (
	privateIPRanges = []*net.IPNet{
		// RFC 1918 - Private IPv4 address ranges
		mustParseCIDR("10.0.0.0/8"),     // 10.0.0.0 - 10.255.255.255
		mustParseCIDR("172.16.0.0/12"),  // 172.16.0.0 - 172.31.255.255
		mustParseCIDR("192.168.0.0/16"), // 192.168.0.0 - 192.168.255.255
		// RFC 3927 - Link-local addresses
		mustParseCIDR("169.254.0.0/16"), // 169.254.0.0 - 169.254.255.255
		// Localhost
		mustParseCIDR("127.0.0.0/8"), // 127.0.0.0 - 127.255.255.255
		// Unspecified
		mustParseCIDR("0.0.0.0/8"),
		// IPv6 unspecified
		mustParseCIDR("::/128"),
		// IPv6 localhost
		mustParseCIDR("::1/128"),
		// IPv6 link-local
		mustParseCIDR("fe80::/10"),
		// IPv6 unique local addresses
		mustParseCIDR("fc00::/7"),
	}
)

func mustParseCIDR(cidr string) *net.IPNet {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse CIDR %s: %v", cidr, err))
	}
	return ipNet
}

// URLPolicy controls which remote images may be fetched
type URLPolicy struct {
	BlockPrivateIPs bool
	BlockedDomains  []string

	// Resolver is used for private IP checks. Nil means net.DefaultResolver.
	Resolver *net.Resolver
}

// NewURLPolicy normalizes the blocked domain list.
func NewURLPolicy(blockPrivateIPs bool, blockedDomains []string) URLPolicy {
	var domains []string
	for _, domain := range blockedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			domains = append(domains, domain)
		}
	}
	return URLPolicy{BlockPrivateIPs: blockPrivateIPs, BlockedDomains: domains}
}

// Validate checks a source URL against the policy. Errors wrap
// ErrURLNotAllowed.
func (p URLPolicy) Validate(ctx context.Context, urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrURLNotAllowed, err)
	}

	// Only allow HTTP/HTTPS URLs
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: unsupported URL scheme %q (only http and https are allowed)", ErrURLNotAllowed, parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("%w: URL missing hostname", ErrURLNotAllowed)
	}

	hostnameLower := strings.ToLower(hostname)
	for _, blockedDomain := range p.BlockedDomains {
		if hostnameLower == blockedDomain || strings.HasSuffix(hostnameLower, "."+blockedDomain) {
			return fmt.Errorf("%w: domain %s is blocked", ErrURLNotAllowed, hostname)
		}
	}

	if !p.BlockPrivateIPs {
		return nil
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: private IP address %s is blocked", ErrURLNotAllowed, ip)
		}
		return nil
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		// Unresolvable hosts fail at fetch time.
		return nil
	}
	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return fmt.Errorf("%w: private IP address %s is blocked for hostname %s", ErrURLNotAllowed, addr.IP, hostname)
		}
	}
	return nil
}

// maxRedirects matches the net/http default.
const maxRedirects = 10

// HTTPClient returns a client for fetching source images under the policy.
// Every redirect target is validated again and, when private IPs are
// blocked, the address actually dialed is checked, so DNS answers that
// change after Validate cannot reach an internal host.
func (p URLPolicy) HTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if p.BlockPrivateIPs {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   p.controlDial,
		}
		transport.DialContext = dialer.DialContext
	}
	return &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: p.checkRedirect,
	}
}

func (p URLPolicy) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return p.Validate(req.Context(), req.URL.String())
}

// controlDial runs after name resolution with the literal ip:port.
func (p URLPolicy) controlDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrURLNotAllowed, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: cannot parse dial address %s", ErrURLNotAllowed, address)
	}
	if isPrivateIP(ip) {
		return fmt.Errorf("%w: private IP address %s is blocked", ErrURLNotAllowed, ip)
	}
	return nil
}

// isPrivateIP checks if an IP address is in a private range
func isPrivateIP(ip net.IP) bool {
	for _, privateRange := range privateIPRanges {
		if privateRange.Contains(ip) {
			return true
		}
	}
	return false
}
