package ogmeta

import (
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// clientOption configures the outbound HTTP clients of the fetcher and proxy.
type clientOption func(*clientOptions)

type clientOptions struct {
	allowPrivate bool
}

// allowPrivateNetworks disables the private address guard. Tests only.
func allowPrivateNetworks() clientOption {
	return func(o *clientOptions) {
		o.allowPrivate = true
	}
}

// blockedNetworks are reserved ranges not covered by the net.IP predicates.
var blockedNetworks = mustParseCIDRs(
	"0.0.0.0/8",     // "this" network
	"100.64.0.0/10", // carrier-grade NAT
	"169.254.0.0/16",
	"192.0.0.0/24",
	"198.18.0.0/15", // benchmarking
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", cidr, err))
		}
		nets = append(nets, network)
	}
	return nets
}

// isPrivateIP checks if an IP is loopback, private, link-local or otherwise
// not publicly routable.
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// guardDial rejects connections to non-public addresses. It runs after DNS
// resolution for every dial, so redirect hops and rebinding are covered.
func guardDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if ip := net.ParseIP(host); isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// newHTTPClient creates the client used for user-supplied URLs.
func newHTTPClient(opts ...clientOption) *http.Client {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !o.allowPrivate {
		dialer.Control = guardDial
	}

	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}
