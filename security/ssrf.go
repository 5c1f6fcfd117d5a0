package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// SSRFMode selects the strictness of outbound backend URL validation, per
// spec.md §4.7.3.
type SSRFMode int

const (
	// SSRFStrict rejects all private/link-local ranges and requires wss://
	// for non-loopback WebSocket backends. Default.
	SSRFStrict SSRFMode = iota
	// SSRFBalanced is Strict plus a configured CIDR allowlist; cloud
	// metadata addresses remain blocked regardless.
	SSRFBalanced
	// SSRFDisabled performs no checks. Explicit opt-in only.
	SSRFDisabled
)

// privateRanges are the RFC1918 and link-local ranges rejected under
// Strict/Balanced modes.
var privateRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"fc00::/7",
	"fe80::/10",
)

// metadataIPs are cloud metadata endpoints blocked in every mode except
// Disabled.
var metadataIPs = map[string]bool{
	"169.254.169.254": true, // AWS / GCP
	"168.63.129.16":   true, // Azure
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("security: invalid CIDR literal %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// SSRFConfig configures backend URL validation for HTTP/WebSocket clients
// the runtime dials out to (e.g. a proxying transport).
type SSRFConfig struct {
	Mode SSRFMode
	// Allowlist holds additional CIDRs accepted under Balanced mode.
	Allowlist []*net.IPNet
	// HostBlocklist rejects hostnames by exact (case-insensitive) string
	// match, honored in every mode.
	HostBlocklist []string
	// RequireSecureScheme, when true, only allows https/wss in every mode,
	// except that http/ws stay allowed for loopback hosts (production
	// deployments should set this).
	RequireSecureScheme bool
}

// BlockedError explains why a backend URL was rejected.
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked backend url %q: %s", e.URL, e.Reason)
}

// ValidateBackendURL checks rawURL against cfg: the host blocklist, the
// address-range checks and the scheme rules. The address checks use
// resolvedIP when it is non-nil, otherwise the host itself when it is a
// literal IP. Hostnames are never resolved here, so a hostname passed
// without resolvedIP gets no address-range checks (callers doing their
// own resolution should pass the resolved address).
func ValidateBackendURL(cfg SSRFConfig, rawURL string, resolvedIP net.IP) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &BlockedError{URL: rawURL, Reason: "unparseable url"}
	}
	host := u.Hostname()
	for _, blocked := range cfg.HostBlocklist {
		if strings.EqualFold(blocked, host) {
			return &BlockedError{URL: rawURL, Reason: "host blocklisted"}
		}
	}

	isWS := u.Scheme == "ws" || u.Scheme == "wss"
	isLoopbackHost := host == "localhost" || host == "127.0.0.1" || host == "::1"

	if cfg.Mode == SSRFDisabled {
		return validateScheme(cfg, u.Scheme, isLoopbackHost, rawURL)
	}

	ip := resolvedIP
	if ip == nil {
		ip = net.ParseIP(host)
	}
	if ip != nil {
		if metadataIPs[ip.String()] {
			return &BlockedError{URL: rawURL, Reason: "cloud metadata endpoint"}
		}
		if isPrivate(ip) {
			if cfg.Mode == SSRFBalanced && cidrsContain(cfg.Allowlist, ip) {
				// allowlisted, fall through to scheme check
			} else {
				return &BlockedError{URL: rawURL, Reason: "private address range"}
			}
		}
	}

	if isWS && !isLoopbackHost && u.Scheme != "wss" {
		return &BlockedError{URL: rawURL, Reason: "secure protocol required for non-loopback websocket"}
	}

	return validateScheme(cfg, u.Scheme, isLoopbackHost, rawURL)
}

func validateScheme(cfg SSRFConfig, scheme string, isLoopback bool, rawURL string) error {
	if !cfg.RequireSecureScheme {
		return nil
	}
	switch scheme {
	case "https", "wss":
		return nil
	case "http", "ws":
		if isLoopback {
			return nil
		}
		return &BlockedError{URL: rawURL, Reason: "secure protocol required"}
	default:
		return &BlockedError{URL: rawURL, Reason: "unsupported scheme"}
	}
}

func isPrivate(ip net.IP) bool {
	return cidrsContain(privateRanges, ip)
}

func cidrsContain(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
