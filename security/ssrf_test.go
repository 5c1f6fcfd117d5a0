package security

import (
	"errors"
	"net"
	"testing"
)

// TestValidateBackendURLStrictRejections is S6: under SSRFStrict every
// private range, link-local range, and cloud metadata address is
// rejected, along with insecure non-loopback WebSocket schemes.
func TestValidateBackendURLStrictRejections(t *testing.T) {
	t.Parallel()

	cfg := SSRFConfig{Mode: SSRFStrict}

	cases := []struct {
		name string
		url  string
	}{
		{"rfc1918 10/8", "http://10.1.2.3/api"},
		{"rfc1918 172.16/12", "http://172.16.0.1/api"},
		{"rfc1918 192.168/16", "http://192.168.1.1/api"},
		{"link-local", "http://169.254.1.1/api"},
		{"ipv6 unique-local", "http://[fc00::1]/api"},
		{"ipv6 link-local", "http://[fe80::1]/api"},
		{"aws metadata", "http://169.254.169.254/latest/meta-data"},
		{"azure metadata", "http://168.63.129.16/metadata"},
		{"insecure non-loopback websocket", "ws://example.com/socket"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateBackendURL(cfg, tc.url, nil)
			if err == nil {
				t.Fatalf("expected %q to be blocked", tc.url)
			}
			var blocked *BlockedError
			if !errors.As(err, &blocked) {
				t.Fatalf("expected *BlockedError, got %T", err)
			}
		})
	}
}

func TestValidateBackendURLStrictAllowsPublicAndLoopback(t *testing.T) {
	t.Parallel()

	cfg := SSRFConfig{Mode: SSRFStrict}

	for _, u := range []string{
		"https://api.example.com/v1",
		"http://localhost:8080/health",
		"http://127.0.0.1:8080/health",
		"wss://example.com/socket",
		"ws://localhost:8080/socket",
	} {
		if err := ValidateBackendURL(cfg, u, nil); err != nil {
			t.Fatalf("expected %q to be allowed, got error: %v", u, err)
		}
	}
}

func TestValidateBackendURLHostBlocklistAppliesInEveryMode(t *testing.T) {
	t.Parallel()

	cfg := SSRFConfig{Mode: SSRFDisabled, HostBlocklist: []string{"evil.example.com"}}
	err := ValidateBackendURL(cfg, "https://evil.example.com/x", nil)
	if err == nil {
		t.Fatal("expected host-blocklisted url to be rejected even in SSRFDisabled mode")
	}
}

func TestValidateBackendURLMetadataBlockedEvenWhenAllowlisted(t *testing.T) {
	t.Parallel()

	_, allNet, err := net.ParseCIDR("0.0.0.0/0")
	if err != nil {
		t.Fatal(err)
	}
	cfg := SSRFConfig{Mode: SSRFBalanced, Allowlist: []*net.IPNet{allNet}}

	err = ValidateBackendURL(cfg, "http://169.254.169.254/latest/meta-data", nil)
	if err == nil {
		t.Fatal("expected cloud metadata address to be blocked regardless of allowlist")
	}
}

func TestValidateBackendURLBalancedAllowsAllowlistedPrivateRange(t *testing.T) {
	t.Parallel()

	_, allowed, err := net.ParseCIDR("10.0.0.0/8")
	if err != nil {
		t.Fatal(err)
	}
	cfg := SSRFConfig{Mode: SSRFBalanced, Allowlist: []*net.IPNet{allowed}}

	if err := ValidateBackendURL(cfg, "http://10.5.5.5/internal", nil); err != nil {
		t.Fatalf("expected allowlisted private range to be admitted, got: %v", err)
	}
}
