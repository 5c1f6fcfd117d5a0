package security

import (
	"fmt"
	"strings"
)

// InputLimits bounds the size of untrusted input accepted by the router
// and handlers, per spec.md §4.7.2. Three presets are provided; callers
// may also construct custom limits directly.
type InputLimits struct {
	MaxStringLength   int
	MaxParamNameLength int
	MaxURILength      int
	MaxParams         int
}

// ProductionLimits are the tightest bounds, for public-facing deployments.
func ProductionLimits() InputLimits {
	return InputLimits{MaxStringLength: 64 << 10, MaxParamNameLength: 128, MaxURILength: 2048, MaxParams: 50}
}

// DefaultLimits are the balanced defaults used absent explicit configuration.
func DefaultLimits() InputLimits {
	return InputLimits{MaxStringLength: 1 << 20, MaxParamNameLength: 256, MaxURILength: 8192, MaxParams: 100}
}

// DevelopmentLimits are the loosest bounds, for local development only.
func DevelopmentLimits() InputLimits {
	return InputLimits{MaxStringLength: 10 << 20, MaxParamNameLength: 512, MaxURILength: 65536, MaxParams: 1000}
}

// ValidationError reports that actual exceeded max for a given dimension.
type ValidationError struct {
	Dimension string
	Actual    int
	Max       int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s too large: %d exceeds max %d", e.Dimension, e.Actual, e.Max)
}

// CheckStringLength validates s against MaxStringLength.
func (l InputLimits) CheckStringLength(s string) error {
	if len(s) > l.MaxStringLength {
		return &ValidationError{Dimension: "string_length", Actual: len(s), Max: l.MaxStringLength}
	}
	return nil
}

// CheckParamName validates name against MaxParamNameLength.
func (l InputLimits) CheckParamName(name string) error {
	if len(name) > l.MaxParamNameLength {
		return &ValidationError{Dimension: "param_name_length", Actual: len(name), Max: l.MaxParamNameLength}
	}
	return nil
}

// CheckURILength validates uri against MaxURILength.
func (l InputLimits) CheckURILength(uri string) error {
	if len(uri) > l.MaxURILength {
		return &ValidationError{Dimension: "uri_length", Actual: len(uri), Max: l.MaxURILength}
	}
	return nil
}

// CheckParamCount validates count against MaxParams.
func (l InputLimits) CheckParamCount(count int) error {
	if count > l.MaxParams {
		return &ValidationError{Dimension: "param_count", Actual: count, Max: l.MaxParams}
	}
	return nil
}

// allowedURISchemes is the fixed scheme allowlist from spec.md §4.7.2.
var allowedURISchemes = map[string]bool{
	"file": true, "http": true, "https": true, "data": true, "mcp": true,
}

// InvalidURISchemeError indicates a URI used a scheme outside the allowlist
// or was malformed (e.g. a bare scheme with no following path/data).
type InvalidURISchemeError struct {
	URI string
}

func (e *InvalidURISchemeError) Error() string {
	return fmt.Sprintf("invalid or disallowed uri scheme: %q", e.URI)
}

// ValidateURIScheme extracts and validates the scheme of uri against the
// fixed allowlist {file, http, https, data, mcp}. The scheme is split at
// the first colon by hand rather than with net/url. Both "scheme://..."
// (network-style) and "scheme:..." (opaque, e.g. data URIs) are accepted;
// a URI with nothing after "scheme:" or after "scheme://" is rejected.
func ValidateURIScheme(uri string) (string, error) {
	idx := strings.Index(uri, ":")
	if idx <= 0 {
		return "", &InvalidURISchemeError{URI: uri}
	}
	scheme := strings.ToLower(uri[:idx])
	if !allowedURISchemes[scheme] {
		return "", &InvalidURISchemeError{URI: uri}
	}
	rest := uri[idx+1:]
	if rest == "" || rest == "//" {
		return "", &InvalidURISchemeError{URI: uri}
	}
	return scheme, nil
}
