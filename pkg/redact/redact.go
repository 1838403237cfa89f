// Package redact masks secret-shaped substrings out of free-form text
// before it reaches a log line or an audit entry.
package redact

import (
	"regexp"
	"strings"
)

// Pattern pairs a detector with the mask it substitutes in.
type Pattern struct {
	Name    string
	Pattern *regexp.Regexp
	Mask    string
}

// patterns is intentionally narrower than a general-purpose log scrubber:
// it covers the shapes of secret that can plausibly leak through a
// caller-supplied Custom audit message or a host.log call — capability
// tokens, bearer-style tokens, and key/secret assignments — not the full
// HTTP-header/credit-card surface a gateway would need.
var patterns = []Pattern{
	{
		Name:    "capability token",
		Pattern: regexp.MustCompile(`cap_[A-Za-z0-9_-]+_[0-9a-f]{16}`),
		Mask:    "[REDACTED_CAPABILITY]",
	},
	{
		Name:    "bearer token",
		Pattern: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.]{16,}`),
		Mask:    "Bearer [REDACTED_TOKEN]",
	},
	{
		Name:    "key or secret assignment",
		Pattern: regexp.MustCompile(`(?i)(secret|api[_-]?key|private[_-]?key)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{12,})['"]?`),
		Mask:    "$1=[REDACTED]",
	},
}

// String masks every known secret-shaped substring in s.
func String(s string) string {
	if s == "" {
		return s
	}
	out := s
	for _, p := range patterns {
		out = p.Pattern.ReplaceAllString(out, p.Mask)
	}
	return out
}

// sensitiveKeys flags field names whose values should never be echoed,
// regardless of their content.
var sensitiveKeys = []string{"secret", "token", "key", "password", "credential"}

// IsSensitiveKey reports whether a field name suggests its value should
// never be logged verbatim.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
