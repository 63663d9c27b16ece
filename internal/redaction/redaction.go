// Package redaction masks secrets that agent tool calls routinely surface
// (Kubernetes Secret manifests, bearer tokens, cloud credentials) out of
// span previews and tool payloads before they reach storage.
package redaction

import "regexp"

const MaskedValue = "[REDACTED]"

// Masker is a structural masker that understands a specific payload shape
// (as opposed to a flat regex sweep).
type Masker interface {
	// Name identifies the masker for logging.
	Name() string
	// AppliesTo is a cheap pre-check (substring, not parsing) before Mask
	// is attempted.
	AppliesTo(data string) bool
	// Mask applies masking and returns the result. Must be defensive:
	// return the original data on parse errors.
	Mask(data string) string
}

// CompiledPattern is a single regex-based redaction rule.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns is a small, fixed sweep of common secret shapes. Unlike
// the teacher's config-driven per-MCP-server pattern registry, this
// collector has no per-source configuration surface, so the patterns apply
// uniformly to every span.
func builtinPatterns() []*CompiledPattern {
	return []*CompiledPattern{
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)bearer\s+[a-z0-9._-]{10,}`),
			Replacement: "Bearer " + MaskedValue,
		},
		{
			Name:        "aws_access_key",
			Regex:       regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
			Replacement: MaskedValue,
		},
		{
			Name:        "generic_api_key_assignment",
			Regex:       regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["']?[a-z0-9._\-]{8,}["']?`),
			Replacement: `$1=` + MaskedValue,
		},
	}
}
