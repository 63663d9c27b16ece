package redaction

// Service applies structural and pattern-based redaction to span fields
// before they are persisted. Stateless aside from its compiled patterns and
// registered maskers; safe to share across goroutines.
type Service struct {
	patterns []*CompiledPattern
	maskers  []Masker
}

// NewService builds a redaction service with the built-in pattern sweep and
// the Kubernetes Secret structural masker registered.
func NewService() *Service {
	return &Service{
		patterns: builtinPatterns(),
		maskers:  []Masker{&KubernetesSecretMasker{}},
	}
}

// Redact applies structural maskers first (more specific, shape-aware),
// then the regex sweep. Errors are impossible by construction (every
// Masker.Mask is defensive), so this never fails; on any unexpected state
// it returns the input unchanged rather than dropping telemetry.
func (s *Service) Redact(content string) string {
	if content == "" {
		return content
	}

	masked := content
	for _, masker := range s.maskers {
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// RedactPtr redacts *p in place, leaving a nil pointer untouched.
func (s *Service) RedactPtr(p *string) {
	if p == nil {
		return
	}
	*p = s.Redact(*p)
}
