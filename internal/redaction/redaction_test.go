package redaction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactMasksKubernetesSecretYAML(t *testing.T) {
	svc := NewService()
	input := "kind: Secret\napiVersion: v1\ndata:\n  password: aGVsbG8=\n"

	out := svc.Redact(input)

	assert.NotContains(t, out, "aGVsbG8=")
	assert.Contains(t, out, MaskedValue)
	assert.Contains(t, out, "kind: Secret")
}

func TestRedactLeavesConfigMapUntouched(t *testing.T) {
	svc := NewService()
	input := "kind: ConfigMap\napiVersion: v1\ndata:\n  color: blue\n"

	out := svc.Redact(input)

	assert.Contains(t, out, "color: blue")
}

func TestRedactMasksBearerToken(t *testing.T) {
	svc := NewService()
	input := "calling downstream with Authorization: Bearer sk-abcdef1234567890"

	out := svc.Redact(input)

	assert.False(t, strings.Contains(out, "sk-abcdef1234567890"))
	assert.Contains(t, out, "Bearer "+MaskedValue)
}

func TestRedactMasksSecretEmbeddedInAnnotation(t *testing.T) {
	svc := NewService()
	input := `kind: ConfigMap
apiVersion: v1
metadata:
  name: app-config
  annotations:
    kubectl.kubernetes.io/last-applied-configuration: '{"apiVersion":"v1","kind":"Secret","data":{"password":"aGVsbG8="}}'
data:
  color: blue
`

	out := svc.Redact(input)

	assert.NotContains(t, out, "aGVsbG8=")
	assert.Contains(t, out, MaskedValue)
	assert.Contains(t, out, "color: blue")
	assert.Contains(t, out, "kind: ConfigMap")
}

func TestRedactPtrLeavesNilUntouched(t *testing.T) {
	svc := NewService()
	svc.RedactPtr(nil)
}

func TestRedactPtrMasksInPlace(t *testing.T) {
	svc := NewService()
	v := "password=supersecret123"
	svc.RedactPtr(&v)
	assert.Contains(t, v, MaskedValue)
}
