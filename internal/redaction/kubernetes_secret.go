package redaction

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	yamlSecretKind = regexp.MustCompile(`(?m)^kind:\s*Secret\s*$`)
	jsonSecretKind = regexp.MustCompile(`"kind"\s*:\s*"Secret"`)
)

// KubernetesSecretMasker masks data/stringData fields in Kubernetes Secret
// manifests while leaving other resource kinds untouched. Agent tool output
// frequently embeds `kubectl get secret -o yaml|json` results.
type KubernetesSecretMasker struct{}

func (m *KubernetesSecretMasker) Name() string { return "kubernetes_secret" }

func (m *KubernetesSecretMasker) AppliesTo(data string) bool {
	if !strings.Contains(data, "Secret") {
		return false
	}
	return yamlSecretKind.MatchString(data) || jsonSecretKind.MatchString(data)
}

// Mask detects JSON vs YAML and masks Secret resources found within.
// Returns the original data unchanged on any parse error or when nothing
// needed masking.
func (m *KubernetesSecretMasker) Mask(data string) string {
	trimmed := strings.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if masked := m.maskJSON(data); masked != data {
			return masked
		}
	}
	return m.maskYAML(data)
}

func (m *KubernetesSecretMasker) maskYAML(data string) string {
	decoder := yaml.NewDecoder(strings.NewReader(data))
	var docs []map[string]any
	anySecret := false

	for {
		var doc map[string]any
		err := decoder.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return data
		}
		if doc == nil {
			continue
		}
		if isSecretKind(doc) {
			maskSecretDataFields(doc)
			anySecret = true
		} else if isListKind(doc) {
			anySecret = maskListItems(doc) || anySecret
		}
		anySecret = maskAnnotationSecrets(doc) || anySecret
		docs = append(docs, doc)
	}

	if !anySecret || len(docs) == 0 {
		return data
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return data
		}
	}
	if err := enc.Close(); err != nil {
		return data
	}

	result := strings.TrimRight(buf.String(), "\n")
	if strings.HasSuffix(data, "\n") {
		result += "\n"
	}
	return result
}

func (m *KubernetesSecretMasker) maskJSON(data string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return data
	}

	masked := false
	if isSecretKind(obj) {
		maskSecretDataFields(obj)
		masked = true
	} else if isListKind(obj) {
		masked = maskListItems(obj)
	}
	masked = maskAnnotationSecrets(obj) || masked
	if !masked {
		return data
	}

	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return data
	}
	result := string(out)
	if strings.HasSuffix(data, "\n") {
		result += "\n"
	}
	return result
}

func isSecretKind(resource map[string]any) bool {
	kind, _ := resource["kind"].(string)
	return kind == "Secret" || kind == "SecretList"
}

func isListKind(resource map[string]any) bool {
	kind, _ := resource["kind"].(string)
	return kind == "List" || strings.HasSuffix(kind, "List")
}

func maskListItems(doc map[string]any) bool {
	items, ok := doc["items"].([]any)
	if !ok {
		return false
	}
	masked := false
	for _, item := range items {
		if itemMap, ok := item.(map[string]any); ok && isSecretKind(itemMap) {
			maskSecretDataFields(itemMap)
			masked = true
		}
	}
	return masked
}

// maskAnnotationSecrets checks a resource's annotations for embedded JSON
// carrying Secret data, which kubectl apply routinely stashes in
// kubectl.kubernetes.io/last-applied-configuration regardless of the
// resource's own kind. Reports whether it masked anything.
func maskAnnotationSecrets(resource map[string]any) bool {
	metadata, ok := resource["metadata"].(map[string]any)
	if !ok {
		return false
	}
	annotations, ok := metadata["annotations"].(map[string]any)
	if !ok {
		return false
	}

	masked := false
	for key, val := range annotations {
		strVal, ok := val.(string)
		if !ok || !strings.Contains(strVal, "Secret") {
			continue
		}
		var embedded map[string]any
		if err := json.Unmarshal([]byte(strVal), &embedded); err != nil {
			continue
		}
		if !isSecretKind(embedded) {
			continue
		}
		maskSecretDataFields(embedded)
		out, err := json.Marshal(embedded)
		if err != nil {
			continue
		}
		annotations[key] = string(out)
		masked = true
	}
	return masked
}

func maskSecretDataFields(resource map[string]any) {
	if kind, _ := resource["kind"].(string); kind == "SecretList" {
		maskListItems(resource)
		return
	}
	for _, field := range []string{"data", "stringData"} {
		dataMap, ok := resource[field].(map[string]any)
		if !ok {
			continue
		}
		for key := range dataMap {
			dataMap[key] = MaskedValue
		}
	}
}
