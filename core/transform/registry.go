// Package transform implements the transformer registry of spec component G:
// a pure, deterministic per-endpoint function from a raw vendor payload to
// the proxy's normalized schema.
package transform

import (
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Func is a pure transformation: the same raw bytes always yield the same
// normalized bytes. now is injected rather than read from the clock so
// transforms stay deterministic and testable.
type Func func(raw []byte, now time.Time) ([]byte, error)

// Registry maps endpoint name to its Func, falling back to Identity for any
// endpoint without a registered entry.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry builds a Registry pre-populated with the required endpoints:
// tournaments, rankings, field, scoring, player-stats, betting-odds.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("tournaments", ListTransform)
	r.Register("rankings", ListTransform)
	r.Register("field", ListTransform)
	r.Register("scoring", ListTransform)
	r.Register("player-stats", ListTransform)
	r.Register("betting-odds", ListTransform)
	return r
}

// Register installs or overrides the Func for endpoint.
func (r *Registry) Register(endpoint string, fn Func) {
	r.funcs[endpoint] = fn
}

// For returns the Func for endpoint, or Identity if none is registered.
func (r *Registry) For(endpoint string) Func {
	if fn, ok := r.funcs[endpoint]; ok {
		return fn
	}
	return Identity
}

// Identity returns raw unchanged; it is the default for endpoints with no
// registered transform.
func Identity(raw []byte, _ time.Time) ([]byte, error) {
	return raw, nil
}

// ListTransform renames top-level and nested object keys from the vendor's
// snake_case schema to camelCase, then wraps the result as
// {items: [...], metadata: {count, transformed_at}}. If raw does not decode
// as a JSON array, it is treated as a single-item list.
func ListTransform(raw []byte, now time.Time) ([]byte, error) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	var items []interface{}
	if arr, ok := decoded.([]interface{}); ok {
		items = arr
	} else {
		items = []interface{}{decoded}
	}

	normalized := make([]interface{}, len(items))
	for i, item := range items {
		normalized[i] = camelizeValue(item)
	}

	out := map[string]interface{}{
		"items": normalized,
		"metadata": map[string]interface{}{
			"count":          len(normalized),
			"transformed_at": now.UTC().Format(time.RFC3339),
		},
	}
	return json.Marshal(out)
}

// camelizeValue recursively renames snake_case object keys to camelCase,
// leaving arrays and scalars structurally unchanged.
func camelizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[toCamelCase(k)] = camelizeValue(val[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = camelizeValue(item)
		}
		return out
	default:
		return val
	}
}

// toCamelCase converts a snake_case field name to camelCase. Names with no
// underscore pass through unchanged.
func toCamelCase(name string) string {
	parts := strings.Split(name, "_")
	if len(parts) == 1 {
		return name
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
