package expressions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Interpolate replaces every ${{...}} reference in template with the
// referenced scope value. Supported references:
//
//	${{value}}            first input
//	${{inputs.<n>}}       input n, optionally followed by .<field>
//	${{params.<name>}}    node parameter
//	${{node.<field>}}     node metadata
func Interpolate(template string, scope *Scope) (string, error) {
	if scope == nil {
		scope = &Scope{}
	}

	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "${{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 3

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		end += start

		ref := strings.TrimSpace(template[start:end])
		if strings.Contains(ref, "${{") {
			return "", schema.NewError(schema.ErrCodeInterpolation,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}
		if ref == "" {
			return "", schema.NewError(schema.ErrCodeInterpolation, "empty variable reference: ${{  }}")
		}

		val, err := resolveRef(ref, scope)
		if err != nil {
			return "", err
		}
		result.WriteString(formatInline(val))

		i = end + 2
	}

	return result.String(), nil
}

// ValidateTemplate checks that every ${{...}} reference in template is
// well formed and names a known namespace, without resolving values.
func ValidateTemplate(template string) error {
	rest := template
	for {
		idx := strings.Index(rest, "${{")
		if idx == -1 {
			return nil
		}
		rest = rest[idx+3:]
		end := strings.Index(rest, "}}")
		if end == -1 {
			return schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		ref := strings.TrimSpace(rest[:end])
		if ref == "" || strings.Contains(ref, "${{") {
			return schema.NewErrorf(schema.ErrCodeInterpolation, "invalid reference ${{%s}}", ref)
		}
		namespace, _, _ := strings.Cut(ref, ".")
		switch namespace {
		case "value", "inputs", "params", "node":
		default:
			return schema.NewErrorf(schema.ErrCodeInterpolation, "unknown namespace %q in ${{%s}}", namespace, ref)
		}
		rest = rest[end+2:]
	}
}

// HasInterpolation reports whether s contains any ${{...}} reference.
func HasInterpolation(s string) bool {
	return strings.Contains(s, "${{")
}

func resolveRef(ref string, scope *Scope) (any, error) {
	namespace, rest, _ := strings.Cut(ref, ".")

	switch namespace {
	case "value":
		if rest == "" {
			return scope.Value(), nil
		}
		return traversePath(scope.Value(), rest, ref)
	case "inputs":
		if rest == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"invalid input reference %q: expected inputs.<index>", ref).
				WithDetails(map[string]any{"expression": ref})
		}
		return traversePath(scope.Inputs, rest, ref)
	case "params":
		return resolveFromMap(scope.Params, rest, ref, "params")
	case "node":
		return resolveFromMap(scope.Node, rest, ref, "node")
	default:
		available := []string{"value", "inputs", "params", "node"}
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unknown namespace %q in ${{%s}}; available: %s", namespace, ref, strings.Join(available, ", ")).
			WithDetails(map[string]any{"expression": ref, "available_namespaces": available})
	}
}

// resolveFromMap resolves a dot-delimited field path from a map.
func resolveFromMap(data map[string]any, fieldPath, ref, namespace string) (any, error) {
	if fieldPath == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid %s reference %q: expected %s.<field>", namespace, ref, namespace).
			WithDetails(map[string]any{"expression": ref})
	}
	if data == nil {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"cannot resolve %q: %s scope is empty", ref, namespace).
			WithDetails(map[string]any{"expression": ref})
	}

	// Direct key lookup first supports keys containing dots.
	if val, ok := data[fieldPath]; ok {
		return val, nil
	}
	return traversePath(data, fieldPath, ref)
}

// traversePath navigates nested maps and slices using a dot-delimited path.
// Numeric segments index into slices.
func traversePath(root any, path, ref string) (any, error) {
	current := root

	for i, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"empty segment in path %q at position %d", ref, i).
				WithDetails(map[string]any{"expression": ref})
		}

		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				availableKeys := mapKeys(v)
				return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
					"field %q not found in %q; available: [%s]", seg, ref, strings.Join(availableKeys, ", ")).
					WithDetails(map[string]any{"expression": ref, "available_fields": availableKeys})
			}
			current = val
		case []any:
			n, err := strconv.Atoi(seg)
			if err != nil || n < 0 || n >= len(v) {
				return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
					"index %q out of range in %q (length %d)", seg, ref, len(v)).
					WithDetails(map[string]any{"expression": ref})
			}
			current = v[n]
		default:
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, ref, current).
				WithDetails(map[string]any{"expression": ref})
		}
	}

	return current, nil
}

// formatInline renders a resolved value for embedding in text.
// Strings are embedded verbatim; maps and slices are JSON-encoded.
func formatInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// mapKeys returns sorted keys from a map[string]any.
func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
