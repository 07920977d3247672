package spec

import (
	"unicode"
	"unicode/utf8"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
)

// System names that are already in storage form and must not be rewritten.
var caseExceptions = map[string]struct{}{
	"id":           {},
	"partitionKey": {},
	"metaData":     {},
	"createTime":   {},
	"updateTime":   {},
}

// ToCamelCase lowercases the first rune of name. Names in the system exception list
// are returned unchanged.
func ToCamelCase(name string) string {
	if isCaseException(name) {
		return name
	}
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}

func isCaseException(name string) bool {
	_, ok := caseExceptions[name]
	return ok
}

// ConvertNames applies ToCamelCase to each name, dropping duplicates produced by the
// rewrite. Order is preserved.
func ConvertNames(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		c := ToCamelCase(n)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// ConvertSchemaProperties returns a copy of schema with every property name and
// "required" entry rewritten by ToCamelCase, recursing into nested object and array
// subschemas. When two names collide after rewriting, a system name already in
// storage form (e.g. "createTime") keeps its slot; otherwise the first one wins.
func ConvertSchemaProperties(schema *jsonschema.Object) *jsonschema.Object {
	if schema == nil {
		return nil
	}
	out := schema.Clone()
	convertNode(out)
	return out
}

func convertNode(node *jsonschema.Object) {
	renamed := make(map[string]string)

	if props, ok := node.Object("properties"); ok {
		owner := make(map[string]string)
		for _, k := range props.Keys() {
			n := ToCamelCase(k)
			renamed[k] = n
			if _, taken := owner[n]; !taken || isCaseException(k) {
				owner[n] = k
			}
		}
		next := jsonschema.NewObject()
		props.Range(func(key string, value any) bool {
			newKey := renamed[key]
			if owner[newKey] != key {
				return true
			}
			if child, ok := value.(*jsonschema.Object); ok {
				convertNode(child)
			}
			next.Set(newKey, value)
			return true
		})
		node.Set("properties", next)
	}

	if v, ok := node.Get("required"); ok {
		if list, ok := v.([]any); ok {
			seen := make(map[string]struct{}, len(list))
			next := make([]any, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					continue
				}
				n, ok := renamed[s]
				if !ok {
					n = ToCamelCase(s)
				}
				if _, dup := seen[n]; dup {
					continue
				}
				seen[n] = struct{}{}
				next = append(next, n)
			}
			node.Set("required", next)
		}
	}

	for _, key := range []string{"items", "additionalProperties"} {
		v, ok := node.Get(key)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case *jsonschema.Object:
			convertNode(t)
		case []any:
			for _, item := range t {
				if child, ok := item.(*jsonschema.Object); ok {
					convertNode(child)
				}
			}
		}
	}
}
