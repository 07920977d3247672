package spec

import (
	"strings"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
	"github.com/shpitdev/specsynth/pkg/pipeline/schema"
)

// KeyKind distinguishes single from composite primary keys.
type KeyKind int

const (
	KeySingle KeyKind = iota
	KeyComposite
)

func (k KeyKind) String() string {
	switch k {
	case KeySingle:
		return "single"
	case KeyComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// KeySpec is a resolved primary key. Fields are always in storage (camelCase) form.
type KeySpec struct {
	Kind   KeyKind
	Fields []string
}

// SingleKey returns a single-field key spec.
func SingleKey(field string) KeySpec {
	return KeySpec{Kind: KeySingle, Fields: []string{ToCamelCase(strings.TrimSpace(field))}}
}

// CompositeKey returns a composite key spec.
func CompositeKey(fields ...string) KeySpec {
	trimmed := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			trimmed = append(trimmed, f)
		}
	}
	return KeySpec{Kind: KeyComposite, Fields: ConvertNames(trimmed)}
}

// Field returns the single key field, or the first composite field.
func (k KeySpec) Field() string {
	if len(k.Fields) == 0 {
		return ""
	}
	return k.Fields[0]
}

// ExtractKeys returns the primary key declared in the schema's source-provenance
// metadata, or nil when none is declared.
//
// The metadata block is looked up at properties.Txn.properties.metaData (enveloped
// schemas), then properties.metaData, then a root-level metaData.
func ExtractKeys(s schema.NormalizedSchema) *KeySpec {
	for _, meta := range metaDataCandidates(s) {
		if key := keyFromMetaData(meta); key != nil {
			return key
		}
	}
	return nil
}

// FallbackKey is the generated key name used when no key is declared.
func FallbackKey(specName string) string {
	specName = strings.TrimSpace(specName)
	if specName == "" {
		return ""
	}
	return ToCamelCase(specName) + "Id"
}

// RequiredFields returns the fields a container schema must mark required: exactly the
// key's fields, or the fallback key when key is nil.
func RequiredFields(key *KeySpec, specName string) []string {
	if key != nil && len(key.Fields) > 0 {
		out := make([]string, len(key.Fields))
		copy(out, key.Fields)
		return out
	}
	if fb := FallbackKey(specName); fb != "" {
		return []string{fb}
	}
	return []string{}
}

func metaDataCandidates(s schema.NormalizedSchema) []*jsonschema.Object {
	var out []*jsonschema.Object
	if env, ok := s.Shape.(schema.Enveloped); ok {
		if meta, ok := env.Body.Path("properties", "metaData"); ok {
			out = append(out, meta)
		}
	}
	if meta, ok := s.Properties().Object("metaData"); ok {
		out = append(out, meta)
	}
	if meta, ok := s.Root.Object("metaData"); ok {
		out = append(out, meta)
	}
	return out
}

func keyFromMetaData(meta *jsonschema.Object) *KeySpec {
	sources, ok := meta.Object("sources")
	if !ok {
		sources, ok = meta.Path("properties", "sources")
	}
	if !ok {
		return nil
	}
	itemProps, ok := sources.Path("items", "properties")
	if !ok {
		return nil
	}

	if items, ok := itemProps.Path("sourcePrimaryKeyFields", "items"); ok {
		if fields := items.Strings("enum"); len(fields) > 0 {
			key := CompositeKey(fields...)
			return &key
		}
	}
	if single, ok := itemProps.Object("sourcePrimaryKeyField"); ok {
		if field, _ := single.String("const"); field != "" {
			key := SingleKey(field)
			return &key
		}
	}
	return nil
}
