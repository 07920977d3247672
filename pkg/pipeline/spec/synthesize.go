package spec

import (
	"strings"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
)

// DefaultSchemaVersion is used when the registry did not report a version.
const DefaultSchemaVersion = "1"

// SynthesisInput carries the classified entity and the resolved key into Synthesize.
type SynthesisInput struct {
	Entity   *jsonschema.Object
	Key      *KeySpec
	Version  string
	SpecName string
}

// ContainerSchema is the storage-ready document schema.
type ContainerSchema struct {
	SchemaVersion         string
	Properties            *jsonschema.Object
	Required              []string
	UnevaluatedProperties bool
}

// Synthesize merges the entity properties with the system fields in fixed order:
// id, partitionKey, entity fields, metaData, createTime, updateTime.
func Synthesize(in SynthesisInput) ContainerSchema {
	required := RequiredFields(in.Key, in.SpecName)

	props := jsonschema.NewObject()
	props.Set("id", idField(required))
	props.Set("partitionKey", partitionKeyField())
	in.Entity.Range(func(name string, value any) bool {
		if IsReserved(name) || props.Has(name) {
			return true
		}
		props.Set(name, value)
		return true
	})
	props.Set("metaData", metaDataField(in.Key, required))
	props.Set("createTime", timestampField("Set by the storage service when the document is created; not client-supplied."))
	props.Set("updateTime", timestampField("Set by the storage service on every write; not client-supplied."))

	version := strings.TrimSpace(in.Version)
	if version == "" {
		version = DefaultSchemaVersion
	}
	return ContainerSchema{
		SchemaVersion:         version,
		Properties:            props,
		Required:              required,
		UnevaluatedProperties: true,
	}
}

// Object renders the schema as an ordered JSON object.
func (c ContainerSchema) Object() *jsonschema.Object {
	required := make([]any, 0, len(c.Required))
	for _, r := range c.Required {
		required = append(required, r)
	}
	props := c.Properties
	if props == nil {
		props = jsonschema.NewObject()
	}
	return jsonschema.NewObject().
		Set("schemaVersion", c.SchemaVersion).
		Set("type", "object").
		Set("properties", props).
		Set("required", required).
		Set("unevaluatedProperties", c.UnevaluatedProperties)
}

func (c ContainerSchema) MarshalJSON() ([]byte, error) {
	return c.Object().MarshalJSON()
}

func idField(keyFields []string) *jsonschema.Object {
	desc := "Document id. Mirrors the resolved primary key value"
	if len(keyFields) > 0 {
		desc += " (" + strings.Join(keyFields, ", ") + ")"
	}
	return jsonschema.NewObject().
		Set("type", "string").
		Set("description", desc+".")
}

func partitionKeyField() *jsonschema.Object {
	return jsonschema.NewObject().
		Set("type", "string").
		Set("description", "Storage partition key. Independent of any partitioning in the source system.")
}

func timestampField(desc string) *jsonschema.Object {
	return jsonschema.NewObject().
		Set("type", []any{"string", "null"}).
		Set("format", "date-time").
		Set("description", desc)
}

func nullableString() *jsonschema.Object {
	return jsonschema.NewObject().Set("type", []any{"string", "null"})
}

// metaDataField builds the source-provenance block. The resolved key is re-declared in
// it so ExtractKeys on a synthesized schema yields the same key.
func metaDataField(key *KeySpec, required []string) *jsonschema.Object {
	pkField := jsonschema.NewObject().Set("type", "string")
	pkItems := jsonschema.NewObject().Set("type", "string")
	switch {
	case key != nil && key.Kind == KeyComposite && len(key.Fields) > 0:
		enum := make([]any, 0, len(key.Fields))
		for _, f := range key.Fields {
			enum = append(enum, f)
		}
		pkItems.Set("enum", enum)
	case len(required) > 0:
		pkField.Set("const", required[0])
	}

	sourceProps := jsonschema.NewObject().
		Set("sourceDatabase", jsonschema.NewObject().Set("type", "string")).
		Set("sourceTable", jsonschema.NewObject().Set("type", "string")).
		Set("sourcePrimaryKeyField", pkField).
		Set("sourcePrimaryKeyFields", jsonschema.NewObject().Set("type", "array").Set("items", pkItems)).
		Set("sourceCreateTime", nullableString().Set("format", "date-time")).
		Set("sourceUpdateTime", nullableString().Set("format", "date-time")).
		Set("sourceEtag", nullableString())

	sources := jsonschema.NewObject().
		Set("type", "array").
		Set("items", jsonschema.NewObject().Set("type", "object").Set("properties", sourceProps))

	return jsonschema.NewObject().
		Set("type", "object").
		Set("description", "Provenance of the document in its source systems.").
		Set("properties", jsonschema.NewObject().Set("sources", sources))
}
