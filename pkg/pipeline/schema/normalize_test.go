package schema_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/pipeline/schema"
)

func TestNormalize_JSONPassThroughFlat(t *testing.T) {
	raw := []byte(`{"type":"object","properties":{"LocId":{"type":"string"},"Name":{"type":"string"}},"required":["Name"]}`)

	got, err := schema.Normalize(raw, core.ArtifactTypeJSON)
	require.NoError(t, err)

	flat, ok := got.Shape.(schema.Flat)
	require.True(t, ok, "shape=%s", spew.Sdump(got.Shape))
	assert.Same(t, got.Root, flat.Root)
	assert.Equal(t, []string{"LocId", "Name"}, got.EntityProperties().Keys())
	assert.Equal(t, []string{"Name"}, got.Root.Strings("required"))
	assert.Equal(t, core.ArtifactTypeJSON, got.SourceType)
}

func TestNormalize_DetectsEnvelope(t *testing.T) {
	raw := []byte(`{"properties":{"TxnType":{"type":"string"},"Txn":{"type":"object","properties":{"CustomerId":{"type":"string"},"Name":{"type":"string"}}}}}`)

	got, err := schema.Normalize(raw, core.ArtifactTypeJSON)
	require.NoError(t, err)

	env, ok := got.Shape.(schema.Enveloped)
	require.True(t, ok, "shape=%s", spew.Sdump(got.Shape))
	assert.Equal(t, "TxnType", env.Discriminator)
	assert.Equal(t, schema.EnvelopeKey, env.EnvelopeKey)
	assert.Equal(t, []string{"CustomerId", "Name"}, got.EntityProperties().Keys())
	assert.Equal(t, []string{"TxnType", "Txn"}, got.Properties().Keys())
}

func TestNormalize_DiscriminatorPrefersTxnType(t *testing.T) {
	raw := []byte(`{"properties":{"EventTime":{"type":"string"},"TxnType":{"type":"string"},"Txn":{"properties":{"OrderId":{"type":"string"},"EventTime":{"type":"string"}}}}}`)

	got, err := schema.Normalize(raw, core.ArtifactTypeJSON)
	require.NoError(t, err)

	env, ok := got.Shape.(schema.Enveloped)
	require.True(t, ok)
	assert.Equal(t, schema.DefaultDiscriminator, env.Discriminator)
	assert.Equal(t, []string{"OrderId", "EventTime"}, got.EntityProperties().Keys())
}

func TestNormalize_TxnWithoutPropertiesIsFlat(t *testing.T) {
	raw := []byte(`{"properties":{"TxnType":{"type":"string"},"Txn":{"type":"string"}}}`)

	got, err := schema.Normalize(raw, core.ArtifactTypeJSON)
	require.NoError(t, err)

	_, ok := got.Shape.(schema.Flat)
	assert.True(t, ok)
}

func TestNormalize_MissingStructureYieldsEmptyProperties(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty object", raw: `{}`},
		{name: "properties not an object", raw: `{"properties":"nope"}`},
		{name: "array payload", raw: `[1,2,3]`},
		{name: "scalar payload", raw: `"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schema.Normalize([]byte(tt.raw), core.ArtifactTypeJSON)
			require.NoError(t, err)
			assert.Equal(t, 0, got.EntityProperties().Len())
			_, ok := got.Shape.(schema.Flat)
			assert.True(t, ok)
		})
	}
}

func TestNormalize_MalformedJSONIsValidationError(t *testing.T) {
	_, err := schema.Normalize([]byte(`{"properties": }`), core.ArtifactTypeJSON)
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

func TestNormalize_AvroRecord(t *testing.T) {
	raw := []byte(`{
	  "type": "record",
	  "name": "Quote",
	  "namespace": "com.example.bid",
	  "doc": "A quote",
	  "fields": [
	    {"name": "QuoteId", "type": "long"},
	    {"name": "Customer", "type": ["null", "string"], "default": null},
	    {"name": "Amount", "type": {"type": "bytes", "logicalType": "decimal", "precision": 10, "scale": 2}},
	    {"name": "CreatedAt", "type": {"type": "long", "logicalType": "timestamp-millis"}, "doc": "creation time"},
	    {"name": "Status", "type": {"type": "enum", "name": "QuoteStatus", "symbols": ["OPEN", "CLOSED"]}},
	    {"name": "PrevStatus", "type": ["null", "QuoteStatus"]},
	    {"name": "Tags", "type": {"type": "array", "items": "string"}},
	    {"name": "Attrs", "type": {"type": "map", "values": "int"}},
	    {"name": "Line", "type": {"type": "record", "name": "Line", "fields": [{"name": "LineId", "type": "int"}]}},
	    {"name": "Active", "type": "boolean"}
	  ]
	}`)

	got, err := schema.Normalize(raw, core.ArtifactTypeAVRO)
	require.NoError(t, err)

	props := got.EntityProperties()
	require.Equal(t, []string{"QuoteId", "Customer", "Amount", "CreatedAt", "Status", "PrevStatus", "Tags", "Attrs", "Line", "Active"}, props.Keys())

	typeOf := func(name string) any {
		p, ok := props.Object(name)
		require.True(t, ok, name)
		v, _ := p.Get("type")
		return v
	}
	assert.Equal(t, "integer", typeOf("QuoteId"))
	assert.Equal(t, []any{"string", "null"}, typeOf("Customer"))
	assert.Equal(t, "number", typeOf("Amount"))
	assert.Equal(t, "string", typeOf("CreatedAt"))
	assert.Equal(t, "string", typeOf("Status"))
	assert.Equal(t, []any{"string", "null"}, typeOf("PrevStatus"))
	assert.Equal(t, "array", typeOf("Tags"))
	assert.Equal(t, "object", typeOf("Attrs"))
	assert.Equal(t, "object", typeOf("Line"))
	assert.Equal(t, "boolean", typeOf("Active"))

	created, _ := props.Object("CreatedAt")
	format, _ := created.String("format")
	assert.Equal(t, "date-time", format)
	desc, _ := created.String("description")
	assert.Equal(t, "creation time", desc)

	prev, _ := props.Object("PrevStatus")
	assert.Equal(t, []string{"OPEN", "CLOSED"}, prev.Strings("enum"))

	line, _ := props.Object("Line")
	lineProps, ok := line.Object("properties")
	require.True(t, ok)
	assert.Equal(t, []string{"LineId"}, lineProps.Keys())

	assert.Equal(t, []string{"QuoteId", "Amount", "CreatedAt", "Status", "Tags", "Attrs", "Line", "Active"}, got.Root.Strings("required"))
	title, _ := got.Root.String("title")
	assert.Equal(t, "Quote", title)
}

func TestNormalize_AvroWithoutFields(t *testing.T) {
	got, err := schema.Normalize([]byte(`{"type":"record","name":"Empty"}`), core.ArtifactTypeAVRO)
	require.NoError(t, err)
	assert.Equal(t, 0, got.EntityProperties().Len())
}

func TestNormalize_DetectsTypeWhenUnset(t *testing.T) {
	got, err := schema.Normalize([]byte(`{"type":"record","name":"X","fields":[{"name":"A","type":"string"}]}`), "")
	require.NoError(t, err)
	assert.Equal(t, core.ArtifactTypeAVRO, got.SourceType)
	assert.Equal(t, []string{"A"}, got.EntityProperties().Keys())

	assert.Equal(t, core.ArtifactTypeJSON, schema.DetectArtifactType([]byte(`{"properties":{}}`)))
	assert.Equal(t, core.ArtifactTypeJSON, schema.DetectArtifactType([]byte(`not json`)))
}

func TestNormalize_DoesNotMutateInputTree(t *testing.T) {
	raw := []byte(`{"properties":{"A":{"type":"string"}}}`)
	first, err := schema.Normalize(raw, core.ArtifactTypeJSON)
	require.NoError(t, err)
	first.EntityProperties().Set("B", jsonschema.NewObject())

	second, err := schema.Normalize(raw, core.ArtifactTypeJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, second.EntityProperties().Keys())
}
