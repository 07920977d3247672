package spec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/pipeline/schema"
	"github.com/shpitdev/specsynth/pkg/pipeline/spec"
)

func mustNormalize(t *testing.T, raw string) schema.NormalizedSchema {
	t.Helper()
	s, err := schema.Normalize([]byte(raw), core.ArtifactTypeJSON)
	require.NoError(t, err)
	return s
}

const singleKeyMeta = `{"sources":{"items":{"properties":{"sourcePrimaryKeyField":{"const":"LocId"}}}}}`

func TestExtractKeys_SingleRootMetaData(t *testing.T) {
	s := mustNormalize(t, `{"properties":{"LocId":{"type":"string"}},"metaData":`+singleKeyMeta+`}`)

	key := spec.ExtractKeys(s)
	require.NotNil(t, key)
	assert.Equal(t, spec.KeySingle, key.Kind)
	assert.Equal(t, "locId", key.Field())
}

func TestExtractKeys_SingleUnderProperties(t *testing.T) {
	s := mustNormalize(t, `{"properties":{"LocId":{"type":"string"},"metaData":{"type":"object","properties":{"sources":{"type":"array","items":{"properties":{"sourcePrimaryKeyField":{"const":"LocId"}}}}}}}}`)

	key := spec.ExtractKeys(s)
	require.NotNil(t, key)
	assert.Equal(t, []string{"locId"}, key.Fields)
}

func TestExtractKeys_EnvelopedWinsOverRoot(t *testing.T) {
	s := mustNormalize(t, `{
	  "properties": {
	    "TxnType": {"type": "string"},
	    "Txn": {"properties": {
	      "CustomerId": {"type": "string"},
	      "metaData": {"sources": {"items": {"properties": {"sourcePrimaryKeyField": {"const": "CustomerId"}}}}}
	    }},
	    "metaData": {"sources": {"items": {"properties": {"sourcePrimaryKeyField": {"const": "Other"}}}}}
	  }
	}`)

	key := spec.ExtractKeys(s)
	require.NotNil(t, key)
	assert.Equal(t, "customerId", key.Field())
}

func TestExtractKeys_CompositeWins(t *testing.T) {
	s := mustNormalize(t, `{"properties":{"metaData":{"sources":{"items":{"properties":{
	  "sourcePrimaryKeyField":{"const":"QuoteId"},
	  "sourcePrimaryKeyFields":{"items":{"enum":["QuoteId","LineId"]}}
	}}}}}}`)

	key := spec.ExtractKeys(s)
	require.NotNil(t, key)
	assert.Equal(t, spec.KeyComposite, key.Kind)
	assert.Equal(t, []string{"quoteId", "lineId"}, key.Fields)
}

func TestExtractKeys_EmptyCompositeFallsBackToSingle(t *testing.T) {
	s := mustNormalize(t, `{"properties":{"metaData":{"sources":{"items":{"properties":{
	  "sourcePrimaryKeyField":{"const":"QuoteId"},
	  "sourcePrimaryKeyFields":{"items":{"enum":[]}}
	}}}}}}`)

	key := spec.ExtractKeys(s)
	require.NotNil(t, key)
	assert.Equal(t, spec.KeySingle, key.Kind)
	assert.Equal(t, "quoteId", key.Field())
}

func TestExtractKeys_NoDeclaredKey(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no metaData", raw: `{"properties":{"A":{"type":"string"}}}`},
		{name: "metaData without sources", raw: `{"properties":{"metaData":{"type":"object"}}}`},
		{name: "blank const", raw: `{"properties":{"metaData":{"sources":{"items":{"properties":{"sourcePrimaryKeyField":{"const":"  "}}}}}}}`},
		{name: "const not a string", raw: `{"properties":{"metaData":{"sources":{"items":{"properties":{"sourcePrimaryKeyField":{"const":7}}}}}}}`},
		{name: "empty payload", raw: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, spec.ExtractKeys(mustNormalize(t, tt.raw)))
		})
	}
}

func TestFallbackKeyAndRequiredFields(t *testing.T) {
	assert.Equal(t, "quoteComponentTypeId", spec.FallbackKey("QuoteComponentType"))
	assert.Equal(t, "locId", spec.FallbackKey("loc"))
	assert.Equal(t, "", spec.FallbackKey(" "))

	key := spec.CompositeKey("QuoteId", "LineId")
	assert.Equal(t, []string{"quoteId", "lineId"}, spec.RequiredFields(&key, "Quote"))
	assert.Equal(t, []string{"quoteId"}, spec.RequiredFields(nil, "Quote"))
	assert.Equal(t, []string{}, spec.RequiredFields(nil, ""))
}
