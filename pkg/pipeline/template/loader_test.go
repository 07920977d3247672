package template_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/pipeline/spec"
	"github.com/shpitdev/specsynth/pkg/pipeline/template"
)

const locSchema = `{"properties":{"LocId":{"type":"string"},"City":{"type":"string"}},"metaData":{"sources":{"items":{"properties":{"sourcePrimaryKeyField":{"const":"LocId"}}}}}}`

const customerEnvelope = `{"properties":{
  "TxnType":{"type":"string"},
  "Txn":{"properties":{"CustomerId":{"type":"string"},"Name":{"type":"string"}}}
}}`

const quoteLineComposite = `{"properties":{
  "QuoteId":{"type":"string"},
  "LineId":{"type":"integer"},
  "metaData":{"sources":{"items":{"properties":{
    "sourcePrimaryKeyField":{"const":"QuoteId"},
    "sourcePrimaryKeyFields":{"items":{"enum":["QuoteId","LineId"]}}
  }}}}
}}`

func newLoader(t *testing.T, src core.ArtifactSource, store core.SpecStore, d core.Describer) *template.Loader {
	t.Helper()
	l, err := template.NewLoader(template.LoaderConfig{
		Source:    src,
		Store:     store,
		Describer: d,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	return l
}

func TestNewLoader_RequiresSource(t *testing.T) {
	_, err := template.NewLoader(template.LoaderConfig{})
	require.Error(t, err)
}

func TestLoadTemplate_SystemFieldsSurviveSubmission(t *testing.T) {
	src := newFakeSource()
	src.add("warehouse", "Locs", `{"properties":{
	  "LocId":{"type":"string"},
	  "CreateTime":{"type":"integer"},
	  "MetaData":{"type":"string"},
	  "Id":{"type":"integer"}
	}}`)

	l := newLoader(t, src, nil, nil)
	d, err := l.LoadTemplate(context.Background(), core.ArtifactRef{GroupID: "warehouse", ArtifactID: "Locs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"LocId"}, d.AllowedFilters)

	d.AllowedFilters = append(d.AllowedFilters, "CreateTime", "metaData")
	p, err := template.FinalizeForSubmission(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"locId"}, p.AllowedFilters)

	props, _ := p.Schema.Object("properties")
	assert.Equal(t, []string{"id", "partitionKey", "locId", "metaData", "createTime", "updateTime"}, props.Keys())
	created, _ := props.Object("createTime")
	assert.Equal(t, []string{"string", "null"}, created.Strings("type"))
	meta, _ := props.Object("metaData")
	assert.True(t, meta.Has("properties"), "provenance block kept")
	id, _ := props.Object("id")
	typ, _ := id.String("type")
	assert.Equal(t, "string", typ)
}

func TestLoadTemplate_OnlineSingleKey(t *testing.T) {
	src := newFakeSource()
	src.add(spec.OnlineGroupID, "TxServices_Informix_loc.response", locSchema)
	src.versions[spec.OnlineGroupID+"/TxServices_Informix_loc.response"] = "7"

	l := newLoader(t, src, nil, nil)
	d, err := l.LoadTemplate(context.Background(), core.ArtifactRef{
		GroupID:    spec.OnlineGroupID,
		ArtifactID: "TxServices_Informix_loc.response",
		Version:    "7",
	})
	require.NoError(t, err)

	assert.Equal(t, "loc", d.SpecName)
	assert.Equal(t, "locs", d.ContainerName)
	require.NotNil(t, d.Key)
	assert.Equal(t, spec.KeySingle, d.Key.Kind)
	assert.Equal(t, []string{"locId"}, d.Key.Fields)
	assert.Equal(t, []string{"locId"}, d.RequiredFields)
	assert.Equal(t, []string{"LocId", "City"}, d.AllowedFilters)
	assert.Equal(t, template.DefaultPartitionKeyField, d.PartitionKeyField)
	assert.Equal(t, "loc", d.PartitionKeyValue)
	assert.Equal(t, core.ArtifactTypeJSON, d.Source.ArtifactType)
	assert.Equal(t, "7", d.Source.Version)

	obj, err := jsonschema.DecodeObject([]byte(d.SchemaText))
	require.NoError(t, err)
	v, _ := obj.String("schemaVersion")
	assert.Equal(t, "7", v)
	props, _ := obj.Object("properties")
	assert.True(t, props.Has("LocId"), "names stay registry-origin until submission")
}

func TestLoadTemplate_BidToolsFallbackKey(t *testing.T) {
	src := newFakeSource()
	src.add(spec.BidToolsGroupID, "QuoteComponentTypes", `{"properties":{"Code":{"type":"string"}}}`)

	d, err := newLoader(t, src, nil, nil).LoadTemplate(context.Background(), core.ArtifactRef{
		GroupID:    spec.BidToolsGroupID,
		ArtifactID: "QuoteComponentTypes",
	})
	require.NoError(t, err)

	assert.Equal(t, "QuoteComponentType", d.SpecName)
	assert.Equal(t, "QuoteComponentTypes", d.ContainerName)
	assert.Nil(t, d.Key)
	assert.Equal(t, []string{"quoteComponentTypeId"}, d.RequiredFields)

	obj, err := jsonschema.DecodeObject([]byte(d.SchemaText))
	require.NoError(t, err)
	v, _ := obj.String("schemaVersion")
	assert.Equal(t, spec.DefaultSchemaVersion, v)
}

func TestLoadTemplate_EnvelopeThenFinalize(t *testing.T) {
	src := newFakeSource()
	src.add("crm", "Customers", customerEnvelope)

	l := newLoader(t, src, nil, nil)
	d, err := l.LoadTemplate(context.Background(), core.ArtifactRef{GroupID: "crm", ArtifactID: "Customers"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CustomerId", "Name"}, d.AllowedFilters)

	p, err := template.FinalizeForSubmission(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"customerId", "name"}, p.AllowedFilters)
	assert.Equal(t, []string{"customerId"}, p.RequiredFields)

	props, ok := p.Schema.Object("properties")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "partitionKey", "customerId", "name", "metaData", "createTime", "updateTime"}, props.Keys())
}

func TestLoadTemplate_CompositeKey(t *testing.T) {
	src := newFakeSource()
	src.add("bid-tools", "QuoteLines", quoteLineComposite)

	d, err := newLoader(t, src, nil, nil).LoadTemplate(context.Background(), core.ArtifactRef{GroupID: "bid-tools", ArtifactID: "QuoteLines"})
	require.NoError(t, err)

	require.NotNil(t, d.Key)
	assert.Equal(t, spec.KeyComposite, d.Key.Kind)
	assert.Equal(t, []string{"quoteId", "lineId"}, d.RequiredFields)
	assert.Equal(t, []string{"QuoteId", "LineId"}, d.AllowedFilters)
}

func TestLoadTemplate_AvroArtifact(t *testing.T) {
	src := newFakeSource()
	src.add("orders", "Orders", `{"type":"record","name":"Order","fields":[{"name":"OrderId","type":"string"},{"name":"Total","type":["null","double"]}]}`)

	d, err := newLoader(t, src, nil, nil).LoadTemplate(context.Background(), core.ArtifactRef{
		GroupID:      "orders",
		ArtifactID:   "Orders",
		ArtifactType: core.ArtifactTypeAVRO,
	})
	require.NoError(t, err)
	assert.Equal(t, core.ArtifactTypeAVRO, d.Source.ArtifactType)
	assert.Equal(t, []string{"OrderId", "Total"}, d.AllowedFilters)
	assert.Equal(t, []string{"orderId"}, d.RequiredFields)
}

func TestLoadTemplate_Errors(t *testing.T) {
	src := newFakeSource()
	src.add("g", "Broken", `{"properties": }`)
	l := newLoader(t, src, nil, nil)

	_, err := l.LoadTemplate(context.Background(), core.ArtifactRef{GroupID: "g"})
	assert.True(t, core.IsValidation(err))

	_, err = l.LoadTemplate(context.Background(), core.ArtifactRef{GroupID: "g", ArtifactID: "Missing"})
	require.Error(t, err)
	assert.False(t, core.IsValidation(err))
	assert.Contains(t, err.Error(), "fetch artifact g/Missing")

	_, err = l.LoadTemplate(context.Background(), core.ArtifactRef{GroupID: "g", ArtifactID: "Broken"})
	assert.True(t, core.IsValidation(err))
}

func TestLoadTemplate_Describer(t *testing.T) {
	src := newFakeSource()
	src.add("crm", "Customers", customerEnvelope)

	ok := &fakeDescriber{text: "  Customer master records.  "}
	d, err := newLoader(t, src, nil, ok).LoadTemplate(context.Background(), core.ArtifactRef{GroupID: "crm", ArtifactID: "Customers"})
	require.NoError(t, err)
	assert.Equal(t, "Customer master records.", d.Description)
	require.Len(t, ok.reqs, 1)
	assert.Equal(t, []string{"CustomerId", "Name"}, ok.reqs[0].Fields)

	failing := &fakeDescriber{err: errors.New("quota exhausted")}
	d, err = newLoader(t, src, nil, failing).LoadTemplate(context.Background(), core.ArtifactRef{GroupID: "crm", ArtifactID: "Customers"})
	require.NoError(t, err, "describer failures never block a load")
	assert.Empty(t, d.Description)
}

func TestLoadTemplate_IsDeterministic(t *testing.T) {
	src := newFakeSource()
	src.add("bid-tools", "QuoteLines", quoteLineComposite)
	l := newLoader(t, src, nil, nil)
	ref := core.ArtifactRef{GroupID: "bid-tools", ArtifactID: "QuoteLines"}

	a, err := l.LoadTemplate(context.Background(), ref)
	require.NoError(t, err)
	b, err := l.LoadTemplate(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSubmit(t *testing.T) {
	src := newFakeSource()
	src.add(spec.OnlineGroupID, "TxServices_Informix_loc.response", locSchema)
	store := &fakeStore{}
	l := newLoader(t, src, store, nil)

	d, err := l.LoadTemplate(context.Background(), core.ArtifactRef{GroupID: spec.OnlineGroupID, ArtifactID: "TxServices_Informix_loc.response", Version: "1"})
	require.NoError(t, err)

	created, err := l.Submit(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "spec-1", created.ID)
	require.Len(t, store.payloads, 1)
	assert.Equal(t, "locs", store.payloads[0].ContainerName)
	assert.Equal(t, []string{"locId"}, store.payloads[0].KeyFields)
	assert.Equal(t, []string{"locId", "city"}, store.payloads[0].AllowedFilters)
}

func TestSubmit_ConflictIsDistinct(t *testing.T) {
	src := newFakeSource()
	src.add("crm", "Customers", customerEnvelope)
	store := &fakeStore{err: &core.ConflictError{Name: "Customer"}}
	l := newLoader(t, src, store, nil)

	d, err := l.LoadTemplate(context.Background(), core.ArtifactRef{GroupID: "crm", ArtifactID: "Customers"})
	require.NoError(t, err)

	_, err = l.Submit(context.Background(), d)
	require.Error(t, err)
	assert.True(t, core.IsConflict(err))
	assert.False(t, core.IsValidation(err))

	store.err = errors.New("connection reset")
	_, err = l.Submit(context.Background(), d)
	require.Error(t, err)
	assert.False(t, core.IsConflict(err))
}

func TestSubmit_MalformedTextNeverReachesStore(t *testing.T) {
	store := &fakeStore{}
	l := newLoader(t, newFakeSource(), store, nil)

	_, err := l.Submit(context.Background(), template.SpecDraft{SpecName: "x", ContainerName: "xs", SchemaText: `{"properties": }`, RequiredFields: []string{"xId"}})
	assert.True(t, core.IsValidation(err))
	assert.Empty(t, store.payloads)

	_, err = newLoader(t, newFakeSource(), nil, nil).Submit(context.Background(), template.SpecDraft{})
	assert.ErrorContains(t, err, "spec store is not configured")
}
