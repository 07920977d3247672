package template

import (
	"slices"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/pipeline/spec"
)

// DefaultPartitionKeyField is the partition key property every container schema declares.
const DefaultPartitionKeyField = "partitionKey"

// SpecDraft is the editable result of one template load.
//
// A draft is a value: every load builds a new one with DraftBuilder, and edits return
// a modified copy. Nothing is merged from a previous draft.
type SpecDraft struct {
	SpecName          string
	ContainerName     string
	Key               *spec.KeySpec
	PartitionKeyField string
	PartitionKeyValue string
	AllowedFilters    []string
	RequiredFields    []string
	// SchemaText is the pretty-printed container schema with registry-origin names.
	SchemaText  string
	Source      core.ArtifactRef
	Description string
}

// KeyFields returns the draft's key fields, or nil when no key was declared.
func (d SpecDraft) KeyFields() []string {
	if d.Key == nil {
		return nil
	}
	return slices.Clone(d.Key.Fields)
}

// Clone returns a deep copy of d.
func (d SpecDraft) Clone() SpecDraft {
	out := d
	if d.Key != nil {
		k := spec.KeySpec{Kind: d.Key.Kind, Fields: slices.Clone(d.Key.Fields)}
		out.Key = &k
	}
	out.AllowedFilters = slices.Clone(d.AllowedFilters)
	out.RequiredFields = slices.Clone(d.RequiredFields)
	return out
}

// DraftBuilder assembles a SpecDraft from scratch. The zero value is ready to use.
type DraftBuilder struct {
	d SpecDraft
}

// NewDraftBuilder starts a draft for the artifact at ref.
func NewDraftBuilder(ref core.ArtifactRef) *DraftBuilder {
	return &DraftBuilder{d: SpecDraft{Source: ref}}
}

func (b *DraftBuilder) Naming(n spec.NamingResult) *DraftBuilder {
	b.d.SpecName = n.SpecName
	b.d.ContainerName = n.ContainerName
	return b
}

func (b *DraftBuilder) Key(k *spec.KeySpec) *DraftBuilder {
	if k == nil {
		b.d.Key = nil
		return b
	}
	cp := spec.KeySpec{Kind: k.Kind, Fields: slices.Clone(k.Fields)}
	b.d.Key = &cp
	return b
}

func (b *DraftBuilder) PartitionKey(field, value string) *DraftBuilder {
	b.d.PartitionKeyField = field
	b.d.PartitionKeyValue = value
	return b
}

func (b *DraftBuilder) AllowedFilters(names []string) *DraftBuilder {
	b.d.AllowedFilters = slices.Clone(names)
	return b
}

func (b *DraftBuilder) RequiredFields(names []string) *DraftBuilder {
	b.d.RequiredFields = slices.Clone(names)
	return b
}

func (b *DraftBuilder) SchemaText(text string) *DraftBuilder {
	b.d.SchemaText = text
	return b
}

func (b *DraftBuilder) Description(text string) *DraftBuilder {
	b.d.Description = text
	return b
}

// Build returns the draft. Unset partition key settings get their defaults: the
// partitionKey property, valued with the spec name.
func (b *DraftBuilder) Build() SpecDraft {
	out := b.d.Clone()
	if out.PartitionKeyField == "" {
		out.PartitionKeyField = DefaultPartitionKeyField
	}
	if out.PartitionKeyValue == "" {
		out.PartitionKeyValue = out.SpecName
	}
	if out.AllowedFilters == nil {
		out.AllowedFilters = []string{}
	}
	if out.RequiredFields == nil {
		out.RequiredFields = []string{}
	}
	return out
}
