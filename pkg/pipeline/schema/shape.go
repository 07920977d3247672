package schema

import (
	"github.com/shpitdev/specsynth/pkg/jsonschema"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// EnvelopeKey is the conventional wrapper property of enveloped schemas.
const EnvelopeKey = "Txn"

// DefaultDiscriminator is the conventional sibling of EnvelopeKey.
const DefaultDiscriminator = "TxnType"

// Shape classifies where a schema keeps its entity fields. It is either Flat or Enveloped.
type Shape interface {
	// Entity returns the subschema whose "properties" hold the entity fields.
	Entity() *jsonschema.Object
	isShape()
}

// Flat schemas keep entity fields in the root "properties".
type Flat struct {
	Root *jsonschema.Object
}

func (f Flat) Entity() *jsonschema.Object { return f.Root }
func (Flat) isShape()                     {}

// Enveloped schemas nest the entity one level down, e.g.
//
//	{"properties": {"TxnType": {...}, "Txn": {"properties": {...}}}}
type Enveloped struct {
	// Discriminator names the sibling type field: TxnType when present, else the first
	// other sibling, empty if there is none. It is informational; classification
	// removes only the fixed reserved names.
	Discriminator string
	EnvelopeKey   string
	Body          *jsonschema.Object
}

func (e Enveloped) Entity() *jsonschema.Object { return e.Body }
func (Enveloped) isShape()                     {}

// NormalizedSchema is a JSON-Schema-shaped tree plus its detected Shape.
type NormalizedSchema struct {
	Root  *jsonschema.Object
	Shape Shape
	// SourceType is the format the payload was normalized from.
	SourceType core.ArtifactType
}

// Properties returns the root "properties" object, never nil.
func (s NormalizedSchema) Properties() *jsonschema.Object {
	return propertiesOf(s.Root)
}

// EntityProperties returns the entity-level "properties" object, never nil.
func (s NormalizedSchema) EntityProperties() *jsonschema.Object {
	if s.Shape == nil {
		return propertiesOf(s.Root)
	}
	return propertiesOf(s.Shape.Entity())
}

func propertiesOf(o *jsonschema.Object) *jsonschema.Object {
	if props, ok := o.Object("properties"); ok {
		return props
	}
	return jsonschema.NewObject()
}

func detectShape(root *jsonschema.Object) Shape {
	props := propertiesOf(root)
	body, ok := props.Object(EnvelopeKey)
	if !ok {
		return Flat{Root: root}
	}
	if _, ok := body.Object("properties"); !ok {
		return Flat{Root: root}
	}

	discriminator := ""
	if props.Has(DefaultDiscriminator) {
		discriminator = DefaultDiscriminator
	} else {
		props.Range(func(key string, _ any) bool {
			if key == EnvelopeKey {
				return true
			}
			discriminator = key
			return false
		})
	}
	return Enveloped{
		Discriminator: discriminator,
		EnvelopeKey:   EnvelopeKey,
		Body:          body,
	}
}
