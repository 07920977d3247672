package schema

import (
	"strings"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// Normalize converts a raw registry payload into a JSON-Schema-shaped tree.
//
// JSON payloads pass through unchanged. AVRO records have their "fields" mapped
// into "properties". A payload with neither yields an empty-properties schema.
// Only malformed JSON is an error.
func Normalize(raw []byte, artifactType core.ArtifactType) (NormalizedSchema, error) {
	v, err := jsonschema.Decode(raw)
	if err != nil {
		return NormalizedSchema{}, &core.ValidationError{Field: "payload", Reason: "malformed JSON", Err: err}
	}

	root, ok := v.(*jsonschema.Object)
	if !ok {
		root = jsonschema.NewObject()
	}
	if artifactType == "" {
		artifactType = detectType(root)
	}

	var out *jsonschema.Object
	switch {
	case isObject(root, "properties"):
		out = root.Clone()
	case isArray(root, "fields"):
		out = avroRecordToSchema(root, newAvroNames())
	default:
		out = root.Clone()
		out.Set("properties", jsonschema.NewObject())
	}

	return NormalizedSchema{
		Root:       out,
		Shape:      detectShape(out),
		SourceType: artifactType,
	}, nil
}

// DetectArtifactType sniffs the payload format for registries that omit or mislabel it.
func DetectArtifactType(raw []byte) core.ArtifactType {
	root, err := jsonschema.DecodeObject(raw)
	if err != nil {
		return core.ArtifactTypeJSON
	}
	return detectType(root)
}

func detectType(root *jsonschema.Object) core.ArtifactType {
	t, _ := root.String("type")
	if strings.EqualFold(t, "record") && isArray(root, "fields") {
		return core.ArtifactTypeAVRO
	}
	return core.ArtifactTypeJSON
}

func isObject(o *jsonschema.Object, key string) bool {
	_, ok := o.Object(key)
	return ok
}

func isArray(o *jsonschema.Object, key string) bool {
	v, ok := o.Get(key)
	if !ok {
		return false
	}
	_, ok = v.([]any)
	return ok
}
