package template

import (
	"strings"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/pipeline/spec"
)

// ApplySchemaText replaces the draft's schema text with a hand edit. Text that is not a
// JSON object is rejected with *core.ValidationError and d is returned unchanged.
func ApplySchemaText(d SpecDraft, text string) (SpecDraft, error) {
	if _, err := parseSchemaText(text); err != nil {
		return d, err
	}
	out := d.Clone()
	out.SchemaText = text
	return out, nil
}

// FinalizeForSubmission converts a draft into the payload handed to the spec store.
// This is the only place names are case-normalized: schema properties, required
// entries, key fields and filters all go through spec.ToCamelCase here.
func FinalizeForSubmission(d SpecDraft) (core.SubmissionPayload, error) {
	name := strings.TrimSpace(d.SpecName)
	if name == "" {
		return core.SubmissionPayload{}, &core.ValidationError{Field: "specName", Reason: "required"}
	}
	container := strings.TrimSpace(d.ContainerName)
	if container == "" {
		return core.SubmissionPayload{}, &core.ValidationError{Field: "containerName", Reason: "required"}
	}

	parsed, err := parseSchemaText(d.SchemaText)
	if err != nil {
		return core.SubmissionPayload{}, err
	}
	converted := spec.ConvertSchemaProperties(parsed)

	keyFields := spec.ConvertNames(trimAll(d.KeyFields()))
	required := spec.ConvertNames(trimAll(d.RequiredFields))
	if len(keyFields) == 0 {
		keyFields = required
	}
	if len(required) == 0 {
		required = keyFields
	}
	if len(required) == 0 {
		return core.SubmissionPayload{}, &core.ValidationError{Field: "requiredFields", Reason: "at least one key field is required"}
	}
	restamped := make([]any, 0, len(required))
	for _, r := range required {
		restamped = append(restamped, r)
	}
	converted.Set("required", restamped)

	filters := []string{}
	for _, f := range spec.ConvertNames(trimAll(d.AllowedFilters)) {
		if !spec.IsReserved(f) {
			filters = append(filters, f)
		}
	}

	pkField := strings.TrimSpace(d.PartitionKeyField)
	if pkField == "" {
		pkField = DefaultPartitionKeyField
	}
	pkValue := strings.TrimSpace(d.PartitionKeyValue)
	if pkValue == "" {
		pkValue = name
	}

	return core.SubmissionPayload{
		Name:           name,
		ContainerName:  container,
		Description:    strings.TrimSpace(d.Description),
		KeyFields:      keyFields,
		PartitionKey:   core.PartitionKey{Field: spec.ToCamelCase(pkField), Value: pkValue},
		AllowedFilters: filters,
		RequiredFields: required,
		Schema:         converted,
		Source:         d.Source,
	}, nil
}

func parseSchemaText(text string) (*jsonschema.Object, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &core.ValidationError{Field: "schemaText", Reason: "empty"}
	}
	obj, err := jsonschema.DecodeObject([]byte(text))
	if err != nil {
		return nil, &core.ValidationError{Field: "schemaText", Reason: "malformed JSON", Err: err}
	}
	return obj, nil
}

func trimAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
