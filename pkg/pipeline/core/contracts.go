package core

import (
	"context"
	"strings"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
)

// ArtifactType is the registry format of an artifact.
type ArtifactType string

const (
	ArtifactTypeAVRO ArtifactType = "AVRO"
	ArtifactTypeJSON ArtifactType = "JSON"
)

// NormalizeArtifactType maps registry spellings onto the two supported types.
// Unknown values yield "" so callers can fall back to content sniffing.
func NormalizeArtifactType(raw string) ArtifactType {
	s := strings.TrimSpace(strings.ToUpper(raw))
	switch s {
	case "AVRO", "AVSC":
		return ArtifactTypeAVRO
	case "JSON", "JSON-SCHEMA", "JSONSCHEMA", "JSON_SCHEMA":
		return ArtifactTypeJSON
	default:
		return ""
	}
}

// ArtifactRef identifies one schema artifact. Version is empty for "latest".
type ArtifactRef struct {
	GroupID      string       `json:"groupId"`
	ArtifactID   string       `json:"artifactId"`
	ArtifactType ArtifactType `json:"artifactType"`
	Version      string       `json:"version,omitempty"`
}

func (r ArtifactRef) String() string {
	s := r.GroupID + "/" + r.ArtifactID
	if r.Version != "" {
		s += "@" + r.Version
	}
	return s
}

// ArtifactDescriptor is one entry of a registry listing.
type ArtifactDescriptor struct {
	GroupID       string
	ArtifactID    string
	Type          ArtifactType
	Name          string
	Description   string
	LatestVersion string
}

// ArtifactContent is the raw payload of a fetched artifact.
// Ref.Version carries the version the registry actually served, when known.
type ArtifactContent struct {
	Ref     ArtifactRef
	Payload []byte
}

// ArtifactSource lists and fetches registry artifacts.
type ArtifactSource interface {
	ListArtifacts(ctx context.Context, groupFilter string) ([]ArtifactDescriptor, error)
	GetArtifactContent(ctx context.Context, groupID, artifactID, version string) (ArtifactContent, error)
}

// PartitionKey names the storage partition key field and its value for a spec.
type PartitionKey struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// SubmissionPayload is the case-normalized spec handed to a SpecStore.
type SubmissionPayload struct {
	Name           string             `json:"name"`
	ContainerName  string             `json:"containerName"`
	Description    string             `json:"description,omitempty"`
	KeyFields      []string           `json:"keyFields"`
	PartitionKey   PartitionKey       `json:"partitionKey"`
	AllowedFilters []string           `json:"allowedFilters"`
	RequiredFields []string           `json:"requiredFields"`
	Schema         *jsonschema.Object `json:"schema"`
	Source         ArtifactRef        `json:"source"`
}

// CreatedSpec is the persistence API's acknowledgement of a stored spec.
type CreatedSpec struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// SpecStore persists finalized specs. A duplicate spec yields *ConflictError.
type SpecStore interface {
	CreateSpec(ctx context.Context, payload SubmissionPayload) (CreatedSpec, error)
}

// DescriptionRequest is the input to a Describer.
type DescriptionRequest struct {
	SpecName      string
	ContainerName string
	Fields        []string
	Source        ArtifactRef
}

// Describer suggests a human-readable description for a spec.
type Describer interface {
	Describe(ctx context.Context, req DescriptionRequest) (string, error)
}
