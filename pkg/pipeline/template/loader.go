package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/pipeline/schema"
	"github.com/shpitdev/specsynth/pkg/pipeline/spec"
)

// LoaderConfig wires a Loader to its collaborators. Only Source is required.
type LoaderConfig struct {
	Source core.ArtifactSource
	Store  core.SpecStore
	// Conventions defaults to spec.DefaultConventions when nil.
	Conventions *spec.Conventions
	Describer   core.Describer
	Logger      *slog.Logger
}

// Loader turns registry artifacts into spec drafts and submits finalized drafts.
type Loader struct {
	source      core.ArtifactSource
	store       core.SpecStore
	conventions spec.Conventions
	describer   core.Describer
	logger      *slog.Logger
}

func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Source == nil {
		return nil, errors.New("artifact source is required")
	}
	conv := spec.DefaultConventions()
	if cfg.Conventions != nil {
		conv = *cfg.Conventions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		source:      cfg.Source,
		store:       cfg.Store,
		conventions: conv,
		describer:   cfg.Describer,
		logger:      logger,
	}, nil
}

// Conventions returns the naming rules the loader resolves with.
func (l *Loader) Conventions() spec.Conventions {
	return l.conventions
}

// LoadTemplate fetches the artifact at ref and runs it through the pipeline:
// normalize, extract keys, resolve names, classify fields, synthesize. The returned
// draft is always newly built; its schema text keeps registry-origin names.
func (l *Loader) LoadTemplate(ctx context.Context, ref core.ArtifactRef) (SpecDraft, error) {
	ref.GroupID = strings.TrimSpace(ref.GroupID)
	ref.ArtifactID = strings.TrimSpace(ref.ArtifactID)
	ref.Version = strings.TrimSpace(ref.Version)
	if ref.ArtifactID == "" {
		return SpecDraft{}, &core.ValidationError{Field: "artifactId", Reason: "required"}
	}

	content, err := l.source.GetArtifactContent(ctx, ref.GroupID, ref.ArtifactID, ref.Version)
	if err != nil {
		return SpecDraft{}, fmt.Errorf("fetch artifact %s: %w", ref, err)
	}

	artifactType := ref.ArtifactType
	if artifactType == "" {
		artifactType = content.Ref.ArtifactType
	}
	normalized, err := schema.Normalize(content.Payload, artifactType)
	if err != nil {
		return SpecDraft{}, fmt.Errorf("normalize artifact %s: %w", ref, err)
	}

	key := spec.ExtractKeys(normalized)
	naming := l.conventions.Resolve(ref.ArtifactID, ref.GroupID)
	fields := spec.ClassifyFields(normalized)

	version := strings.TrimSpace(content.Ref.Version)
	if version == "" {
		version = ref.Version
	}
	synthesized := spec.Synthesize(spec.SynthesisInput{
		Entity:   fields.EntityProperties,
		Key:      key,
		Version:  version,
		SpecName: naming.SpecName,
	})
	text, err := synthesized.Object().Indent()
	if err != nil {
		return SpecDraft{}, fmt.Errorf("render schema for %s: %w", ref, err)
	}

	source := ref
	source.ArtifactType = normalized.SourceType
	source.Version = version

	b := NewDraftBuilder(source).
		Naming(naming).
		Key(key).
		AllowedFilters(fields.AllowedFilters).
		RequiredFields(synthesized.Required).
		SchemaText(text)

	if l.describer != nil {
		desc, err := l.describer.Describe(ctx, core.DescriptionRequest{
			SpecName:      naming.SpecName,
			ContainerName: naming.ContainerName,
			Fields:        fields.AllowedFilters,
			Source:        source,
		})
		if err != nil {
			l.logger.Warn("description suggestion failed", "artifact", source.String(), "err", err)
		} else {
			b.Description(strings.TrimSpace(desc))
		}
	}

	draft := b.Build()
	keyKind := "fallback"
	if key != nil {
		keyKind = key.Kind.String()
	}
	l.logger.Info("template loaded",
		"artifact", source.String(),
		"type", string(source.ArtifactType),
		"spec", draft.SpecName,
		"container", draft.ContainerName,
		"key", keyKind,
		"required", strings.Join(draft.RequiredFields, ","),
		"filters", len(draft.AllowedFilters),
	)
	return draft, nil
}

// Submit finalizes the draft and hands it to the spec store. A spec that already
// exists surfaces as *core.ConflictError.
func (l *Loader) Submit(ctx context.Context, d SpecDraft) (core.CreatedSpec, error) {
	if l.store == nil {
		return core.CreatedSpec{}, errors.New("spec store is not configured")
	}
	payload, err := FinalizeForSubmission(d)
	if err != nil {
		return core.CreatedSpec{}, err
	}
	created, err := l.store.CreateSpec(ctx, payload)
	if err != nil {
		if core.IsConflict(err) {
			l.logger.Info("spec already exists", "spec", payload.Name, "container", payload.ContainerName)
		}
		return core.CreatedSpec{}, fmt.Errorf("create spec %q: %w", payload.Name, err)
	}
	l.logger.Info("spec created", "spec", payload.Name, "id", created.ID, "version", created.Version)
	return created, nil
}
