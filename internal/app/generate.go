package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	localio "github.com/shpitdev/specsynth/pkg/pipeline/io/local"
	"github.com/shpitdev/specsynth/pkg/pipeline/template"
)

type GenerateOptions struct {
	GroupID    string
	ArtifactID string
	// Version overrides the version picked from the listing.
	Version string

	// SchemaFile replaces the synthesized schema text before finalizing.
	SchemaFile string
	// DraftOnly prints the unfinalized draft schema text and stops.
	DraftOnly bool

	Submit bool
	// OutDir receives <containerName>.json when not submitting. Empty prints to Out.
	OutDir string
	Out    io.Writer
}

type GenerateResult struct {
	Ref     core.ArtifactRef
	Payload core.SubmissionPayload
	Created *core.CreatedSpec
	Path    string
}

// RunGenerate loads one artifact into a draft, optionally swaps in hand-edited
// schema text, finalizes it and then submits, writes or prints the payload.
func RunGenerate(ctx context.Context, deps Deps, opts GenerateOptions) (GenerateResult, error) {
	logger := deps.runLogger("generate")
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Submit && deps.Store == nil {
		return GenerateResult{}, fmt.Errorf("--submit requires a spec store (SPEC_STORE_URL or service discovery spec_store)")
	}

	ref, err := resolveRef(ctx, deps, opts.GroupID, opts.ArtifactID, opts.Version)
	if err != nil {
		return GenerateResult{}, err
	}
	logger.Info("generate start", "artifact", ref.String(), "submit", opts.Submit)

	loader, err := deps.loader(logger, deps.Store)
	if err != nil {
		return GenerateResult{}, err
	}
	draft, err := loader.LoadTemplate(ctx, ref)
	if err != nil {
		return GenerateResult{}, err
	}

	if opts.SchemaFile != "" {
		b, err := os.ReadFile(opts.SchemaFile)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("read schema file: %w", err)
		}
		if draft, err = template.ApplySchemaText(draft, string(b)); err != nil {
			return GenerateResult{}, err
		}
		logger.Info("schema text replaced", "file", opts.SchemaFile)
	}

	res := GenerateResult{Ref: draft.Source}
	if opts.DraftOnly {
		_, err := fmt.Fprintln(out, draft.SchemaText)
		return res, err
	}

	payload, err := template.FinalizeForSubmission(draft)
	if err != nil {
		return res, err
	}
	res.Payload = payload

	switch {
	case opts.Submit:
		created, err := loader.Submit(ctx, draft)
		if err != nil {
			return res, err
		}
		res.Created = &created
		logger.Info("spec submitted", "container", payload.ContainerName, "id", created.ID, "version", created.Version)
		_, err = fmt.Fprintf(out, "created %s id=%s version=%s\n", payload.ContainerName, created.ID, created.Version)
		return res, err
	case strings.TrimSpace(opts.OutDir) != "":
		path, err := localio.WritePayloadFile(opts.OutDir, payload)
		if err != nil {
			return res, err
		}
		res.Path = path
		logger.Info("spec written", "container", payload.ContainerName, "path", path)
		return res, nil
	default:
		b, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return res, err
		}
		_, err = fmt.Fprintln(out, string(b))
		return res, err
	}
}

// resolveRef selects the artifact from the group listing so group conventions decide
// version pinning. An explicit version always wins.
func resolveRef(ctx context.Context, deps Deps, groupID, artifactID, version string) (core.ArtifactRef, error) {
	items, err := deps.Source.ListArtifacts(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return core.ArtifactRef{}, fmt.Errorf("list artifacts: %w", err)
	}
	ref, err := deps.selector().SelectArtifact(template.GroupArtifacts(items), groupID, artifactID)
	if err != nil {
		return core.ArtifactRef{}, err
	}
	if v := strings.TrimSpace(version); v != "" {
		ref.Version = v
	}
	return ref, nil
}
