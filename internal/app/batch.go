package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	localio "github.com/shpitdev/specsynth/pkg/pipeline/io/local"
	"github.com/shpitdev/specsynth/pkg/pipeline/redact"
	"github.com/shpitdev/specsynth/pkg/pipeline/template"
	"github.com/shpitdev/specsynth/pkg/pipeline/worker"
)

type BatchOptions struct {
	// GroupID selects every artifact of one group. Ignored when ManifestPath is set.
	GroupID string
	// ManifestPath is a CSV of artifact references (see localio.ReadArtifactRefsCSV).
	ManifestPath string

	// Submit sends payloads to the spec store; otherwise they are written to OutDir.
	Submit bool
	OutDir string

	Worker worker.Options
}

// BatchItem is the outcome for one artifact.
type BatchItem struct {
	Ref       core.ArtifactRef
	Container string
	Conflict  bool
	Err       error
}

type BatchSummary struct {
	Items     []BatchItem
	OK        int
	Conflicts int
	Failed    int
}

// RunBatch generates specs for many artifacts through the worker pool. Conflicts are
// counted separately from failures; an existing spec is not an error for the run.
func RunBatch(ctx context.Context, deps Deps, opts BatchOptions) (BatchSummary, error) {
	logger := deps.runLogger("batch")
	start := time.Now()

	store := deps.Store
	switch {
	case opts.Submit && store == nil:
		return BatchSummary{}, fmt.Errorf("--submit requires a spec store (SPEC_STORE_URL or service discovery spec_store)")
	case !opts.Submit:
		if strings.TrimSpace(opts.OutDir) == "" {
			return BatchSummary{}, fmt.Errorf("batch requires --out when not submitting")
		}
		store = localio.FileStore{Dir: opts.OutDir}
	}

	refs, err := batchRefs(ctx, deps, opts)
	if err != nil {
		return BatchSummary{}, err
	}
	if len(refs) == 0 {
		return BatchSummary{}, fmt.Errorf("no artifacts to generate")
	}

	loader, err := deps.loader(logger, store)
	if err != nil {
		return BatchSummary{}, err
	}

	wopts := opts.Worker
	wopts.Logger = logger
	logger.Info("batch start",
		"artifacts", len(refs),
		"submit", opts.Submit,
		"workers", wopts.Workers,
		"maxRetries", wopts.MaxRetries,
		"rateLimitRPS", wopts.RateLimitRPS,
		"failFast", wopts.FailurePolicy == worker.FailurePolicyFailFast,
	)

	process := func(ctx context.Context, ref core.ArtifactRef) (string, error) {
		draft, err := loader.LoadTemplate(ctx, ref)
		if err != nil {
			return "", err
		}
		if _, err := loader.Submit(ctx, draft); err != nil {
			return draft.ContainerName, err
		}
		return draft.ContainerName, nil
	}

	var sum BatchSummary
	results, err := worker.RunWithCallback(ctx, refs, process, func(r worker.Result[core.ArtifactRef, string]) error {
		switch {
		case r.Err == nil:
			logger.Info("artifact done", "artifact", r.Input.String(), "container", r.Output, "attempts", r.Attempts)
		case core.IsConflict(r.Err):
			logger.Info("artifact skipped, spec exists", "artifact", r.Input.String(), "container", r.Output)
		default:
			logger.Warn("artifact failed", "artifact", r.Input.String(), "attempts", r.Attempts, "err", redact.Error(r.Err))
		}
		return nil
	}, wopts)
	if err != nil {
		return sum, err
	}

	for _, r := range results {
		item := BatchItem{Ref: r.Input, Container: r.Output, Err: r.Err}
		switch {
		case r.Err == nil:
			sum.OK++
		case core.IsConflict(r.Err):
			item.Conflict = true
			sum.Conflicts++
		default:
			sum.Failed++
		}
		sum.Items = append(sum.Items, item)
	}
	logger.Info("batch done",
		"ok", sum.OK,
		"conflicts", sum.Conflicts,
		"failed", sum.Failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return sum, nil
}

func batchRefs(ctx context.Context, deps Deps, opts BatchOptions) ([]core.ArtifactRef, error) {
	if p := strings.TrimSpace(opts.ManifestPath); p != "" {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open manifest: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		refs, err := localio.ReadArtifactRefsCSV(f)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		return pinManifestRefs(ctx, deps, refs)
	}

	group := strings.TrimSpace(opts.GroupID)
	if group == "" {
		return nil, errors.New("batch requires --group or --manifest")
	}
	items, err := deps.Source.ListArtifacts(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	groups := template.GroupArtifacts(items)
	sel := deps.selector()
	var refs []core.ArtifactRef
	for _, g := range groups {
		if g.GroupID != group {
			continue
		}
		for _, a := range g.Artifacts {
			ref, err := sel.SelectArtifact(groups, g.GroupID, a.ArtifactID)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// pinManifestRefs fills versions for manifest rows without one in groups that pin
// versions, using one listing per group.
func pinManifestRefs(ctx context.Context, deps Deps, refs []core.ArtifactRef) ([]core.ArtifactRef, error) {
	listed := map[string][]template.ArtifactGroup{}
	out := make([]core.ArtifactRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Version != "" || !deps.Conventions.PinsVersion(ref.GroupID) {
			out = append(out, ref)
			continue
		}
		groups, ok := listed[ref.GroupID]
		if !ok {
			items, err := deps.Source.ListArtifacts(ctx, ref.GroupID)
			if err != nil {
				return nil, fmt.Errorf("list artifacts: %w", err)
			}
			groups = template.GroupArtifacts(items)
			listed[ref.GroupID] = groups
		}
		pinned, err := deps.selector().SelectArtifact(groups, ref.GroupID, ref.ArtifactID)
		if err != nil {
			return nil, err
		}
		if pinned.ArtifactType == "" {
			pinned.ArtifactType = ref.ArtifactType
		}
		out = append(out, pinned)
	}
	return out, nil
}
