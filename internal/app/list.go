package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shpitdev/specsynth/pkg/pipeline/template"
)

// RunList prints the registry listing grouped by group id.
func RunList(ctx context.Context, deps Deps, groupFilter string, w io.Writer) error {
	logger := deps.runLogger("list")
	start := time.Now()

	items, err := deps.Source.ListArtifacts(ctx, groupFilter)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}
	groups := template.GroupArtifacts(items)
	logger.Info("registry listed", "groups", len(groups), "artifacts", len(items), "elapsed", time.Since(start).Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "GROUP\tARTIFACT\tTYPE\tLATEST\tCONVENTION")
	for _, g := range groups {
		conv := deps.Conventions.ConventionFor(g.GroupID)
		for _, a := range g.Artifacts {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", g.GroupID, a.ArtifactID, a.Type, a.LatestVersion, conv)
		}
	}
	return tw.Flush()
}
