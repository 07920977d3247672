package app

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/pipeline/spec"
	"github.com/shpitdev/specsynth/pkg/pipeline/template"
)

// Deps are the collaborators shared by every command. Store and Describer are optional.
type Deps struct {
	Source      core.ArtifactSource
	Store       core.SpecStore
	Describer   core.Describer
	Conventions spec.Conventions
	Logger      *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// runLogger tags every line of one command run with a fresh run id.
func (d Deps) runLogger(command string) *slog.Logger {
	return d.logger().With("run", uuid.NewString(), "command", command)
}

func (d Deps) loader(logger *slog.Logger, store core.SpecStore) (*template.Loader, error) {
	conv := d.Conventions
	return template.NewLoader(template.LoaderConfig{
		Source:      d.Source,
		Store:       store,
		Conventions: &conv,
		Describer:   d.Describer,
		Logger:      logger,
	})
}

func (d Deps) selector() template.Selector {
	return template.Selector{Conventions: d.Conventions}
}
