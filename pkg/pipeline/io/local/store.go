package local

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// FileStore is a core.SpecStore that writes each spec to Dir/<containerName>.json.
// A second spec for the same container is a conflict.
type FileStore struct {
	Dir string
}

func (s FileStore) CreateSpec(ctx context.Context, payload core.SubmissionPayload) (core.CreatedSpec, error) {
	if err := ctx.Err(); err != nil {
		return core.CreatedSpec{}, err
	}
	if _, err := WritePayloadFile(s.Dir, payload); err != nil {
		var ce *core.ConflictError
		if errors.As(err, &ce) {
			ce.Name = payload.Name
		}
		return core.CreatedSpec{}, err
	}
	return core.CreatedSpec{ID: uuid.NewString(), Version: "1"}, nil
}
