package template_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

type fakeSource struct {
	mu       sync.Mutex
	payloads map[string]string
	versions map[string]string
	// gates block GetArtifactContent for an artifact until closed or ctx ends.
	gates   map[string]chan struct{}
	started chan string
	calls   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		payloads: map[string]string{},
		versions: map[string]string{},
		gates:    map[string]chan struct{}{},
	}
}

func (f *fakeSource) add(groupID, artifactID, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[groupID+"/"+artifactID] = payload
}

func (f *fakeSource) ListArtifacts(_ context.Context, _ string) ([]core.ArtifactDescriptor, error) {
	return nil, nil
}

func (f *fakeSource) GetArtifactContent(ctx context.Context, groupID, artifactID, version string) (core.ArtifactContent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, groupID+"/"+artifactID+"@"+version)
	gate := f.gates[artifactID]
	payload, ok := f.payloads[groupID+"/"+artifactID]
	served := f.versions[groupID+"/"+artifactID]
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- artifactID
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return core.ArtifactContent{}, ctx.Err()
		}
	}
	if !ok {
		return core.ArtifactContent{}, fmt.Errorf("artifact %s/%s not found", groupID, artifactID)
	}
	if served == "" {
		served = version
	}
	return core.ArtifactContent{
		Ref:     core.ArtifactRef{GroupID: groupID, ArtifactID: artifactID, Version: served},
		Payload: []byte(payload),
	}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	payloads []core.SubmissionPayload
	err      error
}

func (s *fakeStore) CreateSpec(_ context.Context, p core.SubmissionPayload) (core.CreatedSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return core.CreatedSpec{}, s.err
	}
	s.payloads = append(s.payloads, p)
	return core.CreatedSpec{ID: fmt.Sprintf("spec-%d", len(s.payloads)), Version: "1"}, nil
}

type fakeDescriber struct {
	text string
	err  error
	reqs []core.DescriptionRequest
}

func (d *fakeDescriber) Describe(_ context.Context, req core.DescriptionRequest) (string, error) {
	d.reqs = append(d.reqs, req)
	return d.text, d.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
