package template

import (
	"context"
	"errors"
	"sync"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// ErrSuperseded is returned by Session.Load when a newer Load started before this one
// finished. The superseded result is discarded.
var ErrSuperseded = errors.New("template load superseded by a newer selection")

// ErrNoDraft is returned when a Session operation needs a loaded draft.
var ErrNoDraft = errors.New("no draft loaded")

// Session holds the current draft for one interactive user. Each Load cancels the
// in-flight load it replaces; only the newest load may install its draft.
type Session struct {
	loader *Loader

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	draft  *SpecDraft
}

func NewSession(loader *Loader) *Session {
	return &Session{loader: loader}
}

// Load selects a new artifact. On success the returned draft replaces the session's
// draft wholesale. A failed load leaves the previous draft in place.
func (s *Session) Load(ctx context.Context, ref core.ArtifactRef) (SpecDraft, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.mu.Unlock()

	d, err := s.loader.LoadTemplate(ctx, ref)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return SpecDraft{}, ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		return SpecDraft{}, err
	}
	s.draft = &d
	return d.Clone(), nil
}

// Draft returns a copy of the current draft.
func (s *Session) Draft() (SpecDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return SpecDraft{}, false
	}
	return s.draft.Clone(), true
}

// EditSchemaText applies a hand edit to the current draft.
func (s *Session) EditSchemaText(text string) (SpecDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return SpecDraft{}, ErrNoDraft
	}
	next, err := ApplySchemaText(*s.draft, text)
	if err != nil {
		return s.draft.Clone(), err
	}
	s.draft = &next
	return next.Clone(), nil
}

// Submit finalizes and stores the current draft.
func (s *Session) Submit(ctx context.Context) (core.CreatedSpec, error) {
	d, ok := s.Draft()
	if !ok {
		return core.CreatedSpec{}, ErrNoDraft
	}
	return s.loader.Submit(ctx, d)
}
