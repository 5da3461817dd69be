package httpapi

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"modelrunner/internal/manager"
	"modelrunner/internal/registry"
	"modelrunner/internal/runner"
	"modelrunner/pkg/types"
)

// mockService serves a fixed registry and resolves ids to preset runners.
type mockService struct {
	mu         sync.Mutex
	entries    []registry.Entry
	runners    map[string]runner.Runner
	cached     map[string]bool
	resolveErr error
	status     types.StatusResponse
	ready      bool
}

func newMockService(entries ...registry.Entry) *mockService {
	return &mockService{entries: entries, runners: map[string]runner.Runner{}, cached: map[string]bool{}}
}

func (m *mockService) Entries() []registry.Entry   { return append([]registry.Entry(nil), m.entries...) }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

func (m *mockService) Cached(id string) (runner.Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cached[id] {
		return nil, false
	}
	return m.runners[id], true
}

func (m *mockService) Resolve(ctx context.Context, id string) (runner.Runner, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[id]
	if !ok {
		return nil, manager.ErrModelUnknown(id)
	}
	m.cached[id] = true
	return r, nil
}

func (m *mockService) Unload(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cached[id] {
		return manager.ErrModelUnknown(id)
	}
	delete(m.cached, id)
	return m.runners[id].Unload()
}

// withSynthetic registers a ready synthetic runner.
func (m *mockService) withSynthetic(id string, vision bool) *mockService {
	caps := runner.Capabilities{ID: id, Family: "synthetic", Text: true, Vision: vision}
	r := runner.NewSynthetic(caps, zerolog.Nop())
	r.Init(context.Background())
	m.runners[id] = r
	m.entries = append(m.entries, registry.Entry{
		ID:         id,
		Backend:    runner.BackendSynthetic,
		Modalities: &registry.Modalities{Vision: &vision},
	})
	return m
}

// streamRunner emits fixed chunks through the callback, then optionally fails.
type streamRunner struct {
	id     string
	chunks []string
	err    error
}

func (s *streamRunner) ID() string      { return s.id }
func (s *streamRunner) Backend() string { return "stream" }
func (s *streamRunner) Capabilities() runner.Capabilities {
	return runner.Capabilities{ID: s.id, Text: true}
}
func (s *streamRunner) Supports(m runner.Modality) bool { return m == runner.ModalityText }
func (s *streamRunner) Ready() bool                     { return true }
func (s *streamRunner) LastError() error                { return nil }
func (s *streamRunner) Init(context.Context)            {}
func (s *streamRunner) Unload() error                   { return nil }

func (s *streamRunner) GenerateText(ctx context.Context, req runner.TextRequest, onToken runner.TokenFunc) (runner.Result, error) {
	var text string
	for i, c := range s.chunks {
		text += c
		if onToken != nil {
			if err := onToken(runner.TokenChunk{Text: c, Index: i}); err != nil {
				return runner.Result{}, err
			}
		}
	}
	res := runner.Result{Text: text, Tokens: len(s.chunks), Modality: runner.ModalityText, Latency: &runner.Latency{FirstTokenMs: 1, TotalMs: 2}}
	if s.err != nil {
		return res, s.err
	}
	if onToken != nil {
		_ = onToken(runner.TokenChunk{Index: len(s.chunks), Done: true})
	}
	return res, nil
}

func (s *streamRunner) GenerateMultimodal(ctx context.Context, req runner.MultimodalRequest, onToken runner.TokenFunc) (runner.Result, error) {
	return runner.Result{}, runner.ErrNotSupported(s.id, "multimodal generation")
}
