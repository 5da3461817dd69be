package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelrunner/internal/registry"
	"modelrunner/internal/runner"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func testConfig() Config {
	return Config{Logger: zerolog.Nop(), ProbeTimeout: 300 * time.Millisecond}
}

// llamaServer fakes a llama.cpp server and counts every request it sees.
type llamaServer struct {
	*httptest.Server
	healthy  atomic.Bool
	requests atomic.Int32
}

func newLlamaServer(t *testing.T, healthy bool) *llamaServer {
	t.Helper()
	s := &llamaServer{}
	s.healthy.Store(healthy)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if !s.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/completion" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, c := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, `{"content":%q,"stop":false}`+"\n", c)
			w.(http.Flusher).Flush()
		}
		fmt.Fprintln(w, `{"content":"","stop":true,"stop_type":"eos"}`)
	}))
	t.Cleanup(s.Close)
	return s
}

func httpEntry(id, endpoint string) registry.Entry {
	p := 7.0
	return registry.Entry{
		ID:      id,
		Backend: "llama.cpp-http",
		ParamsB: &p,
		Serving: &registry.Serving{Endpoint: endpoint},
	}
}

func writeRegistry(t *testing.T, entries any) string {
	t.Helper()
	b, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal registry: %v", err)
	}
	p := filepath.Join(t.TempDir(), "model_registry.json")
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return p
}

// stubRunner is a controllable runner for cache tests.
type stubRunner struct {
	id        string
	initDelay time.Duration
	initErr   error
	ready     atomic.Bool
	inits     atomic.Int32
	unloads   atomic.Int32
}

func (s *stubRunner) ID() string      { return s.id }
func (s *stubRunner) Backend() string { return "stub" }
func (s *stubRunner) Capabilities() runner.Capabilities {
	return runner.Capabilities{ID: s.id, Text: true}
}
func (s *stubRunner) Supports(m runner.Modality) bool { return m == runner.ModalityText }
func (s *stubRunner) Ready() bool                     { return s.ready.Load() }
func (s *stubRunner) LastError() error                { return s.initErr }

func (s *stubRunner) Init(ctx context.Context) {
	s.inits.Add(1)
	if s.initDelay > 0 {
		time.Sleep(s.initDelay)
	}
	s.ready.Store(s.initErr == nil)
}

func (s *stubRunner) GenerateText(ctx context.Context, req runner.TextRequest, onToken runner.TokenFunc) (runner.Result, error) {
	if !s.Ready() {
		return runner.Result{}, runner.ErrNotReady(s.id)
	}
	return runner.Result{Text: req.Prompt, Tokens: 1, Modality: runner.ModalityText}, nil
}

func (s *stubRunner) GenerateMultimodal(ctx context.Context, req runner.MultimodalRequest, onToken runner.TokenFunc) (runner.Result, error) {
	return runner.Result{}, runner.ErrNotSupported(s.id, "multimodal generation")
}

func (s *stubRunner) Unload() error {
	s.unloads.Add(1)
	s.ready.Store(false)
	return nil
}

// stubFactory records every runner it builds.
type stubFactory struct {
	initDelay time.Duration
	initErr   error
	built     atomic.Int32
	last      atomic.Pointer[stubRunner]
}

func (f *stubFactory) build(e registry.Entry, cfg Config) (runner.Runner, error) {
	f.built.Add(1)
	r := &stubRunner{id: e.ID, initDelay: f.initDelay, initErr: f.initErr}
	f.last.Store(r)
	return r, nil
}

func stubManager(f *stubFactory, ids ...string) *Manager {
	cfg := testConfig()
	cfg.Factories = map[BackendKind]Factory{KindSynthetic: f.build}
	entries := make([]registry.Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, registry.Entry{ID: id, Backend: "synthetic"})
	}
	return NewWithEntries(entries, cfg)
}
