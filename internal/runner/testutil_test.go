package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func testCaps(id string) Capabilities {
	return Capabilities{ID: id, Family: "llama", Text: true}
}

// fakeLlama is an in-memory llama.cpp server. chunks are written as NDJSON
// lines to /completion, each followed by a flush.
type fakeLlama struct {
	healthStatus int
	rootStatus   int
	lines        []string
	healthCalls  atomic.Int32
	lastBody     atomic.Value // map[string]any
}

func (f *fakeLlama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		f.healthCalls.Add(1)
		w.WriteHeader(statusOr(f.healthStatus, http.StatusOK))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusOr(f.rootStatus, http.StatusOK))
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastBody.Store(body)
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		for _, l := range f.lines {
			_, _ = w.Write([]byte(l + "\n"))
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
		}
	})
	return mux
}

func statusOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func chunkLine(content string, stop bool) string {
	b, _ := json.Marshal(map[string]any{"content": content, "stop": stop})
	return string(b)
}

func newFakeServer(t *testing.T, f *fakeLlama) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)
	return ts
}

func newReadyHTTPRunner(t *testing.T, baseURL string) *LlamaHTTP {
	t.Helper()
	r := NewLlamaHTTP(testCaps("local-7b"), HTTPOptions{BaseURL: baseURL, Logger: zerolog.Nop()})
	r.Init(testCtx(t))
	if !r.Ready() {
		t.Fatalf("runner not ready: %v", r.LastError())
	}
	return r
}

// collector records streamed chunks.
type collector struct {
	chunks []TokenChunk
}

func (c *collector) onToken(tc TokenChunk) error {
	c.chunks = append(c.chunks, tc)
	return nil
}

func (c *collector) text() string {
	var s string
	for _, tc := range c.chunks {
		s += tc.Text
	}
	return s
}
