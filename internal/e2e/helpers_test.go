package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelrunner/internal/httpapi"
	"modelrunner/internal/manager"
)

func projectRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/internal/e2e/helpers_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

// buildBinary compiles a package or file relative to the project root.
func buildBinary(t *testing.T, name, target string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", bin, target)
	cmd.Dir = projectRoot(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build %s failed: %v\n%s", target, err, string(out))
	}
	return bin
}

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "model_registry.json")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return p
}

// createTempModelsDir creates a directory holding placeholder .gguf files.
func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("GGUF"), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", n, err)
		}
	}
	return dir
}

// newServer wires a manager and the HTTP API the way the serve command does.
func newServer(t *testing.T, cfg manager.Config) (*httptest.Server, *manager.Manager) {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 500 * time.Millisecond
	}
	mgr := manager.New(cfg)
	mgr.LoadRegistry()
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

// fakeLlama serves the llama.cpp /health and streaming /completion endpoints.
type fakeLlama struct {
	*httptest.Server
	healthy atomic.Bool
	chunks  []string
}

func newFakeLlama(t *testing.T, chunks ...string) *fakeLlama {
	t.Helper()
	f := &fakeLlama{chunks: chunks}
	f.healthy.Store(true)
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/completion" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, c := range f.chunks {
			fmt.Fprintf(w, `{"content":%q,"stop":false}`+"\n", c)
			w.(http.Flusher).Flush()
		}
		fmt.Fprintln(w, `{"content":"","stop":true,"stop_type":"eos"}`)
	}))
	t.Cleanup(f.Close)
	return f
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// ndjsonLines decodes every non-empty line of an NDJSON body.
func ndjsonLines(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if ln == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}
