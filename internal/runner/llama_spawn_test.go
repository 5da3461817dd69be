package runner

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// buildTestBinary compiles a helper program from testdata and returns its path.
func buildTestBinary(t *testing.T, src string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), strings.TrimSuffix(filepath.Base(src), ".go"))
	cmd := exec.Command("go", "build", "-o", bin, src)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build %s: %v: %s", src, err, string(out))
	}
	return bin
}

func writeModelFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tiny-q4_k_m.gguf")
	if err := os.WriteFile(p, []byte("GGUF"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

func TestLlamaSpawn_MissingModelFile(t *testing.T) {
	r := NewLlamaSpawn(testCaps("s"), filepath.Join(t.TempDir(), "nope.gguf"), SpawnOptions{Logger: zerolog.Nop()})
	r.Init(testCtx(t))
	if r.Ready() {
		t.Fatalf("expected not ready")
	}
	if err := r.LastError(); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if r.PID() != 0 || r.BaseURL() != "" {
		t.Fatalf("nothing should be running")
	}
	if _, err := r.GenerateText(testCtx(t), TextRequest{Prompt: "p"}, nil); !IsNotReady(err) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

func TestLlamaSpawn_MissingBinary(t *testing.T) {
	model := writeModelFile(t)
	r := NewLlamaSpawn(testCaps("s"), model, SpawnOptions{Bin: filepath.Join(t.TempDir(), "no-such-server"), Logger: zerolog.Nop()})
	r.Init(testCtx(t))
	if r.Ready() || r.LastError() == nil {
		t.Fatalf("expected start failure")
	}
	if err := r.Unload(); err != nil {
		t.Fatalf("unload after failed init: %v", err)
	}
}

func TestLlamaSpawn_EarlyExitReportsStderr(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := buildTestBinary(t, "./testdata/exit_1.go")
	r := NewLlamaSpawn(testCaps("s"), writeModelFile(t), SpawnOptions{Bin: bin, ReadyTimeout: 5 * time.Second, Logger: zerolog.Nop()})
	r.Init(testCtx(t))
	if r.Ready() {
		t.Fatalf("expected not ready")
	}
	if err := r.LastError(); err == nil || !strings.Contains(err.Error(), "failed to load model") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
}

func TestLlamaSpawn_ExitBeforeReadyIsNotReady(t *testing.T) {
	r := NewLlamaSpawn(testCaps("s"), writeModelFile(t), SpawnOptions{Logger: zerolog.Nop()})
	exited := make(chan struct{})
	close(exited)
	r.mu.Lock()
	r.exited = exited
	r.settleReady()
	r.mu.Unlock()
	if r.Ready() {
		t.Fatalf("runner ready with an exited server")
	}
	if err := r.LastError(); err == nil || !strings.Contains(err.Error(), "exited during init") {
		t.Fatalf("expected exit error, got %v", err)
	}

	alive := NewLlamaSpawn(testCaps("a"), writeModelFile(t), SpawnOptions{Logger: zerolog.Nop()})
	alive.mu.Lock()
	alive.exited = make(chan struct{})
	alive.settleReady()
	alive.mu.Unlock()
	if !alive.Ready() {
		t.Fatalf("running server should be ready: %v", alive.LastError())
	}
}

func TestLlamaSpawn_StartGenerateStop(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := buildTestBinary(t, "./testdata/fake_llama_server.go")
	r := NewLlamaSpawn(testCaps("spawned"), writeModelFile(t), SpawnOptions{
		Bin:       bin,
		PortStart: 31100,
		PortEnd:   31120,
		CtxSize:   512,
		Logger:    zerolog.Nop(),
	})
	r.Init(testCtx(t))
	if !r.Ready() {
		t.Fatalf("spawn not ready: %v", r.LastError())
	}
	if r.PID() <= 0 || !strings.HasPrefix(r.BaseURL(), "http://127.0.0.1:311") {
		t.Fatalf("unexpected process info pid=%d url=%q", r.PID(), r.BaseURL())
	}

	var c collector
	res, err := r.GenerateText(testCtx(t), TextRequest{Prompt: "one two three"}, c.onToken)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text != "one two three " || res.Tokens != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Meta[MetaBackend] != BackendLlamaSpawn {
		t.Fatalf("expected spawn backend tag, got %v", res.Meta[MetaBackend])
	}
	if !c.chunks[len(c.chunks)-1].Done {
		t.Fatalf("missing terminal chunk")
	}

	if err := r.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if r.Ready() || r.PID() != 0 {
		t.Fatalf("expected stopped runner")
	}
	if _, err := r.GenerateText(testCtx(t), TextRequest{Prompt: "p"}, nil); !IsNotReady(err) {
		t.Fatalf("expected not ready after unload, got %v", err)
	}
}

func TestPickPortInRange(t *testing.T) {
	p, err := pickPortInRange("127.0.0.1", 31200, 31210)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if p < 31200 || p > 31210 {
		t.Fatalf("port %d out of range", p)
	}
	if _, err := pickPortInRange("127.0.0.1", 10, 5); err == nil {
		t.Fatalf("expected error for empty range")
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	if got := tb.String(); got != "defg" {
		t.Fatalf("tail = %q", got)
	}
}
