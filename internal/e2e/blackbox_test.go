package e2e

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"modelrunner/pkg/types"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

type serverProc struct {
	cmd    *exec.Cmd
	base   string
	exited chan error
}

func startServer(t *testing.T, bin string, args ...string) *serverProc {
	t.Helper()
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args = append([]string{"--env-file", "", "--log-format", "json", "serve", "--addr", fmt.Sprintf("127.0.0.1:%d", port)}, args...)
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	sp := &serverProc{cmd: cmd, base: base, exited: make(chan error, 1)}
	go func() { sp.exited <- cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return sp
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (sp *serverProc) stop(t *testing.T) {
	t.Helper()
	_ = sp.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case err := <-sp.exited:
		if err != nil {
			t.Fatalf("server exited with %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("server did not exit after SIGTERM")
	}
}

func TestBlackbox_SpawnFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("builds binaries and spawns processes")
	}
	bin := buildBinary(t, "modelrunner", "./cmd/modelrunner")
	fake := buildBinary(t, "fake-llama-server", "./internal/runner/testdata/fake_llama_server.go")
	modelsDir := createTempModelsDir(t, "tiny.Q4_K_M.gguf")
	reg := writeRegistry(t, `[{"id":"echo","backend":"synthetic"}]`)

	sp := startServer(t, bin,
		"--registry", reg,
		"--models-dir", modelsDir,
		"--llama-bin", fake,
		"--llama-port-start", "31300",
		"--llama-port-end", "31320",
	)

	resp, body := httpGet(t, sp.base+"/models")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"id":"tiny.Q4_K_M.gguf"`) {
		t.Fatalf("/models %d %s", resp.StatusCode, body)
	}

	resp, body = httpPostJSON(t, sp.base+"/generate", `{"model":"tiny.Q4_K_M.gguf","prompt":"one two three","stream":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/generate %d %s", resp.StatusCode, body)
	}
	lines := ndjsonLines(t, body)
	final := lines[len(lines)-1]
	if final["text"] != "one two three " {
		t.Fatalf("final line: %v", final)
	}

	resp, body = httpGet(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d", resp.StatusCode)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("/status json: %v", err)
	}
	if len(st.Runners) != 1 || st.Runners[0].PID == 0 || st.Runners[0].Endpoint == "" {
		t.Fatalf("expected one spawned runner, got %+v", st.Runners)
	}
	child := st.Runners[0].Endpoint

	sp.stop(t)
	if _, err := http.Get(child + "/health"); err == nil {
		t.Fatalf("spawned llama-server at %s still running after shutdown", child)
	}
}

func TestBlackbox_ModelNotFound404(t *testing.T) {
	if testing.Short() {
		t.Skip("builds binaries and spawns processes")
	}
	bin := buildBinary(t, "modelrunner", "./cmd/modelrunner")
	reg := writeRegistry(t, `[{"id":"echo","backend":"synthetic"}]`)
	sp := startServer(t, bin, "--registry", reg)
	defer sp.stop(t)

	resp, body := httpPostJSON(t, sp.base+"/generate", `{"model":"missing.gguf","prompt":"hi"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", resp.StatusCode, body)
	}
	resp, body = httpPostJSON(t, sp.base+"/generate", `{"model":"echo","prompt":"hi"}`)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"text":"[echo] hi"`) {
		t.Fatalf("echo: %d %s", resp.StatusCode, body)
	}
}

func TestBlackbox_BadConfigExits1(t *testing.T) {
	if testing.Short() {
		t.Skip("builds binaries")
	}
	bin := buildBinary(t, "modelrunner", "./cmd/modelrunner")
	cfg := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(cfg, []byte("addr: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := exec.Command(bin, "--config", cfg, "serve").CombinedOutput()
	ee, ok := err.(*exec.ExitError)
	if !ok || ee.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %v: %s", err, out)
	}
	if !strings.Contains(string(out), "load config") {
		t.Fatalf("output: %s", out)
	}
}
