package runner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"modelrunner/internal/common/fsutil"
)

// BackendLlamaSpawn is the backend tag of LlamaSpawn.
const BackendLlamaSpawn = "llama.cpp-spawn"

const (
	defaultLlamaBin     = "llama-server"
	defaultSpawnHost    = "127.0.0.1"
	defaultReadyTimeout = 60 * time.Second
	stopGrace           = 2 * time.Second
	stderrTailBytes     = 4096
)

// SpawnOptions configures how LlamaSpawn launches llama-server.
type SpawnOptions struct {
	Bin          string
	Host         string
	PortStart    int
	PortEnd      int
	CtxSize      int
	Threads      int
	NGL          int
	ExtraArgs    []string
	ReadyTimeout time.Duration
	ProbeTimeout time.Duration
	Logger       zerolog.Logger
}

// LlamaSpawn owns a llama-server subprocess serving one GGUF file and talks
// to it through an embedded LlamaHTTP runner.
type LlamaSpawn struct {
	base
	modelPath string
	opts      SpawnOptions

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
	http   *LlamaHTTP
}

// NewLlamaSpawn constructs an unready runner for the model file at modelPath.
func NewLlamaSpawn(caps Capabilities, modelPath string, opts SpawnOptions) *LlamaSpawn {
	if strings.TrimSpace(opts.Bin) == "" {
		opts.Bin = defaultLlamaBin
	}
	if strings.TrimSpace(opts.Host) == "" {
		opts.Host = defaultSpawnHost
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	r := &LlamaSpawn{modelPath: modelPath, opts: opts}
	r.setup(BackendLlamaSpawn, caps, opts.Logger)
	return r
}

// PID returns the subprocess id, or 0 when nothing is running.
func (r *LlamaSpawn) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// BaseURL returns the spawned server root, or "" when not running.
func (r *LlamaSpawn) BaseURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.http == nil {
		return ""
	}
	return r.http.BaseURL()
}

// Init starts llama-server and waits until it answers the health probe.
func (r *LlamaSpawn) Init(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ready() {
		return
	}
	if err := r.start(ctx); err != nil {
		r.stopLocked()
		r.markFailed(err)
		return
	}
	r.settleReady()
}

// settleReady marks the runner ready unless the subprocess has already exited.
// The exit watcher only clears a runner that is ready, so an exit landing
// between the last health probe and markReady is caught here.
func (r *LlamaSpawn) settleReady() {
	r.markReady()
	select {
	case <-r.exited:
		r.stopLocked()
		r.markFailed(errors.New("llama-server exited during init"))
	default:
	}
}

func (r *LlamaSpawn) start(ctx context.Context) error {
	path, err := fsutil.ExpandHome(strings.TrimSpace(r.modelPath))
	if err != nil {
		return err
	}
	if path == "" {
		return errors.New("model path is empty")
	}
	if !fsutil.PathExists(path) {
		return fmt.Errorf("model file not found: %s", path)
	}

	var port int
	if r.opts.PortStart > 0 && r.opts.PortEnd >= r.opts.PortStart {
		port, err = pickPortInRange(r.opts.Host, r.opts.PortStart, r.opts.PortEnd)
	} else {
		port, err = pickFreePort(r.opts.Host)
	}
	if err != nil {
		return err
	}
	baseURL := "http://" + net.JoinHostPort(r.opts.Host, strconv.Itoa(port))

	args := []string{"-m", path, "--host", r.opts.Host, "--port", strconv.Itoa(port)}
	if r.opts.CtxSize > 0 {
		args = append(args, "-c", strconv.Itoa(r.opts.CtxSize))
	}
	if r.opts.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(r.opts.Threads))
	}
	if r.opts.NGL > 0 {
		args = append(args, "-ngl", strconv.Itoa(r.opts.NGL))
	}
	args = append(args, r.opts.ExtraArgs...)

	cmd := exec.Command(r.opts.Bin, args...)
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start llama-server: %w", err)
	}
	exited := make(chan struct{})
	r.cmd = cmd
	r.exited = exited
	r.http = NewLlamaHTTP(r.caps, HTTPOptions{BaseURL: baseURL, ProbeTimeout: r.opts.ProbeTimeout, Logger: r.opts.Logger})
	r.log.Info().Int("pid", cmd.Process.Pid).Str("url", baseURL).Msg("runner event=spawn_start")

	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(exited)
		// A server that dies after becoming ready must not keep serving calls.
		if r.Ready() {
			r.clearReady()
			r.setErr(fmt.Errorf("llama-server exited: %v", waitErr))
			r.log.Warn().Err(waitErr).Msg("runner event=spawn_exit")
		}
	}()

	deadline := time.NewTimer(r.opts.ReadyTimeout)
	defer deadline.Stop()
	for {
		select {
		case <-exited:
			return fmt.Errorf("llama-server exited before ready: %v; stderr tail: %s", waitErr, stderr.String())
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("llama-server not ready in %s: %s", r.opts.ReadyTimeout, baseURL)
		default:
		}
		if err := r.http.probePath(ctx, "/health"); err == nil {
			r.http.markReady()
			r.log.Info().Int("pid", cmd.Process.Pid).Str("url", baseURL).Msg("runner event=spawn_ready")
			return nil
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-exited:
		case <-ctx.Done():
		}
	}
}

func (r *LlamaSpawn) GenerateText(ctx context.Context, req TextRequest, onToken TokenFunc) (Result, error) {
	if err := r.checkReady(); err != nil {
		return Result{}, err
	}
	r.mu.Lock()
	h := r.http
	r.mu.Unlock()
	if h == nil {
		return Result{}, ErrNotReady(r.id)
	}
	res, err := h.GenerateText(ctx, req, onToken)
	if res.Meta != nil {
		res.Meta[MetaBackend] = r.backend
	}
	return res, err
}

func (r *LlamaSpawn) GenerateMultimodal(ctx context.Context, req MultimodalRequest, onToken TokenFunc) (Result, error) {
	return Result{}, ErrNotSupported(r.id, "multimodal generation")
}

// Unload stops the subprocess. Safe to call when never initialized.
func (r *LlamaSpawn) Unload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearReady()
	r.stopLocked()
	return nil
}

// stopLocked terminates the subprocess: SIGTERM first, kill after a grace period.
func (r *LlamaSpawn) stopLocked() {
	if r.http != nil {
		_ = r.http.Unload()
	}
	if r.cmd == nil || r.cmd.Process == nil {
		r.cmd, r.http = nil, nil
		return
	}
	_ = r.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-r.exited:
	case <-time.After(stopGrace):
		_ = r.cmd.Process.Kill()
		<-r.exited
	}
	r.log.Info().Int("pid", r.cmd.Process.Pid).Msg("runner event=spawn_stop")
	r.cmd, r.http = nil, nil
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
