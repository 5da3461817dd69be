//go:build !llama

package runner

// This file provides a no-CGO stub for the in-process backend. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds CGO-free.
// The real implementation lives in llama_inprocess.go.

import (
	"context"
	"errors"
)

// LlamaBuilt reports whether this binary carries the in-process llama runtime.
const LlamaBuilt = false

var errLlamaNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")

// LlamaInProcess is unusable in this build: Init always fails.
type LlamaInProcess struct {
	base
}

// NewLlamaInProcess constructs an unready runner.
func NewLlamaInProcess(caps Capabilities, modelPath string, opts InProcessOptions) *LlamaInProcess {
	r := &LlamaInProcess{}
	r.setup(BackendLlamaInProcess, caps, opts.Logger)
	return r
}

func (r *LlamaInProcess) Init(ctx context.Context) { r.markFailed(errLlamaNotBuilt) }

func (r *LlamaInProcess) GenerateText(ctx context.Context, req TextRequest, onToken TokenFunc) (Result, error) {
	return Result{}, r.checkReady()
}

func (r *LlamaInProcess) GenerateMultimodal(ctx context.Context, req MultimodalRequest, onToken TokenFunc) (Result, error) {
	return Result{}, ErrNotSupported(r.id, "multimodal generation")
}

func (r *LlamaInProcess) Unload() error {
	r.clearReady()
	return nil
}
