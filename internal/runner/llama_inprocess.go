//go:build llama

package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/oklog/ulid/v2"

	"modelrunner/internal/common/fsutil"
)

// LlamaBuilt reports whether this binary carries the in-process llama runtime.
const LlamaBuilt = true

// LlamaInProcess runs a GGUF model inside this process through go-llama.cpp.
type LlamaInProcess struct {
	base
	modelPath string
	opts      InProcessOptions

	mu    sync.Mutex // guards model; also serializes Predict calls
	model *llama.LLama
}

// NewLlamaInProcess constructs an unready runner for the model at modelPath.
func NewLlamaInProcess(caps Capabilities, modelPath string, opts InProcessOptions) *LlamaInProcess {
	r := &LlamaInProcess{modelPath: modelPath, opts: opts}
	r.setup(BackendLlamaInProcess, caps, opts.Logger)
	return r
}

// Init loads the model weights. It is a no-op once ready.
func (r *LlamaInProcess) Init(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ready() {
		return
	}
	path, err := fsutil.ExpandHome(strings.TrimSpace(r.modelPath))
	if err != nil {
		r.markFailed(err)
		return
	}
	if path == "" || !fsutil.PathExists(path) {
		r.markFailed(fmt.Errorf("model file not found: %q", path))
		return
	}
	if err := ctx.Err(); err != nil {
		r.markFailed(err)
		return
	}
	var mo []llama.ModelOption
	if r.opts.CtxSize > 0 {
		mo = append(mo, llama.SetContext(r.opts.CtxSize))
	}
	start := time.Now()
	m, err := llama.New(path, mo...)
	if err != nil {
		r.markFailed(fmt.Errorf("load model: %w", err))
		return
	}
	r.model = m
	r.markReady()
	r.log.Info().Str("path", path).Dur("dur", time.Since(start)).Msg("runner event=ready")
}

func (r *LlamaInProcess) GenerateText(ctx context.Context, req TextRequest, onToken TokenFunc) (Result, error) {
	if err := r.checkReady(); err != nil {
		return Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model == nil {
		return Result{}, ErrNotReady(r.id)
	}

	var (
		text  strings.Builder
		index int
		first time.Time
		cbErr error
	)
	start := time.Now()
	r.model.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		if first.IsZero() {
			first = time.Now()
		}
		text.WriteString(tok)
		if onToken != nil {
			if err := onToken(TokenChunk{Text: tok, Index: index}); err != nil {
				cbErr = err
				return false
			}
		}
		index++
		return true
	})
	_, err := r.model.Predict(req.Prompt, predictOptions(req.Options, r.opts.Threads)...)
	end := time.Now()
	res := Result{
		Text:     text.String(),
		Tokens:   index,
		Latency:  latencyFrom(start, first, end, index),
		Modality: ModalityText,
		Meta: map[string]any{
			MetaBackend:   r.backend,
			MetaRequestID: ulid.Make().String(),
		},
	}
	switch {
	case cbErr != nil:
		observeGeneration(r.backend, outcomeError, res.Latency)
		return res, fmt.Errorf("token callback: %w", cbErr)
	case ctx.Err() != nil:
		observeGeneration(r.backend, outcomeCanceled, res.Latency)
		if onToken != nil {
			_ = onToken(TokenChunk{Index: index, Done: true})
		}
		return res, ctx.Err()
	case err != nil:
		observeGeneration(r.backend, outcomeError, res.Latency)
		return res, fmt.Errorf("predict: %w", err)
	}
	if onToken != nil {
		if err := onToken(TokenChunk{Index: index, Done: true}); err != nil {
			return res, fmt.Errorf("token callback: %w", err)
		}
	}
	observeGeneration(r.backend, outcomeOK, res.Latency)
	return res, nil
}

func (r *LlamaInProcess) GenerateMultimodal(ctx context.Context, req MultimodalRequest, onToken TokenFunc) (Result, error) {
	return Result{}, ErrNotSupported(r.id, "multimodal generation")
}

// Unload frees the model. Safe to call when never initialized.
func (r *LlamaInProcess) Unload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearReady()
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v float64, def float32) float32 {
	if v > 0 {
		return float32(v)
	}
	return def
}

// predictOptions converts generation options into go-llama.cpp options.
func predictOptions(o GenerateOptions, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(o.MaxTokens, defaultNPredict)),
		llama.SetThreads(zn(threads, 1)),
		llama.SetTopP(zf(o.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(o.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(o.Temperature, llama.DefaultOptions.Temperature)),
	}
	if o.Seed != 0 {
		po = append(po, llama.SetSeed(int(o.Seed)))
	}
	return po
}
