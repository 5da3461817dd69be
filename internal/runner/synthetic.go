package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// BackendSynthetic is the backend tag of Synthetic.
const BackendSynthetic = "synthetic"

// Synthetic is an in-process placeholder backend. It does not stream: the
// full text is returned directly and the token callback is never invoked.
type Synthetic struct {
	base
}

// NewSynthetic constructs an unready synthetic runner.
func NewSynthetic(caps Capabilities, log zerolog.Logger) *Synthetic {
	r := &Synthetic{}
	r.setup(BackendSynthetic, caps, log)
	return r
}

// Init always succeeds.
func (r *Synthetic) Init(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		r.markFailed(err)
		return
	}
	r.markReady()
}

func (r *Synthetic) GenerateText(ctx context.Context, req TextRequest, onToken TokenFunc) (Result, error) {
	if err := r.checkReady(); err != nil {
		return Result{}, err
	}
	return r.respond(ctx, ModalityText, req.Prompt, req.Options)
}

func (r *Synthetic) GenerateMultimodal(ctx context.Context, req MultimodalRequest, onToken TokenFunc) (Result, error) {
	if err := r.checkModality(ModalityVision); err != nil {
		return Result{}, err
	}
	if err := r.checkReady(); err != nil {
		return Result{}, err
	}
	prompt := req.Prompt
	if n := len(req.Images); n > 0 {
		prompt = fmt.Sprintf("%s (%d image(s))", prompt, n)
	}
	return r.respond(ctx, ModalityVision, prompt, req.Options)
}

func (r *Synthetic) respond(ctx context.Context, m Modality, prompt string, opts GenerateOptions) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	text := synthesize(r.id, prompt, opts.MaxTokens)
	end := time.Now()
	lat := &Latency{FirstTokenMs: msSince(start, end), TotalMs: msSince(start, end)}
	observeGeneration(r.backend, outcomeOK, lat)
	return Result{
		Text:     text,
		Tokens:   len(strings.Fields(text)),
		Latency:  lat,
		Modality: m,
		Meta: map[string]any{
			MetaBackend:   r.backend,
			MetaRequestID: ulid.Make().String(),
		},
	}, nil
}

// synthesize echoes the prompt, tagged with the runner id, truncated to
// maxWords words when positive.
func synthesize(id, prompt string, maxWords int) string {
	words := strings.Fields("[" + id + "] " + prompt)
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}

// Unload clears readiness.
func (r *Synthetic) Unload() error {
	r.clearReady()
	return nil
}
