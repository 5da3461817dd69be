package runner

import (
	"context"
	"time"
)

// Modality names an input/output kind a model can handle.
type Modality string

const (
	ModalityText   Modality = "text"
	ModalityVision Modality = "vision"
	ModalityAudio  Modality = "audio"
)

// Capabilities is the static description of a runnable model.
type Capabilities struct {
	ID     string `json:"id"`
	Family string `json:"family,omitempty"`
	// Parameter count in billions; nil when unknown.
	ParamsB       *float64 `json:"params_b,omitempty"`
	Text          bool     `json:"text"`
	Vision        bool     `json:"vision"`
	Audio         bool     `json:"audio"`
	Quantizations []string `json:"quantizations,omitempty"`
	License       string   `json:"license,omitempty"`
	Authenticity  string   `json:"authenticity,omitempty"`
	Tokenizer     string   `json:"tokenizer,omitempty"`
}

// Supports reports whether the modality flag is set.
func (c Capabilities) Supports(m Modality) bool {
	switch m {
	case ModalityText:
		return c.Text
	case ModalityVision:
		return c.Vision
	case ModalityAudio:
		return c.Audio
	default:
		return false
	}
}

func (c Capabilities) clone() Capabilities {
	out := c
	if c.ParamsB != nil {
		v := *c.ParamsB
		out.ParamsB = &v
	}
	out.Quantizations = append([]string(nil), c.Quantizations...)
	return out
}

// GenerateOptions are the sampling controls shared by text and multimodal requests.
// Zero values mean "backend default".
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopK        int
	TopP        float64
	Stream      bool
	Seed        int64
}

// TextRequest is the input to GenerateText.
type TextRequest struct {
	Prompt  string
	Options GenerateOptions
}

// ImageInput is either raw bytes or a URI the backend can fetch.
type ImageInput struct {
	Data     []byte
	URI      string
	MIMEType string
}

// MultimodalRequest is the input to GenerateMultimodal.
type MultimodalRequest struct {
	Prompt  string
	Images  []ImageInput
	Options GenerateOptions
}

// Latency holds per-call timing. TokensPerSec is nil when fewer than two
// chunks arrived.
type Latency struct {
	FirstTokenMs float64  `json:"first_token_latency_ms"`
	TotalMs      float64  `json:"total_latency_ms"`
	TokensPerSec *float64 `json:"tokens_per_sec,omitempty"`
}

// Result is the output of a generation call.
type Result struct {
	Text     string         `json:"text"`
	Tokens   int            `json:"tokens"`
	Latency  *Latency       `json:"latency,omitempty"`
	Modality Modality       `json:"modality"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Partial reports whether the result was cut short and carries an error annotation.
func (r Result) Partial() bool {
	_, ok := r.Meta[MetaError]
	return ok
}

// Meta keys set by backends.
const (
	MetaBackend    = "backend"
	MetaEndpoint   = "endpoint"
	MetaError      = "error"
	MetaRequestID  = "request_id"
	MetaStopReason = "stop_reason"
)

// TokenChunk is one incremental unit of streamed output.
type TokenChunk struct {
	Text  string `json:"token"`
	Index int    `json:"index"`
	Done  bool   `json:"done,omitempty"`
}

// TokenFunc receives chunks in production order. Returning an error aborts the call.
type TokenFunc func(TokenChunk) error

// Runner is the contract every backend implements.
//
// Init never fails loudly: on failure Ready stays false and LastError
// describes why, so callers can retry or fall back.
type Runner interface {
	ID() string
	Backend() string
	Capabilities() Capabilities
	Supports(m Modality) bool
	Ready() bool
	LastError() error
	Init(ctx context.Context)
	GenerateText(ctx context.Context, req TextRequest, onToken TokenFunc) (Result, error)
	GenerateMultimodal(ctx context.Context, req MultimodalRequest, onToken TokenFunc) (Result, error)
	Unload() error
}

// latencyFrom computes Latency from call start, first chunk, end and the
// number of chunks observed.
func latencyFrom(start, first, end time.Time, chunks int) *Latency {
	if first.IsZero() {
		first = end
	}
	l := &Latency{
		FirstTokenMs: msSince(start, first),
		TotalMs:      msSince(start, end),
	}
	if chunks >= 2 {
		if secs := end.Sub(first).Seconds(); secs > 0 {
			tps := float64(chunks-1) / secs
			l.TokensPerSec = &tps
		}
	}
	return l
}

func msSince(from, to time.Time) float64 {
	return float64(to.Sub(from)) / float64(time.Millisecond)
}
