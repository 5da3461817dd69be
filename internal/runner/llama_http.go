package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// BackendLlamaHTTP is the backend tag of LlamaHTTP.
const BackendLlamaHTTP = "llama.cpp-http"

const (
	// DefaultProbeTimeout bounds each health probe issued by Init.
	DefaultProbeTimeout = 2500 * time.Millisecond
	// DefaultBaseURL is used when an entry has no serving endpoint.
	DefaultBaseURL = "http://127.0.0.1:8080"

	defaultNPredict = 128
	readBufSize     = 4096
)

// HTTPOptions configures a LlamaHTTP runner.
type HTTPOptions struct {
	BaseURL      string
	APIKey       string
	ProbeTimeout time.Duration
	// Client overrides the HTTP client. It must not set a global Timeout
	// because generation streams are unbounded.
	Client *http.Client
	Logger zerolog.Logger
}

// LlamaHTTP adapts a running llama.cpp server (native /completion endpoint,
// newline-delimited JSON streaming) to the Runner contract.
type LlamaHTTP struct {
	base
	baseURL      string
	apiKey       string
	probeTimeout time.Duration
	client       *http.Client

	initMu sync.Mutex
}

// NewLlamaHTTP constructs an unready runner. Call Init before generating.
func NewLlamaHTTP(caps Capabilities, opts HTTPOptions) *LlamaHTTP {
	r := &LlamaHTTP{
		baseURL:      strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:       opts.APIKey,
		probeTimeout: opts.ProbeTimeout,
		client:       opts.Client,
	}
	r.setup(BackendLlamaHTTP, caps, opts.Logger)
	if r.baseURL == "" {
		r.baseURL = DefaultBaseURL
	}
	if r.probeTimeout <= 0 {
		r.probeTimeout = DefaultProbeTimeout
	}
	if r.client == nil {
		r.client = newStreamingClient(r.probeTimeout)
	}
	return r
}

// newStreamingClient leaves Client.Timeout at zero: probes carry their own
// context deadline and generation streams are unbounded.
func newStreamingClient(connectTimeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: 0}
}

// BaseURL returns the server root this runner talks to.
func (r *LlamaHTTP) BaseURL() string { return r.baseURL }

// Init probes /health, falling back to /. It is a no-op once ready.
func (r *LlamaHTTP) Init(ctx context.Context) {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.Ready() {
		return
	}
	start := time.Now()
	if err := r.probe(ctx); err != nil {
		r.markFailed(err)
		return
	}
	r.markReady()
	r.log.Info().Str("endpoint", r.baseURL).Dur("dur", time.Since(start)).Msg("runner event=ready")
}

func (r *LlamaHTTP) probe(ctx context.Context) error {
	herr := r.probePath(ctx, "/health")
	if herr == nil {
		return nil
	}
	r.log.Debug().Err(herr).Msg("runner event=health_probe_failed fallback=/")
	rerr := r.probePath(ctx, "/")
	if rerr == nil {
		return nil
	}
	return fmt.Errorf("health probe: %v; root probe: %v", herr, rerr)
}

func (r *LlamaHTTP) probePath(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	r.authorize(req)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, readBufSize))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return nil
}

func (r *LlamaHTTP) authorize(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
}

// completionRequest is the body of POST /completion.
type completionRequest struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	Seed        int64   `json:"seed,omitempty"`
}

// completionChunk is one NDJSON line of the streamed response.
type completionChunk struct {
	Content  string `json:"content"`
	Stop     bool   `json:"stop"`
	StopType string `json:"stop_type,omitempty"`
}

// GenerateText streams a completion. The wire request always streams; chunks
// are forwarded to onToken when it is non-nil. A stream that breaks after the
// response started yields the partial text with Meta["error"] set and a nil
// error.
func (r *LlamaHTTP) GenerateText(ctx context.Context, req TextRequest, onToken TokenFunc) (Result, error) {
	if err := r.checkReady(); err != nil {
		return Result{}, err
	}
	return r.complete(ctx, req.Prompt, req.Options, onToken)
}

// GenerateMultimodal is not available on the native completion endpoint.
func (r *LlamaHTTP) GenerateMultimodal(ctx context.Context, req MultimodalRequest, onToken TokenFunc) (Result, error) {
	return Result{}, ErrNotSupported(r.id, "multimodal generation")
}

// Unload clears readiness and drops pooled connections.
func (r *LlamaHTTP) Unload() error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	r.clearReady()
	r.client.CloseIdleConnections()
	return nil
}

func (r *LlamaHTTP) complete(ctx context.Context, prompt string, opts GenerateOptions, onToken TokenFunc) (Result, error) {
	nPredict := opts.MaxTokens
	if nPredict <= 0 {
		nPredict = defaultNPredict
	}
	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		NPredict:    nPredict,
		Stream:      true,
		Temperature: opts.Temperature,
		TopK:        opts.TopK,
		TopP:        opts.TopP,
		Seed:        opts.Seed,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	r.authorize(httpReq)

	reqID := ulid.Make().String()
	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		observeGeneration(r.backend, outcomeError, nil)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, readBufSize))
		observeGeneration(r.backend, outcomeError, nil)
		return Result{}, fmt.Errorf("generate: llama server http error: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	res := Result{
		Modality: ModalityText,
		Meta: map[string]any{
			MetaBackend:   r.backend,
			MetaEndpoint:  r.baseURL,
			MetaRequestID: reqID,
		},
	}
	s := streamState{onToken: onToken, log: r.log}
	streamErr := s.consume(resp.Body)
	end := time.Now()

	res.Text = s.text.String()
	res.Tokens = s.tokens
	res.Latency = latencyFrom(start, s.first, end, s.tokens)
	if s.stopType != "" {
		res.Meta[MetaStopReason] = s.stopType
	}

	switch {
	case s.cbErr != nil:
		observeGeneration(r.backend, outcomeError, res.Latency)
		return res, fmt.Errorf("token callback: %w", s.cbErr)
	case ctx.Err() != nil && !s.stopped:
		observeGeneration(r.backend, outcomeCanceled, res.Latency)
		// ctx.Err() takes precedence over a callback error here.
		_ = s.finish()
		return res, ctx.Err()
	case !s.stopped:
		if streamErr == nil {
			streamErr = io.ErrUnexpectedEOF
		}
		res.Meta[MetaError] = interrupted(streamErr).Error()
		r.log.Warn().Err(streamErr).Str("request_id", reqID).Int("tokens", res.Tokens).Msg("runner event=stream_interrupted")
		if err := s.finish(); err != nil {
			observeGeneration(r.backend, outcomeError, res.Latency)
			return res, fmt.Errorf("token callback: %w", err)
		}
		observeGeneration(r.backend, outcomePartial, res.Latency)
		return res, nil
	}
	observeGeneration(r.backend, outcomeOK, res.Latency)
	r.log.Debug().Str("request_id", reqID).Int("tokens", res.Tokens).Float64("total_ms", res.Latency.TotalMs).Msg("runner event=generate_done")
	return res, nil
}

// streamState accumulates one streamed completion.
type streamState struct {
	onToken TokenFunc
	log     zerolog.Logger

	split    LineSplitter
	text     strings.Builder
	tokens   int
	index    int
	first    time.Time
	stopped  bool
	stopType string
	cbErr    error
}

// consume reads body until a stop chunk, EOF or a read error. It returns the
// read error, if any; EOF is reported as nil.
func (s *streamState) consume(body io.Reader) error {
	buf := make([]byte, readBufSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range s.split.Feed(buf[:n]) {
				if s.handle(line) {
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if rest := s.split.Flush(); rest != nil {
					s.handle(rest)
				}
				return nil
			}
			return err
		}
	}
}

// handle processes one line and reports whether reading should stop.
func (s *streamState) handle(line []byte) bool {
	payload, ok := streamPayload(line)
	if !ok {
		return false
	}
	var c completionChunk
	if err := json.Unmarshal(payload, &c); err != nil {
		s.log.Debug().Err(err).Bytes("line", payload).Msg("runner event=skip_malformed_line")
		return false
	}
	if c.Content != "" {
		if s.first.IsZero() {
			s.first = time.Now()
		}
		s.text.WriteString(c.Content)
		s.tokens++
	}
	if c.Stop {
		s.stopped = true
		s.stopType = c.StopType
	}
	if err := s.emit(c.Content, c.Stop); err != nil {
		s.cbErr = err
		return true
	}
	return c.Stop
}

func (s *streamState) emit(text string, done bool) error {
	if s.onToken == nil || (text == "" && !done) {
		return nil
	}
	chunk := TokenChunk{Text: text, Index: s.index, Done: done}
	s.index++
	return s.onToken(chunk)
}

// finish delivers the terminal chunk for a stream that ended without stop.
func (s *streamState) finish() error {
	return s.emit("", true)
}
