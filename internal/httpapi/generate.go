package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelrunner/internal/runner"
	"modelrunner/pkg/types"
)

// generate serves POST /generate. With stream=true the response is NDJSON:
// one {"token","index"} line per chunk, then a final {"done":true,...} line.
// Errors raised before the first line keep their HTTP status; later errors
// are reported in the final line.
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	lvl := requestLogLevel(r)
	log := reqLogger(r).With().Str("model", req.Model).Logger()
	start := time.Now()
	if lvl >= LevelInfo {
		log.Info().Bool("stream", req.Stream).Int("images", len(req.Images)).Msg("generate start")
	}

	ctx, cancel := generateContext(r)
	defer cancel()

	rn, err := h.svc.Resolve(ctx, req.Model)
	if err != nil {
		h.fail(w, lvl, log, start, err)
		return
	}

	var sw *streamWriter
	var onToken runner.TokenFunc
	if req.Stream {
		sw = newStreamWriter(w, lvl >= LevelDebug, log)
		onToken = sw.token
	}
	res, err := run(ctx, rn, req, onToken)

	resp := toResponse(req.Model, res)
	switch {
	case err != nil && (sw == nil || !sw.started):
		if clientGone(r) {
			return
		}
		h.fail(w, lvl, log, start, err)
		return
	case err != nil:
		if resp.Meta == nil {
			resp.Meta = map[string]any{}
		}
		resp.Meta[runner.MetaError] = err.Error()
	}

	if sw != nil {
		resp.Done = true
		_ = sw.write(resp)
	} else {
		writeJSON(w, resp)
	}
	if lvl >= LevelInfo {
		log.Info().Int("status", http.StatusOK).Int("tokens", resp.Tokens).Dur("dur", time.Since(start)).AnErr("stream_err", err).Msg("generate end")
	}
}

func (h *handlers) fail(w http.ResponseWriter, lvl LogLevel, log zerolog.Logger, start time.Time, err error) {
	status := statusFor(err)
	writeJSONError(w, status, err.Error())
	switch {
	case status >= http.StatusInternalServerError && lvl >= LevelError:
		log.Error().Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("generate end")
	case lvl >= LevelInfo:
		log.Info().Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("generate end")
	}
}

// run dispatches to multimodal generation when images are present.
func run(ctx context.Context, rn runner.Runner, req types.GenerateRequest, onToken runner.TokenFunc) (runner.Result, error) {
	opts := runner.GenerateOptions{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		TopP:        req.TopP,
		Seed:        req.Seed,
		Stream:      req.Stream,
	}
	if len(req.Images) == 0 {
		return rn.GenerateText(ctx, runner.TextRequest{Prompt: req.Prompt, Options: opts}, onToken)
	}
	images := make([]runner.ImageInput, len(req.Images))
	for i, im := range req.Images {
		images[i] = runner.ImageInput{Data: im.Data, URI: im.URI, MIMEType: im.MIMEType}
	}
	return rn.GenerateMultimodal(ctx, runner.MultimodalRequest{Prompt: req.Prompt, Images: images, Options: opts}, onToken)
}

func toResponse(model string, res runner.Result) types.GenerateResponse {
	out := types.GenerateResponse{
		Model:    model,
		Text:     res.Text,
		Tokens:   res.Tokens,
		Modality: string(res.Modality),
		Meta:     res.Meta,
	}
	if l := res.Latency; l != nil {
		out.Latency = &types.Latency{FirstTokenMs: l.FirstTokenMs, TotalMs: l.TotalMs, TokensPerSec: l.TokensPerSec}
	}
	return out
}

// streamWriter emits NDJSON lines, committing the 200 status on the first one.
type streamWriter struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
	started bool
	trace   *tokenLogger
}

func newStreamWriter(w http.ResponseWriter, debug bool, log zerolog.Logger) *streamWriter {
	s := &streamWriter{w: w, enc: json.NewEncoder(w)}
	s.flusher, _ = w.(http.Flusher)
	if debug {
		s.trace = &tokenLogger{log: log}
	}
	return s
}

// token forwards one chunk. The runner's terminal empty chunk is folded into
// the final done line.
func (s *streamWriter) token(c runner.TokenChunk) error {
	if c.Done && c.Text == "" {
		return nil
	}
	return s.write(types.TokenLine{Token: c.Text, Index: c.Index})
}

func (s *streamWriter) write(v any) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "application/x-ndjson")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if s.trace != nil {
		if b, err := json.Marshal(v); err == nil {
			s.trace.line(b)
		}
	}
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
