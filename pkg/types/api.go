package types

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	// Model identifier from the registry.
	// example: local-7b
	Model string `json:"model" example:"local-7b"`
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Optional images; any image routes the request to multimodal generation.
	Images []Image `json:"images,omitempty"`
	// If true, stream results as NDJSON tokens.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Random seed for reproducibility; 0 or omitted lets the server choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// Image is one image input. Data is base64 in JSON.
type Image struct {
	Data     []byte `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Latency reports per-call timings.
type Latency struct {
	FirstTokenMs float64  `json:"first_token_latency_ms"`
	TotalMs      float64  `json:"total_latency_ms"`
	TokensPerSec *float64 `json:"tokens_per_sec,omitempty"`
}

// GenerateResponse is the non-streaming result of POST /generate and the
// payload of the final streamed line.
type GenerateResponse struct {
	Model    string         `json:"model"`
	Text     string         `json:"text"`
	Tokens   int            `json:"tokens"`
	Modality string         `json:"modality"`
	Latency  *Latency       `json:"latency,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	// Done is set on the final streamed line.
	Done bool `json:"done,omitempty"`
}

// TokenLine is one streamed NDJSON line.
type TokenLine struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// RunnerStatus summarizes a cached runner for /status.
type RunnerStatus struct {
	// ID of the model this runner serves.
	// example: local-7b
	ModelID string `json:"model_id" example:"local-7b"`
	// Backend discriminator.
	// example: llama.cpp-http
	Backend string `json:"backend" example:"llama.cpp-http"`
	// Whether the runner currently accepts generation calls.
	Ready bool `json:"ready"`
	// Last init failure recorded by the runner.
	LastError string `json:"last_error,omitempty"`
	// Supported modalities.
	Modalities []string `json:"modalities,omitempty"`
	// Server root for HTTP-backed runners.
	// example: http://127.0.0.1:8080
	Endpoint string `json:"endpoint,omitempty" example:"http://127.0.0.1:8080"`
	// Process ID of a spawned llama-server.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Registry document the manager reads.
	RegistryPath string `json:"registry_path"`
	// Number of registry entries currently loaded.
	// example: 3
	RegistrySize int `json:"registry_size" example:"3"`
	// Cached runners.
	Runners []RunnerStatus `json:"runners"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Runners successfully constructed and cached.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Runners that failed to become ready.
	// example: 1
	FailuresTotal uint64 `json:"failures_total" example:"1"`
	// Runners removed from the cache.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
