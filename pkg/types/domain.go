package types

// Model describes a registry entry as served by GET /models.
type Model struct {
	// Stable identifier for the model.
	// example: local-7b
	ID string `json:"id" example:"local-7b"`
	// Backend discriminator.
	// example: llama.cpp-http
	Backend string `json:"backend" example:"llama.cpp-http"`
	// Backend lineage name.
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	// Parameter count in billions.
	// example: 7
	ParamsB *float64 `json:"params_b,omitempty" example:"7"`
	// Supported modalities.
	// example: ["text"]
	Modalities []string `json:"modalities" example:"[\"text\"]"`
	// Quantization labels, in registry order.
	// example: ["Q4_K_M"]
	Quantization []string `json:"quantization,omitempty" example:"[\"Q4_K_M\"]"`
	// Serving endpoint for HTTP backends.
	// example: http://127.0.0.1:8080
	Endpoint string `json:"endpoint,omitempty" example:"http://127.0.0.1:8080"`
	// Artifact path for local backends.
	// example: /models/llama-7b.Q4_K_M.gguf
	Path string `json:"path,omitempty" example:"/models/llama-7b.Q4_K_M.gguf"`
	// Optional license string.
	License string `json:"license,omitempty"`
	// Whether a runner for this model is cached, and whether it is ready.
	Loaded bool `json:"loaded"`
	Ready  bool `json:"ready"`
}
