package registry

import (
	"strings"

	"modelrunner/internal/runner"
)

// DefaultPath is the registry document read when no path is configured.
const DefaultPath = "model_registry.json"

// Entry describes one model the runtime manager can construct a runner for.
type Entry struct {
	ID string `json:"id"`
	// Backend discriminator, e.g. "llama.cpp-http" or "synthetic".
	Backend string `json:"backend,omitempty"`
	// Parameter count in billions.
	ParamsB      *float64    `json:"params_b,omitempty"`
	Family       string      `json:"family,omitempty"`
	Artifact     *Artifact   `json:"artifact,omitempty"`
	Modalities   *Modalities `json:"modalities,omitempty"`
	Serving      *Serving    `json:"serving,omitempty"`
	Quantization []string    `json:"quantization,omitempty"`
	License      string      `json:"license,omitempty"`
	Tokenizer    string      `json:"tokenizer,omitempty"`
	Authenticity string      `json:"authenticity,omitempty"`
}

// Artifact locates model weights.
type Artifact struct {
	Path   string `json:"path,omitempty"`
	URI    string `json:"uri,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// Modalities are optional flags; nil means unspecified.
type Modalities struct {
	Text   *bool `json:"text,omitempty"`
	Vision *bool `json:"vision,omitempty"`
	Audio  *bool `json:"audio,omitempty"`
}

// Serving describes where an already-running server listens.
type Serving struct {
	Endpoint string `json:"endpoint,omitempty"`
	// Name of an environment variable holding a bearer token.
	APIKeyEnv string `json:"api_key_env,omitempty"`
}

// Endpoint returns the serving endpoint or "".
func (e Entry) Endpoint() string {
	if e.Serving == nil {
		return ""
	}
	return strings.TrimSpace(e.Serving.Endpoint)
}

// ArtifactPath returns the artifact path or "".
func (e Entry) ArtifactPath() string {
	if e.Artifact == nil {
		return ""
	}
	return e.Artifact.Path
}

// Capabilities maps the entry onto the runner capability description.
// Text defaults to true when modalities are unspecified.
func (e Entry) Capabilities() runner.Capabilities {
	c := runner.Capabilities{
		ID:            e.ID,
		Family:        e.Family,
		Text:          true,
		Quantizations: append([]string(nil), e.Quantization...),
		License:       e.License,
		Authenticity:  e.Authenticity,
		Tokenizer:     e.Tokenizer,
	}
	if e.ParamsB != nil {
		v := *e.ParamsB
		c.ParamsB = &v
	}
	if m := e.Modalities; m != nil {
		c.Text = flag(m.Text, true)
		c.Vision = flag(m.Vision, false)
		c.Audio = flag(m.Audio, false)
	}
	if c.Family == "" {
		c.Family = familyOf(e.Backend)
	}
	return c
}

func flag(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// familyOf derives a lineage name from the backend tag.
func familyOf(backend string) string {
	b := strings.ToLower(strings.TrimSpace(backend))
	switch {
	case strings.HasPrefix(b, "llama"):
		return "llama"
	case b == "":
		return ""
	default:
		return b
	}
}
