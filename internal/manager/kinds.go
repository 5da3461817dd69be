package manager

import (
	"os"
	"strings"

	"modelrunner/internal/registry"
	"modelrunner/internal/runner"
)

// BackendKind is the closed set of backends a registry entry may name.
type BackendKind string

const (
	KindLlamaHTTP      BackendKind = runner.BackendLlamaHTTP
	KindLlamaSpawn     BackendKind = runner.BackendLlamaSpawn
	KindLlamaInProcess BackendKind = runner.BackendLlamaInProcess
	KindSynthetic      BackendKind = runner.BackendSynthetic
)

// Kinds lists every known backend kind.
func Kinds() []BackendKind {
	return []BackendKind{KindLlamaHTTP, KindLlamaSpawn, KindLlamaInProcess, KindSynthetic}
}

// ParseBackendKind normalizes s and reports whether it names a known kind.
func ParseBackendKind(s string) (BackendKind, bool) {
	k := BackendKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, true
		}
	}
	return "", false
}

func (k BackendKind) String() string { return string(k) }

// Factory constructs an unready runner for entry. It must not perform I/O;
// the manager calls Init afterwards.
type Factory func(entry registry.Entry, cfg Config) (runner.Runner, error)

func defaultFactories() map[BackendKind]Factory {
	return map[BackendKind]Factory{
		KindLlamaHTTP:      newLlamaHTTP,
		KindLlamaSpawn:     newLlamaSpawn,
		KindLlamaInProcess: newLlamaInProcess,
		KindSynthetic:      newSynthetic,
	}
}

func newLlamaHTTP(e registry.Entry, cfg Config) (runner.Runner, error) {
	var apiKey string
	if e.Serving != nil && e.Serving.APIKeyEnv != "" {
		apiKey = os.Getenv(e.Serving.APIKeyEnv)
	}
	return runner.NewLlamaHTTP(e.Capabilities(), runner.HTTPOptions{
		BaseURL:      e.Endpoint(),
		APIKey:       apiKey,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       cfg.Logger,
	}), nil
}

func newLlamaSpawn(e registry.Entry, cfg Config) (runner.Runner, error) {
	opts := cfg.Spawn
	opts.Logger = cfg.Logger
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = cfg.ProbeTimeout
	}
	return runner.NewLlamaSpawn(e.Capabilities(), e.ArtifactPath(), opts), nil
}

func newLlamaInProcess(e registry.Entry, cfg Config) (runner.Runner, error) {
	opts := cfg.InProcess
	opts.Logger = cfg.Logger
	return runner.NewLlamaInProcess(e.Capabilities(), e.ArtifactPath(), opts), nil
}

func newSynthetic(e registry.Entry, cfg Config) (runner.Runner, error) {
	return runner.NewSynthetic(e.Capabilities(), cfg.Logger), nil
}
