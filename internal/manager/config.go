package manager

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelrunner/internal/registry"
	"modelrunner/internal/runner"
)

// Config holds Manager settings. The zero value reads DefaultPath with the
// default probe timeout and the built-in factories.
type Config struct {
	// RegistryPath is the JSON registry document.
	RegistryPath string
	// ModelsDir, when set, is scanned for *.gguf files; entries found there
	// are added under ScanBackend unless the registry already names the id.
	ModelsDir   string
	ScanBackend BackendKind

	ProbeTimeout time.Duration
	Spawn        runner.SpawnOptions
	InProcess    runner.InProcessOptions

	Publisher EventPublisher
	Logger    zerolog.Logger
	// Factories overrides or extends the built-in kind → constructor table.
	Factories map[BackendKind]Factory
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.RegistryPath) == "" {
		c.RegistryPath = registry.DefaultPath
	}
	if c.ScanBackend == "" {
		c.ScanBackend = KindLlamaSpawn
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = runner.DefaultProbeTimeout
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	return c
}
