package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified"; Defaults supplies the fallbacks.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	RegistryPath string `json:"registry_path" yaml:"registry_path" toml:"registry_path"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat    string `json:"log_format" yaml:"log_format" toml:"log_format"`

	ProbeTimeoutMs int `json:"probe_timeout_ms" yaml:"probe_timeout_ms" toml:"probe_timeout_ms"`

	LlamaBin       string `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamaHost      string `json:"llama_host" yaml:"llama_host" toml:"llama_host"`
	LlamaPortStart int    `json:"llama_port_start" yaml:"llama_port_start" toml:"llama_port_start"`
	LlamaPortEnd   int    `json:"llama_port_end" yaml:"llama_port_end" toml:"llama_port_end"`
	LlamaCtx       int    `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads   int    `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaNGL       int    `json:"llama_ngl" yaml:"llama_ngl" toml:"llama_ngl"`

	NATSURL           string `json:"nats_url" yaml:"nats_url" toml:"nats_url"`
	NATSSubjectPrefix string `json:"nats_subject_prefix" yaml:"nats_subject_prefix" toml:"nats_subject_prefix"`

	CORSOrigins        []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	GenerateRPS        float64  `json:"generate_rps" yaml:"generate_rps" toml:"generate_rps"`
	GenerateBurst      int      `json:"generate_burst" yaml:"generate_burst" toml:"generate_burst"`
	GenerateTimeoutSec int      `json:"generate_timeout_sec" yaml:"generate_timeout_sec" toml:"generate_timeout_sec"`

	// RequestLog is the per-request log level: off, error, info or debug.
	RequestLog string `json:"request_log" yaml:"request_log" toml:"request_log"`

	EnvFile string `json:"env_file" yaml:"env_file" toml:"env_file"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Addr:           ":8080",
		RegistryPath:   "model_registry.json",
		LogLevel:       "info",
		LogFormat:      "console",
		ProbeTimeoutMs: 2500,
		LlamaBin:       "llama-server",
		LlamaHost:      "127.0.0.1",
		LlamaPortStart: 31000,
		LlamaPortEnd:   31999,
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Overlay copies every non-zero field of o onto c.
func (c *Config) Overlay(o Config) {
	setStr(&c.Addr, o.Addr)
	setStr(&c.RegistryPath, o.RegistryPath)
	setStr(&c.ModelsDir, o.ModelsDir)
	setStr(&c.LogLevel, o.LogLevel)
	setStr(&c.LogFormat, o.LogFormat)
	setInt(&c.ProbeTimeoutMs, o.ProbeTimeoutMs)
	setStr(&c.LlamaBin, o.LlamaBin)
	setStr(&c.LlamaHost, o.LlamaHost)
	setInt(&c.LlamaPortStart, o.LlamaPortStart)
	setInt(&c.LlamaPortEnd, o.LlamaPortEnd)
	setInt(&c.LlamaCtx, o.LlamaCtx)
	setInt(&c.LlamaThreads, o.LlamaThreads)
	setInt(&c.LlamaNGL, o.LlamaNGL)
	setStr(&c.NATSURL, o.NATSURL)
	setStr(&c.NATSSubjectPrefix, o.NATSSubjectPrefix)
	if len(o.CORSOrigins) > 0 {
		c.CORSOrigins = append([]string(nil), o.CORSOrigins...)
	}
	if o.GenerateRPS != 0 {
		c.GenerateRPS = o.GenerateRPS
	}
	setInt(&c.GenerateBurst, o.GenerateBurst)
	setInt(&c.GenerateTimeoutSec, o.GenerateTimeoutSec)
	setStr(&c.RequestLog, o.RequestLog)
	setStr(&c.EnvFile, o.EnvFile)
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empties.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
