package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "MODELRUNNER_"

// LoadEnvFile loads KEY=VALUE files into the process environment. The first
// definition of a key wins, both inside one file and across files, and
// variables already set are never overwritten. Missing files are skipped.
func LoadEnvFile(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
		vals, err := parseFirstWins(data)
		if err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
		for k, v := range vals {
			if _, set := os.LookupEnv(k); set {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return fmt.Errorf("load env file %s: %w", p, err)
			}
		}
	}
	return nil
}

// parseFirstWins decodes a dotenv document keeping the first value of every
// key. godotenv keeps the last one, so the document is parsed line prefix by
// line prefix and a key is recorded the first time a prefix parses with it.
// Prefixes that end inside a quoted multi-line value fail to parse and are
// skipped until the quote closes.
func parseFirstWins(data []byte) (map[string]string, error) {
	if _, err := godotenv.UnmarshalBytes(data); err != nil {
		return nil, err
	}
	vals := map[string]string{}
	end := 0
	for _, ln := range bytes.SplitAfter(data, []byte("\n")) {
		end += len(ln)
		m, err := godotenv.UnmarshalBytes(data[:end])
		if err != nil {
			continue
		}
		for k, v := range m {
			if _, seen := vals[k]; !seen {
				vals[k] = v
			}
		}
	}
	return vals, nil
}

// FromEnv reads MODELRUNNER_* variables through getenv. Unset variables stay
// zero so the result can be overlaid on other sources.
func FromEnv(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	var (
		c    Config
		errs []error
	)
	str := func(key string, dst *string) { *dst = getenv(EnvPrefix + key) }
	num := func(key string, dst *int) {
		v := getenv(EnvPrefix + key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
	str("ADDR", &c.Addr)
	str("REGISTRY_PATH", &c.RegistryPath)
	str("MODELS_DIR", &c.ModelsDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	num("PROBE_TIMEOUT_MS", &c.ProbeTimeoutMs)
	str("LLAMA_BIN", &c.LlamaBin)
	str("LLAMA_HOST", &c.LlamaHost)
	num("LLAMA_PORT_START", &c.LlamaPortStart)
	num("LLAMA_PORT_END", &c.LlamaPortEnd)
	num("LLAMA_CTX", &c.LlamaCtx)
	num("LLAMA_THREADS", &c.LlamaThreads)
	num("LLAMA_NGL", &c.LlamaNGL)
	str("NATS_URL", &c.NATSURL)
	str("NATS_SUBJECT_PREFIX", &c.NATSSubjectPrefix)
	c.CORSOrigins = SplitCSV(getenv(EnvPrefix + "CORS_ORIGINS"))
	if v := getenv(EnvPrefix + "GENERATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sGENERATE_RPS: %w", EnvPrefix, err))
		} else {
			c.GenerateRPS = f
		}
	}
	num("GENERATE_BURST", &c.GenerateBurst)
	num("GENERATE_TIMEOUT_SEC", &c.GenerateTimeoutSec)
	str("REQUEST_LOG", &c.RequestLog)
	str("ENV_FILE", &c.EnvFile)
	return c, errors.Join(errs...)
}
