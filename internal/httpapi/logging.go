package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "httpapi").Logger() }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("MODELRUNNER_REQUEST_LOG"))

// SetDefaultRequestLogLevel overrides the level used when a request carries no override.
func SetDefaultRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// reqLogger returns a logger tagged with the chi request id.
func reqLogger(r *http.Request) zerolog.Logger {
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		return zlog.With().Str("request_id", rid).Logger()
	}
	return zlog
}

// tokenLogger logs each streamed NDJSON line at debug level.
type tokenLogger struct {
	log zerolog.Logger
}

func (t tokenLogger) line(b []byte) {
	t.log.Debug().Bytes("line", b).Msg("generate>")
}
