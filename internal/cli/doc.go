// Package cli implements the modelrunner command tree: serve runs the HTTP
// API, generate/models/probe work against the registry and backends
// directly. Settings come from defaults, an optional config file,
// MODELRUNNER_* variables and flags, in increasing precedence.
package cli
