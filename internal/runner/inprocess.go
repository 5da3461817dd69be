package runner

import "github.com/rs/zerolog"

// BackendLlamaInProcess is the backend tag of LlamaInProcess.
const BackendLlamaInProcess = "llama-inprocess"

// InProcessOptions configures the in-process llama runtime.
type InProcessOptions struct {
	CtxSize int
	Threads int
	Logger  zerolog.Logger
}
