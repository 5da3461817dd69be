package runner

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// base carries the state every backend shares: identity, fixed
// capabilities, readiness and the last init failure.
type base struct {
	id      string
	backend string
	caps    Capabilities
	log     zerolog.Logger

	ready atomic.Bool

	mu      sync.Mutex
	lastErr error
}

func (b *base) setup(backend string, caps Capabilities, log zerolog.Logger) {
	b.id = caps.ID
	b.backend = backend
	b.caps = caps.clone()
	b.log = log.With().Str("runner", caps.ID).Str("backend", backend).Logger()
}

func (b *base) ID() string      { return b.id }
func (b *base) Backend() string { return b.backend }

func (b *base) Capabilities() Capabilities { return b.caps.clone() }

func (b *base) Supports(m Modality) bool { return b.caps.Supports(m) }

func (b *base) Ready() bool { return b.ready.Load() }

func (b *base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *base) setErr(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
}

// markReady records a successful init.
func (b *base) markReady() {
	b.setErr(nil)
	b.ready.Store(true)
}

// markFailed records a failed init and leaves the runner unready.
func (b *base) markFailed(err error) {
	b.ready.Store(false)
	b.setErr(err)
	b.log.Warn().Err(err).Msg("runner event=init_failed")
}

func (b *base) clearReady() { b.ready.Store(false) }

func (b *base) checkReady() error {
	if !b.ready.Load() {
		return ErrNotReady(b.id)
	}
	return nil
}

// checkModality is evaluated before readiness so an unsupported modality
// fails the same way whether or not the runner is initialized.
func (b *base) checkModality(m Modality) error {
	if !b.caps.Supports(m) {
		return ErrNotSupported(b.id, string(m))
	}
	return nil
}
