package manager

import (
	"context"
	"errors"
	"time"

	"modelrunner/internal/runner"
)

// GetRunner returns a ready runner for id, or false when the model is
// unknown, its backend is unsupported, or the runner failed to initialize.
func (m *Manager) GetRunner(ctx context.Context, id string) (runner.Runner, bool) {
	r, err := m.Resolve(ctx, id)
	if err != nil {
		return nil, false
	}
	return r, true
}

// Resolve returns the cached runner for id, or constructs, initializes and
// caches a new one. Only ready runners are cached. A cached runner that is
// no longer ready is evicted and rebuilt.
func (m *Manager) Resolve(ctx context.Context, id string) (runner.Runner, error) {
	if r, ok := m.Cached(id); ok {
		if r.Ready() {
			return r, nil
		}
		m.dropStale(id, r)
	}

	m.emit(EventResolveStart, id)
	m.ensureRegistry()

	entry, ok := m.Entry(id)
	if !ok {
		m.log.Debug().Str("model", id).Msg("manager event=resolve_unknown")
		m.emit(EventResolveUnknown, id)
		return nil, ErrModelUnknown(id)
	}
	kind, ok := ParseBackendKind(entry.Backend)
	var factory Factory
	if ok {
		factory, ok = m.factories[kind]
	}
	if !ok {
		m.log.Warn().Str("model", id).Str("backend", entry.Backend).Msg("manager event=resolve_unsupported")
		m.emit(EventResolveUnsupported, id, "backend", entry.Backend)
		return nil, ErrBackendUnsupported(id, entry.Backend)
	}

	r, err := factory(entry, m.cfg)
	if err == nil && r == nil {
		err = errors.New("factory returned no runner")
	}
	if err != nil {
		runnerLoadsTotal.WithLabelValues(kind.String(), loadError).Inc()
		return nil, m.unavailable(id, kind, err)
	}

	start := time.Now()
	r.Init(ctx)
	if !r.Ready() {
		runnerLoadsTotal.WithLabelValues(kind.String(), loadUnavailable).Inc()
		cause := r.LastError()
		_ = r.Unload()
		return nil, m.unavailable(id, kind, cause)
	}
	runnerLoadsTotal.WithLabelValues(kind.String(), loadReady).Inc()
	return m.store(id, kind, r, time.Since(start)), nil
}

func (m *Manager) unavailable(id string, kind BackendKind, cause error) error {
	err := ErrRunnerUnavailable(id, cause)
	m.mu.Lock()
	m.failures++
	m.lastErr = err.Error()
	m.mu.Unlock()
	m.log.Warn().Err(cause).Str("model", id).Str("backend", kind.String()).Msg("manager event=runner_unavailable")
	m.emit(EventRunnerUnavailable, id, "backend", kind.String(), "error", errString(cause))
	return err
}

// store caches r unless another caller cached a ready runner for id first,
// in which case r is unloaded and the cached one wins. A cached runner that
// is no longer ready is replaced and unloaded.
func (m *Manager) store(id string, kind BackendKind, r runner.Runner, dur time.Duration) runner.Runner {
	m.mu.Lock()
	cur, ok := m.runners[id]
	if ok && cur.Ready() {
		m.mu.Unlock()
		m.log.Debug().Str("model", id).Msg("manager event=resolve_duplicate")
		_ = r.Unload()
		return cur
	}
	if ok {
		m.evictions++
		evictionsTotal.Inc()
	}
	m.runners[id] = r
	m.loads++
	cachedRunners.Set(float64(len(m.runners)))
	m.mu.Unlock()
	if ok {
		_ = cur.Unload()
		m.log.Info().Str("model", id).Msg("manager event=runner_evicted reason=not_ready")
		m.emit(EventRunnerEvicted, id, "reason", "not_ready")
	}
	m.log.Info().Str("model", id).Str("backend", kind.String()).Dur("dur", dur).Msg("manager event=runner_ready")
	m.emit(EventRunnerReady, id, "backend", kind.String(), "duration_ms", dur.Milliseconds())
	return r
}

// dropStale evicts r if it is still the cached runner for id.
func (m *Manager) dropStale(id string, r runner.Runner) {
	if !m.evictIf(id, r) {
		return
	}
	_ = r.Unload()
	m.log.Info().Str("model", id).Msg("manager event=runner_evicted reason=not_ready")
	m.emit(EventRunnerEvicted, id, "reason", "not_ready")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
