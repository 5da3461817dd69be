package manager

import (
	"modelrunner/internal/runner"
)

// Evict removes the runner for id from the cache without unloading it and
// reports whether one was cached. The next Resolve builds a fresh runner.
func (m *Manager) Evict(id string) bool {
	m.mu.Lock()
	_, ok := m.runners[id]
	if ok {
		delete(m.runners, id)
		m.evictions++
		evictionsTotal.Inc()
		cachedRunners.Set(float64(len(m.runners)))
	}
	m.mu.Unlock()
	if ok {
		m.emit(EventRunnerEvicted, id, "reason", "evict")
	}
	return ok
}

// evictIf removes id only while it still maps to r.
func (m *Manager) evictIf(id string, r runner.Runner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.runners[id]; !ok || cur != r {
		return false
	}
	delete(m.runners, id)
	m.evictions++
	evictionsTotal.Inc()
	cachedRunners.Set(float64(len(m.runners)))
	return true
}

// Unload evicts the runner for id and releases its resources. It returns
// ErrModelUnknown when nothing is cached under id.
func (m *Manager) Unload(id string) error {
	r, ok := m.Cached(id)
	if !ok || !m.evictIf(id, r) {
		return ErrModelUnknown(id)
	}
	err := r.Unload()
	if err != nil {
		m.setLastErr(err)
		m.log.Warn().Err(err).Str("model", id).Msg("manager event=unload_failed")
	} else {
		m.log.Info().Str("model", id).Msg("manager event=runner_unloaded")
	}
	m.emit(EventRunnerUnloaded, id, "error", errString(err))
	return err
}

// Close unloads every cached runner. The manager stays usable afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	runners := m.runners
	m.runners = make(map[string]runner.Runner)
	cachedRunners.Set(0)
	m.mu.Unlock()

	var first error
	for id, r := range runners {
		if err := r.Unload(); err != nil && first == nil {
			first = err
		}
		m.emit(EventRunnerUnloaded, id, "reason", "close")
	}
	return first
}
