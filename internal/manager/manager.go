package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelrunner/internal/registry"
	"modelrunner/internal/runner"
)

// Manager resolves model ids to ready runners. The zero value is not usable;
// construct with New or NewWithEntries.
type Manager struct {
	cfg       Config
	log       zerolog.Logger
	pub       EventPublisher
	factories map[BackendKind]Factory
	started   time.Time

	mu      sync.RWMutex
	entries []registry.Entry
	runners map[string]runner.Runner
	lastErr string

	loads     uint64
	failures  uint64
	evictions uint64
}

// New returns a manager that reads the registry lazily on first lookup.
func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "manager").Logger(),
		pub:       cfg.Publisher,
		factories: defaultFactories(),
		started:   time.Now(),
		runners:   make(map[string]runner.Runner),
	}
	for k, f := range cfg.Factories {
		if f == nil {
			delete(m.factories, k)
			continue
		}
		m.factories[k] = f
	}
	return m
}

// NewWithEntries returns a manager with a pre-loaded registry.
func NewWithEntries(entries []registry.Entry, cfg Config) *Manager {
	m := New(cfg)
	m.entries = append([]registry.Entry(nil), entries...)
	return m
}

// SetEventPublisher replaces the event sink. nil restores the no-op publisher.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.pub = p
	m.mu.Unlock()
}

// LoadRegistry re-reads the registry document, merging in models found in
// ModelsDir, and replaces the in-memory entries. A missing or malformed
// document yields an empty registry. It returns the number of entries.
func (m *Manager) LoadRegistry() int {
	entries := registry.LoadOrEmpty(m.cfg.RegistryPath, m.log)
	if m.cfg.ModelsDir != "" {
		scanned, err := registry.ScanGGUF(m.cfg.ModelsDir, m.cfg.ScanBackend.String())
		if err != nil {
			m.log.Warn().Err(err).Str("dir", m.cfg.ModelsDir).Msg("manager event=scan_failed")
		} else {
			entries = registry.Merge(entries, scanned)
		}
	}
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	m.log.Info().Str("path", m.cfg.RegistryPath).Int("models", len(entries)).Msg("manager event=registry_loaded")
	m.emit(EventRegistryLoaded, "", "path", m.cfg.RegistryPath, "models", len(entries))
	return len(entries)
}

// ensureRegistry loads the registry when the in-memory copy is empty.
func (m *Manager) ensureRegistry() {
	m.mu.RLock()
	empty := len(m.entries) == 0
	m.mu.RUnlock()
	if empty {
		m.LoadRegistry()
	}
}

// Entry returns the registry entry for id.
func (m *Manager) Entry(id string) (registry.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return registry.Find(m.entries, id)
}

// Entries returns a copy of the registry.
func (m *Manager) Entries() []registry.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]registry.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Cached returns the cached runner for id without constructing one.
func (m *Manager) Cached(id string) (runner.Runner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[id]
	return r, ok
}

// Ready reports whether the manager can serve anything: the registry is
// non-empty or at least one cached runner is ready.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) > 0 {
		return true
	}
	for _, r := range m.runners {
		if r.Ready() {
			return true
		}
	}
	return false
}

func (m *Manager) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}
