package manager

// Event represents a manager lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// Event names.
const (
	EventResolveStart       = "resolve_start"
	EventResolveUnknown     = "resolve_unknown"
	EventResolveUnsupported = "resolve_unsupported"
	EventRunnerReady        = "runner_ready"
	EventRunnerUnavailable  = "runner_unavailable"
	EventRunnerEvicted      = "runner_evicted"
	EventRunnerUnloaded     = "runner_unloaded"
	EventRegistryLoaded     = "registry_loaded"
)

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// emit publishes an event. Callers must not hold m.mu.
func (m *Manager) emit(name, id string, kv ...any) {
	e := Event{Name: name, ModelID: id}
	if len(kv) > 1 {
		e.Fields = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			if k, ok := kv[i].(string); ok {
				e.Fields[k] = kv[i+1]
			}
		}
	}
	m.mu.RLock()
	pub := m.pub
	m.mu.RUnlock()
	pub.Publish(e)
}
