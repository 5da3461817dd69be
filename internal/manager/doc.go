// Package manager turns model ids into ready runners. It owns the registry
// snapshot and a cache holding at most one ready runner per id:
//
//   - kinds.go: BackendKind enum and the kind → factory table.
//   - config.go: Config and defaults.
//   - manager.go: Manager, registry loading and lookups.
//   - resolve.go: Resolve/GetRunner, the lazy construct-init-cache path.
//   - unload.go: Evict, Unload and Close.
//   - status.go: Status reporting for /status.
//   - errors.go: reason errors (IsModelUnknown, IsBackendUnsupported, IsRunnerUnavailable).
//   - events.go, eventpub_*.go: lifecycle events and publishers.
//
// Lookup failures are reported as reason errors by Resolve and collapsed to
// an absence flag by GetRunner; neither panics.
package manager
