package emit

// Emitter receives observability events from run execution.
//
// Implementations must be safe for concurrent use (multiple runs may emit at
// once), must not block run progress, and must not panic — a broken
// observability backend should never take a workflow down with it.
type Emitter interface {
	// Emit delivers one event. Errors are handled internally.
	Emit(event Event)
}
