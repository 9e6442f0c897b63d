package notify

import "maps"

// Registry is a simple map-based SinkRegistry.
type Registry struct {
	sinks map[string]Sink
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]Sink),
	}
}

// Register adds a sink under the given name.
func (r *Registry) Register(name string, s Sink) {
	r.sinks[name] = s
}

// All returns a copy of the registered sinks.
func (r *Registry) All() map[string]Sink {
	return maps.Clone(r.sinks)
}
