package provider

import (
	"github.com/rs/zerolog/log"
)

// Constructor builds an adapter from runtime configuration. A zero
// Config must be safe: the registry constructs a throwaway instance to
// learn the adapter's self-reported name.
type Constructor func(Config) Adapter

// Registry tracks adapters in two phases: "known" (constructor
// registered) and "available" (configured with sufficient credentials).
// It is populated during startup and read-only afterwards, so no
// locking is needed beyond initialization ordering.
type Registry struct {
	known     map[string]Constructor
	available map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		known:     make(map[string]Constructor),
		available: make(map[string]Adapter),
	}
}

// Register adds a constructor to the known set, keyed by the adapter's
// self-reported name. Re-registering a name overwrites; last write
// wins, which lets tests swap in fakes.
func (r *Registry) Register(ctor Constructor) {
	name := ctor(Config{}).Name()
	r.known[name] = ctor
	log.Debug().Str("provider", name).Msg("registered provider")
}

// Configure constructs an adapter from cfg. If the adapter reports
// unavailable (missing credential or base URL), it returns nil and the
// provider stays absent from the available set; partial configuration
// is the expected steady state, never an error.
func (r *Registry) Configure(name string, cfg Config) Adapter {
	ctor, ok := r.known[name]
	if !ok {
		log.Warn().Str("provider", name).Msg("provider not known, skipping configure")
		return nil
	}
	adapter := ctor(cfg)
	if !adapter.IsAvailable() {
		log.Info().Str("provider", name).Msg("provider not available (missing configuration)")
		return nil
	}
	r.available[name] = adapter
	log.Info().Str("provider", name).Msg("provider configured")
	return adapter
}

// Lookup returns a configured, available adapter or nil.
func (r *Registry) Lookup(name string) Adapter {
	return r.available[name]
}

// Known lists every registered provider name.
func (r *Registry) Known() []string {
	names := make([]string, 0, len(r.known))
	for name := range r.known {
		names = append(names, name)
	}
	return names
}

// Available lists providers that configured successfully.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.available))
	for name := range r.available {
		names = append(names, name)
	}
	return names
}

// IsAvailable reports whether name is in the available set.
func (r *Registry) IsAvailable(name string) bool {
	_, ok := r.available[name]
	return ok
}
