package capability

import (
	"context"
	"sync"

	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/logger"
)

// entry holds one initialized (or failed) instance for a configuration key.
// The mutex gives single-flight semantics: the first caller initializes
// while later callers for the same key block on it and reuse the outcome.
type entry[T Provider] struct {
	mu          sync.Mutex
	initialized bool
	instance    T
	err         error

	// callMu serializes calls into the instance when the registry is
	// configured with serialized calls. Held via Acquire/Release around
	// each capability call, not for the instance's lifetime.
	callMu sync.Mutex
}

// Registry lazily creates and caches provider instances keyed by
// configuration (e.g. "base/cpu" for a model size + device pair).
type Registry[T Provider] struct {
	name    string
	factory Factory[T]
	log     *logger.Logger

	// serializeCalls treats each instance as an exclusively-owned resource
	// during a call. Set when the underlying inference engine is not safe
	// for concurrent invocation; exposed as a knob, not hard-coded.
	serializeCalls bool

	mu      sync.Mutex
	entries map[string]*entry[T]
}

// NewRegistry creates a registry for one capability. The name is used in
// logs and MODEL_LOAD_ERROR details. serializeCalls makes Acquire hand
// out instances under a per-instance mutex.
func NewRegistry[T Provider](name string, factory Factory[T], serializeCalls bool) *Registry[T] {
	return &Registry[T]{
		name:           name,
		factory:        factory,
		log:            logger.WithComponent("capability." + name),
		serializeCalls: serializeCalls,
		entries:        make(map[string]*entry[T]),
	}
}

// Get returns the instance for key, initializing it on first use.
// Concurrent callers for the same key block on a single initialization.
// A failed initialization is cached: every subsequent Get for that key
// returns the same MODEL_LOAD_ERROR without re-attempting the load.
func (r *Registry[T]) Get(ctx context.Context, key string) (T, error) {
	e := r.entryFor(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		r.log.Info("Loading capability", map[string]interface{}{
			"config_key": key,
		})
		inst, err := r.factory(ctx, key)
		if err != nil {
			e.err = errors.ModelLoad(r.name, key, err)
			r.log.Error("Capability load failed", map[string]interface{}{
				"config_key": key,
				"error":      err.Error(),
			})
		} else {
			e.instance = inst
			r.log.Info("Capability loaded", map[string]interface{}{
				"config_key": key,
				"backend":    inst.Name(),
			})
		}
		e.initialized = true
	}

	if e.err != nil {
		var zero T
		return zero, e.err
	}
	return e.instance, nil
}

// Acquire returns the instance for key together with a release function.
// When the registry serializes calls, the instance is exclusively held
// until release is invoked; otherwise release is a no-op. Callers must
// always invoke release.
func (r *Registry[T]) Acquire(ctx context.Context, key string) (T, func(), error) {
	inst, err := r.Get(ctx, key)
	if err != nil {
		var zero T
		return zero, func() {}, err
	}

	if !r.serializeCalls {
		return inst, func() {}, nil
	}

	e := r.entryFor(key)
	e.callMu.Lock()
	return inst, func() { e.callMu.Unlock() }, nil
}

// Loaded reports whether an instance for key has been successfully
// initialized. It never triggers initialization.
func (r *Registry[T]) Loaded(key string) bool {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized && e.err == nil
}

// Available probes the instance for key without forcing a load. It
// returns false for keys that were never requested or failed to load.
func (r *Registry[T]) Available(ctx context.Context, key string) bool {
	if !r.Loaded(key) {
		return false
	}
	inst, err := r.Get(ctx, key)
	if err != nil {
		return false
	}
	return inst.IsAvailable(ctx)
}

func (r *Registry[T]) entryFor(key string) *entry[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry[T]{}
		r.entries[key] = e
	}
	return e
}
