package params

import (
	"fmt"
	"log/slog"
	"sync"

	"tacklens/engine/storage"
)

// ChangeListener receives the delta of a parameter mutation: changed keys
// mapped to their new values. Listeners run synchronously on the mutating
// goroutine and must be fast.
type ChangeListener func(changed map[string]any)

// Registry holds parameter definitions, their current values, and presets.
// Safe for concurrent use; readers observe consistent snapshots.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	values      map[string]any
	presets     map[string]*Preset

	listenersMu sync.RWMutex
	listeners   []ChangeListener

	store     storage.Storage
	keyPrefix string
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithStorage attaches a persistence backend used by Save/Load.
func WithStorage(s storage.Storage) Option {
	return func(r *Registry) { r.store = s }
}

// WithKeyPrefix overrides the storage key prefix (default "params_").
func WithKeyPrefix(prefix string) Option {
	return func(r *Registry) { r.keyPrefix = prefix }
}

// WithLogger routes registry diagnostics to the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns a registry pre-populated with the default parameter
// set for all six namespaces and the default presets for wind estimation,
// strategy detection and performance analysis.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		definitions: make(map[string]Definition),
		values:      make(map[string]any),
		presets:     make(map[string]*Preset),
		keyPrefix:   "params_",
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	registerDefaults(r)
	return r
}

// Register inserts or replaces a definition. A pre-existing current value
// for the key is kept; otherwise the default becomes the current value.
// Registration fails when the default does not satisfy the definition's
// own constraints.
func (r *Registry) Register(d Definition) error {
	if err := validateDefinition(d); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[d.Key]; exists {
		r.logger.Warn("parameter already registered, replacing definition", "key", d.Key)
	}
	r.definitions[d.Key] = d
	if _, ok := r.values[d.Key]; !ok {
		r.values[d.Key] = d.Normalize(d.Default)
	}
	return nil
}

// Definition returns the registered definition for key.
func (r *Registry) Definition(key string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.definitions[key]
	return d, ok
}

// Definitions returns all definitions in a namespace, or all definitions
// when ns is empty.
func (r *Registry) Definitions(ns Namespace) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.definitions))
	for _, d := range r.definitions {
		if ns == "" || d.Namespace == ns {
			out = append(out, d)
		}
	}
	return out
}

// Set validates and stores a new current value. Returns
// ErrUnknownParameter or ErrInvalidValue on rejection; a successful Set
// that changes the value notifies listeners with a single-entry delta.
func (r *Registry) Set(key string, value any) error {
	changed, err := r.setOne(key, value)
	if err != nil {
		return err
	}
	if changed != nil {
		r.notify(changed)
	}
	return nil
}

// SetMany applies a batch of values. Invalid entries are reported in the
// returned map (key → error, nil on success); all successful changes are
// delivered to listeners as one batched notification.
func (r *Registry) SetMany(values map[string]any) map[string]error {
	results := make(map[string]error, len(values))
	batch := make(map[string]any)
	for key, value := range values {
		changed, err := r.setOne(key, value)
		results[key] = err
		if err == nil && changed != nil {
			batch[key] = changed[key]
		}
	}
	if len(batch) > 0 {
		r.notify(batch)
	}
	return results
}

// setOne performs a single validated mutation under the lock and returns
// the delta when the stored value actually changed.
func (r *Registry) setOne(key string, value any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.definitions[key]
	if !ok {
		r.logger.Warn("set of unregistered parameter ignored", "key", key)
		return nil, fmt.Errorf("%w: %q", ErrUnknownParameter, key)
	}
	if !d.Validate(value) {
		return nil, fmt.Errorf("%w: %q = %v", ErrInvalidValue, key, value)
	}
	norm := d.Normalize(value)
	if valuesEqual(r.values[key], norm) {
		return nil, nil
	}
	r.values[key] = norm
	return map[string]any{key: norm}, nil
}

// Get returns the current value, or def when the key is unregistered.
func (r *Registry) Get(key string, def any) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.values[key]; ok {
		return v
	}
	return def
}

// GetFloat returns the current value coerced to float64, or def.
func (r *Registry) GetFloat(key string, def float64) float64 {
	if f, ok := asFloat(r.Get(key, nil)); ok {
		return f
	}
	return def
}

// GetInt returns the current value coerced to int, or def.
func (r *Registry) GetInt(key string, def int) int {
	if n, ok := asInt(r.Get(key, nil)); ok {
		return int(n)
	}
	return def
}

// GetBool returns the current value as bool, or def.
func (r *Registry) GetBool(key string, def bool) bool {
	if b, ok := r.Get(key, nil).(bool); ok {
		return b
	}
	return def
}

// GetString returns the current value as string, or def.
func (r *Registry) GetString(key string, def string) string {
	if s, ok := r.Get(key, nil).(string); ok {
		return s
	}
	return def
}

// ByNamespace returns a snapshot of current values in the namespace.
func (r *Registry) ByNamespace(ns Namespace) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any)
	for key, d := range r.definitions {
		if d.Namespace == ns {
			out[key] = r.values[key]
		}
	}
	return out
}

// All returns a snapshot of every current value.
func (r *Registry) All() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.values))
	for key, v := range r.values {
		out[key] = v
	}
	return out
}

// Reset restores a single parameter to its default.
func (r *Registry) Reset(key string) error {
	r.mu.Lock()
	d, ok := r.definitions[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownParameter, key)
	}
	def := d.Normalize(d.Default)
	changed := !valuesEqual(r.values[key], def)
	r.values[key] = def
	r.mu.Unlock()
	if changed {
		r.notify(map[string]any{key: def})
	}
	return nil
}

// ResetNamespace restores every parameter in the namespace to defaults and
// notifies listeners once with the full delta.
func (r *Registry) ResetNamespace(ns Namespace) {
	r.mu.Lock()
	batch := make(map[string]any)
	for key, d := range r.definitions {
		if d.Namespace != ns {
			continue
		}
		def := d.Normalize(d.Default)
		if !valuesEqual(r.values[key], def) {
			r.values[key] = def
			batch[key] = def
		}
	}
	r.mu.Unlock()
	if len(batch) > 0 {
		r.notify(batch)
	}
}

// ResetAll restores every parameter to its default.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	batch := make(map[string]any)
	for key, d := range r.definitions {
		def := d.Normalize(d.Default)
		if !valuesEqual(r.values[key], def) {
			r.values[key] = def
			batch[key] = def
		}
	}
	r.mu.Unlock()
	if len(batch) > 0 {
		r.notify(batch)
	}
}

// AddPreset inserts or replaces a preset.
func (r *Registry) AddPreset(p *Preset) {
	if p == nil || p.ID == "" {
		return
	}
	r.mu.Lock()
	if _, exists := r.presets[p.ID]; exists {
		r.logger.Warn("preset already exists, replacing", "preset_id", p.ID)
	}
	r.presets[p.ID] = p.Clone()
	r.mu.Unlock()
}

// Preset returns a copy of the preset with the given ID.
func (r *Registry) Preset(id string) (*Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// DeletePreset removes a preset; reports whether it existed.
func (r *Registry) DeletePreset(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.presets[id]; !ok {
		return false
	}
	delete(r.presets, id)
	return true
}

// Presets returns copies of the presets in a namespace, or all presets
// when ns is empty.
func (r *Registry) Presets(ns Namespace) []*Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Preset, 0, len(r.presets))
	for _, p := range r.presets {
		if ns == "" || p.Namespace == ns {
			out = append(out, p.Clone())
		}
	}
	return out
}

// ApplyPreset sets every applicable value from the preset. Unknown keys
// and values that fail validation are skipped with a log line; listeners
// are notified once for the whole batch. Returns false when the preset
// does not exist.
func (r *Registry) ApplyPreset(id string) bool {
	r.mu.Lock()
	p, ok := r.presets[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("preset not found", "preset_id", id)
		return false
	}
	batch := make(map[string]any)
	for key, value := range p.Parameters {
		d, ok := r.definitions[key]
		if !ok {
			r.logger.Warn("preset references unregistered parameter, skipping", "preset_id", id, "key", key)
			continue
		}
		if !d.Validate(value) {
			r.logger.Warn("preset value fails validation, skipping", "preset_id", id, "key", key, "value", value)
			continue
		}
		norm := d.Normalize(value)
		if !valuesEqual(r.values[key], norm) {
			r.values[key] = norm
			batch[key] = norm
		}
	}
	r.mu.Unlock()
	if len(batch) > 0 {
		r.notify(batch)
	}
	return true
}

// CreatePresetFromCurrent snapshots the namespace's current values into a
// new preset and registers it. An empty ID generates one.
func (r *Registry) CreatePresetFromCurrent(id, name, description string, ns Namespace, tags []string) *Preset {
	var values map[string]any
	if ns == NamespaceGeneral || ns == "" {
		values = r.All()
	} else {
		values = r.ByNamespace(ns)
	}
	p := NewPreset(id, name, description, ns, values, tags)
	r.AddPreset(p)
	return p.Clone()
}

// OnChange registers a change listener.
func (r *Registry) OnChange(l ChangeListener) {
	if l == nil {
		return
	}
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

func (r *Registry) notify(changed map[string]any) {
	r.listenersMu.RLock()
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.listenersMu.RUnlock()
	for _, l := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("parameter change listener panicked", "panic", rec)
				}
			}()
			l(changed)
		}()
	}
}

// Summary reports aggregate counts used by UIs and diagnostics.
type Summary struct {
	TotalParameters     int               `json:"total_parameters"`
	TotalPresets        int               `json:"total_presets"`
	NamespaceParameters map[Namespace]int `json:"namespace_parameters"`
	NamespacePresets    map[Namespace]int `json:"namespace_presets"`
	ModifiedParameters  int               `json:"modified_parameters"`
}

// Summarize returns the registry's aggregate state.
func (r *Registry) Summarize() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Summary{
		TotalParameters:     len(r.definitions),
		TotalPresets:        len(r.presets),
		NamespaceParameters: make(map[Namespace]int),
		NamespacePresets:    make(map[Namespace]int),
	}
	for _, d := range r.definitions {
		s.NamespaceParameters[d.Namespace]++
		if !valuesEqual(r.values[d.Key], d.Normalize(d.Default)) {
			s.ModifiedParameters++
		}
	}
	for _, p := range r.presets {
		s.NamespacePresets[p.Namespace]++
	}
	return s
}

// Save serializes current values and presets to the storage port under
// "{prefix}values" and "{prefix}presets".
func (r *Registry) Save() error {
	if r.store == nil {
		return storage.ErrNotAvailable
	}
	r.mu.RLock()
	values := make(map[string]any, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	presets := make(map[string]any, len(r.presets))
	for id, p := range r.presets {
		presets[id] = p.toMap()
	}
	r.mu.RUnlock()
	if err := r.store.Save(r.keyPrefix+"values", values); err != nil {
		return fmt.Errorf("save parameter values: %w", err)
	}
	if err := r.store.Save(r.keyPrefix+"presets", presets); err != nil {
		return fmt.Errorf("save presets: %w", err)
	}
	return nil
}

// Load restores values and presets from storage. Values that no longer
// validate against their definitions are discarded silently; presets are
// restored as-is.
func (r *Registry) Load() error {
	if r.store == nil {
		return storage.ErrNotAvailable
	}
	raw, ok, err := r.store.Load(r.keyPrefix + "values")
	if err != nil {
		return fmt.Errorf("load parameter values: %w", err)
	}
	if ok {
		if stored, ok := raw.(map[string]any); ok {
			r.mu.Lock()
			for key, value := range stored {
				d, ok := r.definitions[key]
				if !ok || !d.Validate(value) {
					continue
				}
				r.values[key] = d.Normalize(value)
			}
			r.mu.Unlock()
		}
	}
	raw, ok, err = r.store.Load(r.keyPrefix + "presets")
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}
	if ok {
		if stored, ok := raw.(map[string]any); ok {
			r.mu.Lock()
			for id, entry := range stored {
				if m, ok := entry.(map[string]any); ok {
					p := presetFromMap(m)
					if p.ID == "" {
						p.ID = id
					}
					r.presets[p.ID] = p
				}
			}
			r.mu.Unlock()
		}
	}
	return nil
}
