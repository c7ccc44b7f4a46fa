package params

import (
	"time"

	"github.com/google/uuid"
)

// Preset is a named bundle of parameter values. Presets are mutable user
// artifacts: they may reference keys that are no longer registered, and
// applying one silently skips unknown or invalid entries.
type Preset struct {
	ID          string         `json:"preset_id" yaml:"preset_id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Namespace   Namespace      `json:"namespace" yaml:"namespace"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// NewPreset constructs a preset, generating an ID when none is supplied.
func NewPreset(id, name, description string, ns Namespace, parameters map[string]any, tags []string) *Preset {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	if parameters == nil {
		parameters = make(map[string]any)
	}
	return &Preset{
		ID: id, Name: name, Description: description, Namespace: ns,
		Parameters: parameters, Tags: tags, CreatedAt: now, UpdatedAt: now,
	}
}

// Update merges values into the preset and bumps UpdatedAt.
func (p *Preset) Update(values map[string]any) {
	if p.Parameters == nil {
		p.Parameters = make(map[string]any)
	}
	for k, v := range values {
		p.Parameters[k] = v
	}
	p.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (p *Preset) Clone() *Preset {
	c := *p
	c.Parameters = make(map[string]any, len(p.Parameters))
	for k, v := range p.Parameters {
		c.Parameters[k] = v
	}
	c.Tags = append([]string(nil), p.Tags...)
	return &c
}

// presetFromMap restores a preset from a decoded JSON object or directly
// from toMap output. Missing fields fall back to zero values; unknown
// fields are ignored.
func presetFromMap(m map[string]any) *Preset {
	p := &Preset{Parameters: make(map[string]any)}
	if s, ok := m["preset_id"].(string); ok {
		p.ID = s
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if s, ok := m["name"].(string); ok {
		p.Name = s
	}
	if s, ok := m["description"].(string); ok {
		p.Description = s
	}
	if s, ok := m["namespace"].(string); ok {
		p.Namespace = Namespace(s)
	}
	if values, ok := m["parameters"].(map[string]any); ok {
		for k, v := range values {
			p.Parameters[k] = v
		}
	}
	switch tags := m["tags"].(type) {
	case []string:
		p.Tags = append(p.Tags, tags...)
	case []any:
		for _, t := range tags {
			if s, ok := t.(string); ok {
				p.Tags = append(p.Tags, s)
			}
		}
	}
	if s, ok := m["created_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			p.CreatedAt = ts
		}
	}
	if s, ok := m["updated_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			p.UpdatedAt = ts
		}
	}
	return p
}

// toMap renders the preset as a JSON-ready object (instants in RFC 3339
// with nanoseconds).
func (p *Preset) toMap() map[string]any {
	return map[string]any{
		"preset_id":   p.ID,
		"name":        p.Name,
		"description": p.Description,
		"namespace":   string(p.Namespace),
		"parameters":  p.Parameters,
		"tags":        p.Tags,
		"created_at":  p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
