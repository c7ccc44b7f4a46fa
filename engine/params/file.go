package params

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const exportVersion = "1.0"

// exportEnvelope is the on-disk parameter/preset file format. Import
// tolerates missing sections and unknown keys.
type exportEnvelope struct {
	Parameters map[string]any            `json:"parameters" yaml:"parameters"`
	Presets    map[string]map[string]any `json:"presets" yaml:"presets"`
	ExportTime string                    `json:"export_time" yaml:"export_time"`
	Version    string                    `json:"version" yaml:"version"`
}

func (r *Registry) exportEnvelope() exportEnvelope {
	env := exportEnvelope{
		Parameters: r.All(),
		Presets:    make(map[string]map[string]any),
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Version:    exportVersion,
	}
	for _, p := range r.Presets("") {
		env.Presets[p.ID] = p.toMap()
	}
	return env
}

// ExportJSON renders current values and presets as the versioned JSON
// interchange format.
func (r *Registry) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(r.exportEnvelope(), "", "  ")
}

// ExportYAML renders the same envelope as YAML.
func (r *Registry) ExportYAML() ([]byte, error) {
	return yaml.Marshal(r.exportEnvelope())
}

// ExportToFile writes the envelope to path, choosing YAML for .yaml/.yml
// extensions and JSON otherwise.
func (r *Registry) ExportToFile(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = r.ExportYAML()
	default:
		data, err = r.ExportJSON()
	}
	if err != nil {
		return fmt.Errorf("export parameters: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ImportOptions selects which sections of an envelope to apply.
type ImportOptions struct {
	Parameters bool
	Presets    bool
}

// DefaultImportOptions applies both sections.
func DefaultImportOptions() ImportOptions { return ImportOptions{Parameters: true, Presets: true} }

// importEnvelope applies a decoded envelope. Unknown or invalid parameter entries
// are skipped with a log line; presets are inserted or replaced.
func (r *Registry) importEnvelope(env exportEnvelope, opts ImportOptions) {
	if opts.Parameters && env.Parameters != nil {
		results := r.SetMany(env.Parameters)
		for key, err := range results {
			if err != nil {
				r.logger.Warn("imported parameter skipped", "key", key, "reason", err)
			}
		}
	}
	if opts.Presets {
		for id, m := range env.Presets {
			p := presetFromMap(m)
			if p.ID == "" {
				p.ID = id
			}
			r.AddPreset(p)
		}
	}
}

// ImportJSON applies a JSON envelope.
func (r *Registry) ImportJSON(data []byte, opts ImportOptions) error {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode parameter file: %w", err)
	}
	r.importEnvelope(env, opts)
	return nil
}

// ImportYAML applies a YAML envelope.
func (r *Registry) ImportYAML(data []byte, opts ImportOptions) error {
	var env exportEnvelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode parameter file: %w", err)
	}
	r.importEnvelope(env, opts)
	return nil
}

// ImportFromFile reads and applies an envelope from path, choosing the
// decoder by extension.
func (r *Registry) ImportFromFile(path string, opts ImportOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return r.ImportYAML(data, opts)
	default:
		return r.ImportJSON(data, opts)
	}
}
