package params

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportJSON(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Set(KeyUpwindThreshold, 50.0))
	r.AddPreset(NewPreset("exported", "Exported", "", NamespaceWindEstimation,
		map[string]any{KeyUpwindThreshold: 55.0}, nil))

	data, err := r.ExportJSON()
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "1.0", env["version"])
	assert.Contains(t, env, "parameters")
	assert.Contains(t, env, "presets")
	assert.Contains(t, env, "export_time")

	fresh := NewRegistry()
	require.NoError(t, fresh.ImportJSON(data, DefaultImportOptions()))
	assert.Equal(t, 50.0, fresh.GetFloat(KeyUpwindThreshold, 0))
	_, ok := fresh.Preset("exported")
	assert.True(t, ok)
}

func TestImportToleratesMissingSections(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.ImportJSON([]byte(`{"version":"1.0"}`), DefaultImportOptions()))
	require.NoError(t, r.ImportJSON([]byte(`{"parameters":{"unknown_key":1}}`), DefaultImportOptions()))
	assert.Equal(t, 45.0, r.GetFloat(KeyUpwindThreshold, 0))
}

func TestExportImportYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")

	r := NewRegistry()
	require.NoError(t, r.Set(KeyMinWindShiftAngle, 4.0))
	require.NoError(t, r.ExportToFile(path))

	fresh := NewRegistry()
	require.NoError(t, fresh.ImportFromFile(path, ImportOptions{Parameters: true}))
	assert.Equal(t, 4.0, fresh.GetFloat(KeyMinWindShiftAngle, 0))
}

func TestImportParametersOnly(t *testing.T) {
	r := NewRegistry()
	r.AddPreset(NewPreset("only_presets", "P", "", NamespaceGeneral, nil, nil))
	data, err := r.ExportJSON()
	require.NoError(t, err)

	fresh := NewRegistry()
	require.NoError(t, fresh.ImportJSON(data, ImportOptions{Parameters: true, Presets: false}))
	_, ok := fresh.Preset("only_presets")
	assert.False(t, ok)
}
