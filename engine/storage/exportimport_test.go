package storage

import (
	"strings"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	payload := map[string]any{"session": map[string]any{"name": "tuesday beat", "points": 503.0}}
	data, filename, err := ExportData(payload, "session")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(filename, "session_") || !strings.HasSuffix(filename, ".saildata") {
		t.Errorf("unexpected filename %q", filename)
	}

	content, meta, err := ImportData(data)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Name != "session" || meta.Version != exportVersion {
		t.Errorf("metadata = %+v", meta)
	}
	session := content["session"].(map[string]any)
	if session["name"] != "tuesday beat" {
		t.Errorf("content = %v", content)
	}
}

func TestImportRejectsForeignFiles(t *testing.T) {
	if _, _, err := ImportData([]byte(`{"metadata":{"header":"OTHER"},"content":{}}`)); err == nil {
		t.Fatal("expected header rejection")
	}
	if _, _, err := ImportData([]byte("not json at all")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestImportAcceptsUncompressedJSON(t *testing.T) {
	raw := []byte(`{"metadata":{"header":"TACKLENS_EXPORT","version":"1.0.0","name":"x"},"content":{"k":1}}`)
	content, _, err := ImportData(raw)
	if err != nil {
		t.Fatal(err)
	}
	if content["k"].(float64) != 1 {
		t.Errorf("content = %v", content)
	}
}

func TestExportKeysAndImportToStorage(t *testing.T) {
	src := NewMemory(0)
	_ = src.Save("params_values", map[string]any{"upwind_threshold": 45.0})
	_ = src.Save("cache_x", map[string]any{"value": 2.0})

	data, _, err := ExportKeys(src, []string{"params_values", "cache_x", "missing"}, "backup")
	if err != nil {
		t.Fatal(err)
	}

	dst := NewMemory(0)
	n, err := ImportToStorage(dst, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("stored %d entries, want 2", n)
	}
	v, ok, _ := dst.Load("params_values")
	if !ok {
		t.Fatal("params_values missing after import")
	}
	if v.(map[string]any)["upwind_threshold"].(float64) != 45.0 {
		t.Errorf("restored value = %v", v)
	}
}
