package storage

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Export file framing. Version bumps require explicit migration support.
const (
	exportHeader  = "TACKLENS_EXPORT"
	exportVersion = "1.0.0"
)

// ExportMetadata describes an export archive.
type ExportMetadata struct {
	Header    string `json:"header"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
}

type exportEnvelope struct {
	Metadata ExportMetadata `json:"metadata"`
	Content  map[string]any `json:"content"`
}

// ExportData packs a JSON-serializable payload into a gzip-compressed,
// versioned archive and returns it with a timestamped filename.
func ExportData(data map[string]any, exportName string) ([]byte, string, error) {
	if exportName == "" {
		exportName = "tacklens_export"
	}
	now := time.Now().UTC()
	envelope := exportEnvelope{
		Metadata: ExportMetadata{
			Header:    exportHeader,
			Version:   exportVersion,
			Timestamp: now.Format(time.RFC3339),
			Name:      exportName,
		},
		Content: data,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, "", fmt.Errorf("encode export: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, "", fmt.Errorf("compress export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compress export: %w", err)
	}
	filename := fmt.Sprintf("%s_%s.saildata", exportName, now.Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}

// ImportData unpacks an archive produced by ExportData. Uncompressed JSON
// is accepted too; unknown headers or versions are rejected.
func ImportData(data []byte) (map[string]any, ExportMetadata, error) {
	raw := data
	if zr, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
		if decompressed, err := io.ReadAll(zr); err == nil {
			raw = decompressed
		}
		_ = zr.Close()
	}
	var envelope exportEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, ExportMetadata{}, fmt.Errorf("decode import: %w", err)
	}
	if envelope.Metadata.Header != exportHeader {
		return nil, envelope.Metadata, fmt.Errorf("not a recognized export file")
	}
	if envelope.Metadata.Version != exportVersion {
		return nil, envelope.Metadata, fmt.Errorf("unsupported export version %q", envelope.Metadata.Version)
	}
	return envelope.Content, envelope.Metadata, nil
}

// ImportInfo peeks at an archive's metadata and content keys without
// applying anything.
func ImportInfo(data []byte) (ExportMetadata, []string, error) {
	content, meta, err := ImportData(data)
	if err != nil {
		return meta, nil, err
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	return meta, keys, nil
}

// ExportKeys dumps the values under the given storage keys into an
// archive. Missing keys are skipped.
func ExportKeys(s Storage, keys []string, exportName string) ([]byte, string, error) {
	content := make(map[string]any, len(keys))
	for _, key := range keys {
		v, ok, err := s.Load(key)
		if err != nil {
			return nil, "", fmt.Errorf("load %q: %w", key, err)
		}
		if ok {
			content[key] = v
		}
	}
	return ExportData(content, exportName)
}

// ImportToStorage writes an archive's content back into storage under its
// original keys, returning how many entries were stored.
func ImportToStorage(s Storage, data []byte) (int, error) {
	content, _, err := ImportData(data)
	if err != nil {
		return 0, err
	}
	stored := 0
	for key, value := range content {
		if err := s.Save(key, value); err != nil {
			return stored, fmt.Errorf("save %q: %w", key, err)
		}
		stored++
	}
	return stored, nil
}
