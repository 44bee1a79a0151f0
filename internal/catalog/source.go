package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed defaults.json
var defaultCatalog []byte

// Source loads a raw catalog snapshot.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}

// FileSource reads a catalog from a JSON file. The file holds either a bare array of products
// (as written by catalogsync) or an object with "products" and "bundle".
type FileSource struct {
	Path string
}

// Load implements Source.
func (f FileSource) Load(_ context.Context) (Snapshot, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read catalog file: %w", err)
	}
	return Decode(raw)
}

// EmbeddedSource serves the catalog compiled into the binary.
type EmbeddedSource struct{}

// Load implements Source.
func (EmbeddedSource) Load(_ context.Context) (Snapshot, error) {
	return Decode(defaultCatalog)
}

// Decode parses a catalog document in either supported layout.
func Decode(raw []byte) (Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Snapshot{}, fmt.Errorf("decode catalog: empty document")
	}
	var snap Snapshot
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &snap.Products); err != nil {
			return Snapshot{}, fmt.Errorf("decode catalog: %w", err)
		}
		return snap, nil
	}
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode catalog: %w", err)
	}
	return snap, nil
}

// withDefaultBundle attaches the embedded full-access bundle to catalogs that do not carry one,
// such as the bare product arrays exported from Drive.
func withDefaultBundle(snap Snapshot) Snapshot {
	embedded, err := Decode(defaultCatalog)
	if err != nil || embedded.Bundle == nil {
		return snap
	}
	if _, ok := snap.Find(embedded.Bundle.ID); ok {
		return snap
	}
	bundle := *embedded.Bundle
	snap.Bundle = &bundle
	return snap
}
