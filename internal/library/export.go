// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

const exportLimit = 100000

// ExportYAML writes the papers matching opts to <dir>/export.yaml and
// returns the path written.
func (s *Store) ExportYAML(ctx context.Context, opts FindOptions) (string, error) {
	papers, err := s.exportPapers(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(papers)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return s.writeExport("export.yaml", data)
}

// ExportJSON writes the papers matching opts to <dir>/export.json and
// returns the path written.
func (s *Store) ExportJSON(ctx context.Context, opts FindOptions) (string, error) {
	papers, err := s.exportPapers(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(papers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return s.writeExport("export.json", data)
}

func (s *Store) exportPapers(ctx context.Context, opts FindOptions) ([]Paper, error) {
	opts.MaxResults = exportLimit
	papers, err := s.Find(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	if papers == nil {
		papers = []Paper{}
	}
	return papers, nil
}

func (s *Store) writeExport(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
