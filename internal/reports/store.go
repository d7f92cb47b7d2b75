// Package reports implements the report/document store: a write-mostly JSON
// file store for persisted ethics reports. Persisting a report is best
// effort for the producing action; reading back exists for the CLI.
package reports

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists ethics reports.
type Store interface {
	Save(report schemas.EthicsReport) error
}

// FileStore writes each report as a timestamped JSON document in one
// directory.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore ensures the directory exists and returns the store.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger.Named("reports")}, nil
}

// Save implements Store. The write is atomic: a partially written report is
// never visible under its final name.
func (s *FileStore) Save(report schemas.EthicsReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ethics report: %w", err)
	}

	id := report.ID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("ethics-%s-%s.json", report.GeneratedAt.Format("20060102T150405Z"), id)
	final := filepath.Join(s.dir, name)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to finalize report: %w", err)
	}

	s.logger.Info("Ethics report persisted.", zap.String("path", final))
	return nil
}

// Latest loads the most recently written report, or an error when none exist.
func (s *FileStore) Latest() (schemas.EthicsReport, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "ethics-*.json"))
	if err != nil {
		return schemas.EthicsReport{}, err
	}
	if len(matches) == 0 {
		return schemas.EthicsReport{}, fmt.Errorf("no ethics reports in %s", s.dir)
	}
	sort.Strings(matches)

	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return schemas.EthicsReport{}, fmt.Errorf("failed to read report: %w", err)
	}
	var report schemas.EthicsReport
	if err := json.Unmarshal(data, &report); err != nil {
		return schemas.EthicsReport{}, fmt.Errorf("failed to decode report: %w", err)
	}
	return report, nil
}
