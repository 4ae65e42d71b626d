package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/copyleftdev/scryflow/internal/dom"
	"go.uber.org/zap"
)

// Writer stores the artifacts of each run under <dir>/<run-id>/.
type Writer struct {
	dir    string
	logger *zap.Logger
}

func NewWriter(dir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{dir: dir, logger: logger}
}

// RunDir is the directory holding the artifacts of runID.
func (w *Writer) RunDir(runID string) (string, error) {
	if runID == "" || runID != filepath.Base(runID) || strings.HasPrefix(runID, ".") {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(w.dir, runID), nil
}

func (w *Writer) ensureRunDir(runID string) (string, error) {
	dir, err := w.RunDir(runID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return dir, nil
}

// WriteVerdict stores verdict as indented JSON in verdict.json.
func (w *Writer) WriteVerdict(runID string, verdict interface{}) (string, error) {
	dir, err := w.ensureRunDir(runID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode verdict: %w", err)
	}
	path := filepath.Join(dir, "verdict.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write verdict: %w", err)
	}
	return path, nil
}

// WriteSnapshot stores the parts of snap that were captured as name.html,
// name.simplified.html and name.png. It returns the paths written.
func (w *Writer) WriteSnapshot(runID, name string, snap *dom.Snapshot) ([]string, error) {
	if snap == nil {
		return nil, nil
	}
	dir, err := w.ensureRunDir(runID)
	if err != nil {
		return nil, err
	}

	parts := []struct {
		suffix string
		data   []byte
	}{
		{".html", []byte(snap.HTML)},
		{".simplified.html", []byte(snap.Simplified)},
		{".png", snap.Screenshot},
	}

	var written []string
	for _, part := range parts {
		if len(part.data) == 0 {
			continue
		}
		path := filepath.Join(dir, name+part.suffix)
		if err := os.WriteFile(path, part.data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
		}
		written = append(written, path)
	}
	w.logger.Debug("Snapshot written", zap.String("run_id", runID), zap.Strings("files", written))
	return written, nil
}
