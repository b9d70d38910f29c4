package output

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/summary"
)

// DefaultPrecision is the number of decimal digits kept in every output
const DefaultPrecision = 5

// OutputWriter interface for flexible output generation
type OutputWriter interface {
	WriteRecords(records []*models.RunRecord, prefix string) (string, error)
	WriteKeyed(report *summary.Report, prefix string) (string, error)
	WriteCSV(report *summary.Report, prefix string) (string, error)
	WriteRelabeled(report *summary.Report, labels map[string]string, prefix string) ([]string, error)
	WriteAll(report *summary.Report, labels map[string]string, tabular bool, prefix string) ([]string, error)
}

// FileWriter implements OutputWriter for file-based output. Every path
// is built by appending an extension (or an algorithm name) to prefix.
type FileWriter struct {
	Precision int
}

// NewFileWriter creates a new file-based output writer
func NewFileWriter(precision int) OutputWriter {
	if precision < 0 {
		precision = DefaultPrecision
	}
	return &FileWriter{Precision: precision}
}

// WriteAll writes the keyed JSON and, when tabular is set, the CSV table and
// the relabeled per-algorithm tables
func (fw *FileWriter) WriteAll(report *summary.Report, labels map[string]string, tabular bool, prefix string) ([]string, error) {
	var written []string

	path, err := fw.WriteKeyed(report, prefix)
	if err != nil {
		return written, fmt.Errorf("failed to write keyed summary: %w", err)
	}
	written = append(written, path)

	if !tabular {
		return written, nil
	}

	path, err = fw.WriteCSV(report, prefix)
	if err != nil {
		return written, fmt.Errorf("failed to write summary table: %w", err)
	}
	written = append(written, path)

	paths, err := fw.WriteRelabeled(report, labels, prefix)
	if err != nil {
		return written, fmt.Errorf("failed to write relabeled tables: %w", err)
	}
	return append(written, paths...), nil
}

// WriteRecords writes the reducer output as a JSON array to <prefix>.json.
// Records keep full precision since they are the samples of the summaries.
func (fw *FileWriter) WriteRecords(records []*models.RunRecord, prefix string) (string, error) {
	path := prefix + ".json"
	return path, writeJSON(path, records)
}

// Round keeps digits decimal digits, rounding half away from zero
func Round(v float64, digits int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(digits))
	r := math.Round(v*scale) / scale
	if r == 0 {
		// drop the sign of negative zero
		return 0
	}
	return r
}

// defined reports whether v can be written as a number
func defined(v float64, ok bool) bool {
	return ok && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func writeJSON(path string, v interface{}) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// ensureDir creates the parent directory of path if it doesn't exist
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
