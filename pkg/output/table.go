package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/summary"
)

// column is one CSV column: its header name and how a cell is rendered
type column struct {
	name string
	cell func(res summary.Result) string
}

// Columns returns the header of the summary table for a report stage
func Columns(stage summary.Stage) []string {
	cols := summaryColumns(stage, DefaultPrecision)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

func summaryColumns(stage summary.Stage, precision int) []column {
	format := formatter(precision)
	cols := keyColumns()

	for _, m := range models.ComparedMetrics {
		m := m
		if stage >= summary.StageComparison {
			cols = append(cols, column{"groundTruth" + m.Label(), func(res summary.Result) string {
				return format(res.(summary.WithComparison).GroundTruth(m))
			}})
		}
		cols = append(cols, column{"sampleMean" + m.Label(), func(res summary.Result) string {
			return format(res.Mean(m))
		}})
		if stage >= summary.StageDeviations {
			cols = append(cols, column{"std" + m.Label(), func(res summary.Result) string {
				return format(res.(summary.WithDeviations).StdDev(m))
			}})
		}
		if stage >= summary.StageComparison {
			cols = append(cols, column{"residual" + m.Label(), func(res summary.Result) string {
				return format(res.(summary.WithComparison).Residual(m))
			}})
		}
		if stage >= summary.StageTests {
			cols = append(cols,
				column{"pValue" + m.Label(), func(res summary.Result) string {
					return format(res.(summary.WithTests).TTest(m))
				}},
				column{"pvalWilcoxon" + m.Label(), func(res summary.Result) string {
					return format(res.(summary.WithTests).Wilcoxon(m))
				}},
			)
		}
		if stage >= summary.StageComparison {
			cols = append(cols, column{ciColumn(m), func(res summary.Result) string {
				return format(res.(summary.WithComparison).ConfidenceInterval(m))
			}})
		}
	}

	cols = append(cols, column{"avg_time", func(res summary.Result) string {
		return format(res.Mean(models.Time))
	}})
	if stage >= summary.StageDeviations {
		cols = append(cols, column{"std_time", func(res summary.Result) string {
			return format(res.(summary.WithDeviations).StdDev(models.Time))
		}})
	}
	return cols
}

func keyColumns() []column {
	return []column{
		{"algo", func(res summary.Result) string { return res.Key().Algorithm }},
		{"direction", func(res summary.Result) string { return res.Key().Direction }},
		{"seeds", func(res summary.Result) string { return strconv.Itoa(res.Key().SeedCount) }},
	}
}

func ciColumn(m models.Metric) string {
	if m == models.TotalCouples {
		return "CITotalCouples"
	}
	return "ci" + m.Label()
}

// relabeledColumns are the candidate columns of the per-algorithm tables,
// named after the summary table columns they derive from
func relabeledColumns(precision int) []column {
	format := formatter(precision)
	cols := keyColumns()[1:]

	for _, m := range models.ComparedMetrics {
		m := m
		cols = append(cols,
			column{"groundTruth" + m.Label(), func(res summary.Result) string {
				return format(res.(summary.WithComparison).GroundTruth(m))
			}},
			column{"sampleMean" + m.Label(), func(res summary.Result) string {
				return format(res.Mean(m))
			}},
			column{"residual" + m.Label(), func(res summary.Result) string {
				t := res.(summary.WithTests)
				return fmt.Sprintf("%s (%s)", format(t.Residual(m)), format(t.TTest(m)))
			}},
			column{ciColumn(m), func(res summary.Result) string {
				return "+ - " + format(res.(summary.WithComparison).ConfidenceInterval(m))
			}},
		)
	}

	return append(cols,
		column{"avg_time", func(res summary.Result) string {
			return format(res.Mean(models.Time))
		}},
		column{"std_time", func(res summary.Result) string {
			return format(res.(summary.WithDeviations).StdDev(models.Time))
		}},
	)
}

// WriteCSV writes one row per group to <prefix>.csv. The column set depends
// on the deepest stage of the report.
func (fw *FileWriter) WriteCSV(report *summary.Report, prefix string) (string, error) {
	path := prefix + ".csv"
	cols := summaryColumns(report.Stage, fw.Precision)
	return path, writeTable(path, cols, report.Results)
}

// WriteRelabeled writes one table per algorithm to <prefix><algorithm>.csv,
// keeping only the columns named in labels and renaming them. Nothing is
// written unless the report reached the test stage and labels are given.
func (fw *FileWriter) WriteRelabeled(report *summary.Report, labels map[string]string, prefix string) ([]string, error) {
	if report.Stage < summary.StageTests || len(labels) == 0 {
		return nil, nil
	}

	var cols []column
	for _, c := range relabeledColumns(fw.Precision) {
		if label, ok := labels[c.name]; ok {
			cols = append(cols, column{label, c.cell})
		}
	}

	var written []string
	for _, algorithm := range report.Algorithms() {
		var rows []summary.Result
		for _, res := range report.Results {
			if res.Key().Algorithm == algorithm {
				rows = append(rows, res)
			}
		}
		path := prefix + algorithm + ".csv"
		if err := writeTable(path, cols, rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeTable(path string, cols []column, rows []summary.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.name
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, res := range rows {
		record := make([]string, len(cols))
		for i, c := range cols {
			record[i] = c.cell(res)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s: %w", res.Key(), err)
		}
	}

	w.Flush()
	return w.Error()
}

// formatter renders a rounded number, or an empty cell when undefined
func formatter(precision int) func(float64, bool) string {
	return func(v float64, ok bool) string {
		if !defined(v, ok) {
			return ""
		}
		return strconv.FormatFloat(Round(v, precision), 'f', -1, 64)
	}
}
