package output

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/summary"
)

func fp(v float64) *float64 { return &v }

func aggregated(algo, dir string, seeds int, avg float64) models.AggregatedRun {
	return models.AggregatedRun{
		NumSeed:           &seeds,
		Algorithm:         &algo,
		Direction:         &dir,
		AvgDistance:       fp(avg),
		EffectiveDiameter: fp(avg + 1),
		LowerBound:        fp(4),
		TotalCouples:      fp(avg * 1000),
		Time:              fp(0.25),
	}
}

func buildReport(t *testing.T, opts summary.Options) *summary.Report {
	t.Helper()
	runs := []models.AggregatedRun{
		aggregated("MHSE", "out", 16, 2.1),
		aggregated("MHSE", "out", 16, 1.9),
		aggregated("MHSE", "out", 32, 2.05),
		aggregated("MHSE", "out", 32, 1.95),
		aggregated("BMinHash", "in", 16, 2.3),
		aggregated("BMinHash", "in", 16, 2.2),
	}
	opts.Logger = zerolog.Nop()
	report, err := summary.Aggregate(context.Background(), runs, opts)
	require.NoError(t, err)
	return report
}

func fullOptions() summary.Options {
	return summary.Options{
		StdDev: true,
		Tests:  true,
		GroundTruth: &models.GroundTruth{
			AvgDistance:       fp(2),
			EffectiveDiameter: fp(3),
			LowerBound:        fp(4),
			TotalCouples:      fp(2000),
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.12346, Round(0.123456, 5))
	assert.Equal(t, 2.0, Round(1.999999, 5))
	assert.Equal(t, -0.5, Round(-0.499996, 5))
	assert.Equal(t, 12.0, Round(12.4, 0))
}

func TestKeyedRoundTrip(t *testing.T) {
	report := buildReport(t, fullOptions())
	prefix := filepath.Join(t.TempDir(), "out", "results")

	fw := NewFileWriter(DefaultPrecision)
	path, err := fw.WriteKeyed(report, prefix)
	require.NoError(t, err)
	assert.Equal(t, prefix+".json", path)

	parsed, err := ReadKeyed(path)
	require.NoError(t, err)
	assert.Equal(t, Summarize(report, DefaultPrecision), parsed)

	key := models.GroupKey{Algorithm: "MHSE", Direction: "out", SeedCount: 16}
	require.Contains(t, parsed, key)
	mean := parsed[key].Values["MeanAvgDistance"]
	require.Len(t, mean, 2)
	assert.InDelta(t, 2.0, *mean[0], 1e-9)
	assert.InDelta(t, 0.1, *mean[1], 1e-9)
	// no run carries memory_used
	assert.Equal(t, []*float64{nil, nil}, parsed[key].Values["MeanMaxMemoryUsed"])
	require.NotNil(t, parsed[key].Residuals["avg_distance"])
	assert.InDelta(t, 0.0, *parsed[key].Residuals["avg_distance"], 1e-9)
}

func TestKeyedLayout(t *testing.T) {
	report := buildReport(t, summary.Options{})
	prefix := filepath.Join(t.TempDir(), "means")

	path, err := NewFileWriter(DefaultPrecision).WriteKeyed(report, prefix)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var flat map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &flat))

	assert.Contains(t, flat, "MHSE:out:16:MeanAvgDistance")
	assert.Contains(t, flat, "BMinHash:in:16:avgTime")
	assert.NotContains(t, flat, "MHSE:out:16:residuals")
	assert.Len(t, flat, 3*len(models.AllMetrics))
	assert.JSONEq(t, `[2]`, string(flat["MHSE:out:16:MeanAvgDistance"]))
}

func TestParseKey(t *testing.T) {
	key, entry, err := ParseKey("a:b:c:in:64:Ttest")
	require.NoError(t, err)
	assert.Equal(t, models.GroupKey{Algorithm: "a:b:c", Direction: "in", SeedCount: 64}, key)
	assert.Equal(t, "Ttest", entry)

	_, _, err = ParseKey("MHSE:out:Ttest")
	assert.Error(t, err)
	_, _, err = ParseKey("MHSE:out:many:Ttest")
	assert.Error(t, err)
}

func TestReadKeyedRejectsUnknownEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"MHSE:out:16:Median": [1]}`), 0644))
	_, err := ReadKeyed(path)
	assert.Error(t, err)
}

func TestCSVColumnSets(t *testing.T) {
	means := Columns(summary.StageMeans)
	assert.Equal(t, []string{
		"algo", "direction", "seeds",
		"sampleMeanAvgDistance", "sampleMeanEffectiveDiameter",
		"sampleMeanLowerBoundDiameter", "sampleMeanTotalCouples",
		"avg_time",
	}, means)

	deviations := Columns(summary.StageDeviations)
	assert.Len(t, deviations, 3+4*2+2)
	assert.Equal(t, "stdAvgDistance", deviations[4])

	comparison := Columns(summary.StageComparison)
	assert.Len(t, comparison, 3+4*5+2)
	assert.Equal(t, "groundTruthAvgDistance", comparison[3])

	tests := Columns(summary.StageTests)
	assert.Len(t, tests, 3+4*7+2)
	assert.Equal(t, []string{
		"groundTruthTotalCouples", "sampleMeanTotalCouples", "stdTotalCouples",
		"residualTotalCouples", "pValueTotalCouples", "pvalWilcoxonTotalCouples",
		"CITotalCouples", "avg_time", "std_time",
	}, tests[len(tests)-9:])
}

func TestWriteCSV(t *testing.T) {
	report := buildReport(t, fullOptions())
	prefix := filepath.Join(t.TempDir(), "results")

	path, err := NewFileWriter(DefaultPrecision).WriteCSV(report, prefix)
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns(summary.StageTests), rows[0])
	assert.Equal(t, []string{"MHSE", "out", "16", "2", "2", "0.1", "0"}, rows[1][:7])
	assert.Equal(t, []string{"BMinHash", "in", "16"}, rows[3][:3])
}

func TestWriteRelabeled(t *testing.T) {
	report := buildReport(t, fullOptions())
	prefix := filepath.Join(t.TempDir(), "results")
	labels := map[string]string{
		"seeds":              "k",
		"residualAvgDistance": "Residual AD",
		"ciAvgDistance":      "CI AD",
		"avg_time":           "Time",
	}

	paths, err := NewFileWriter(DefaultPrecision).WriteRelabeled(report, labels, prefix)
	require.NoError(t, err)
	assert.Equal(t, []string{prefix + "MHSE.csv", prefix + "BMinHash.csv"}, paths)

	rows := readCSV(t, paths[0])
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"k", "Residual AD", "CI AD", "Time"}, rows[0])
	assert.Equal(t, "16", rows[1][0])
	assert.Equal(t, "0 (1)", rows[1][1])
	assert.Regexp(t, `^\+ - [0-9.]+$`, rows[1][2])
	assert.Equal(t, "0.25", rows[1][3])
}

func TestWriteRelabeledNeedsTests(t *testing.T) {
	report := buildReport(t, summary.Options{StdDev: true})
	paths, err := NewFileWriter(DefaultPrecision).WriteRelabeled(report, map[string]string{"seeds": "k"}, filepath.Join(t.TempDir(), "r"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestWriteAll(t *testing.T) {
	report := buildReport(t, fullOptions())
	prefix := filepath.Join(t.TempDir(), "outResults")

	paths, err := NewFileWriter(DefaultPrecision).WriteAll(report, map[string]string{"seeds": "k"}, true, prefix)
	require.NoError(t, err)
	assert.Equal(t, []string{
		prefix + ".json",
		prefix + ".csv",
		prefix + "MHSE.csv",
		prefix + "BMinHash.csv",
	}, paths)
	for _, p := range paths {
		assert.FileExists(t, p)
	}

	paths, err = NewFileWriter(DefaultPrecision).WriteAll(report, nil, false, prefix+"_json")
	require.NoError(t, err)
	assert.Equal(t, []string{prefix + "_json.json"}, paths)
}

func TestWriteRecords(t *testing.T) {
	avg := 1.234567891
	records := []*models.RunRecord{
		{AvgDistance: &avg, TotalCouples: 10, CouplesPercentage: 9, LowerBoundDiameter: 2, Threshold: 0.9, NumSeed: 16, Time: 3e-06},
		{TotalCouples: 0, Threshold: 0.9, NumSeed: 16},
	}
	prefix := filepath.Join(t.TempDir(), "outCollision")

	path, err := NewFileWriter(DefaultPrecision).WriteRecords(records, prefix)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, 1.234567891, decoded[0]["avg_distance"])
	assert.Equal(t, 3e-06, decoded[0]["time"])
	assert.Nil(t, decoded[1]["avg_distance"])
	assert.Contains(t, decoded[1], "effective_diameter")
}

func TestZeroGroundTruthResidualIsBlank(t *testing.T) {
	opts := fullOptions()
	opts.GroundTruth.AvgDistance = fp(0)
	report := buildReport(t, opts)
	prefix := filepath.Join(t.TempDir(), "zero")
	fw := NewFileWriter(DefaultPrecision)

	keyedPath, err := fw.WriteKeyed(report, prefix)
	require.NoError(t, err)
	data, err := os.ReadFile(keyedPath)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	var residuals map[string]*float64
	require.NoError(t, json.Unmarshal(raw["MHSE:out:16:residuals"], &residuals))
	require.Contains(t, residuals, "avg_distance")
	assert.Nil(t, residuals["avg_distance"])
	assert.NotNil(t, residuals["effective_diameter"])

	csvPath, err := fw.WriteCSV(report, prefix)
	require.NoError(t, err)
	rows := readCSV(t, csvPath)
	require.Equal(t, "residualAvgDistance", rows[0][6])
	assert.Equal(t, "0", rows[1][3])
	assert.Equal(t, "", rows[1][6])
}
