package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/output"
	"github.com/gilchrisn/hopstats/pkg/summary"
)

const rawRuns = `[
	{
		"collision_table": {"0": [1, 1, 1, 1], "1": [3, 2, 4, 3], "2": [4, 4, 4, 4]},
		"last_hops": [2, 2, 2, 2],
		"nodes": 4,
		"node_ids": [0, 1, 2, 3],
		"seeds_time": [0.5, 0.5, 0.5, 0.5],
		"algorithm": "MHSE",
		"direction": "out"
	},
	{
		"collision_table": [[1, 2, 4], [1, 3, 4], [1, 3, 4], [1, 4, 4]],
		"last_hops": [2, 2, 2, 2],
		"nodes": 4,
		"node_ids": [0, 1, 2, 3],
		"seeds_time": [0.7, 0.7, 0.7, 0.7],
		"algorithm": "MHSE",
		"direction": "out"
	}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestExtractThenCompute(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(output.DefaultPrecision, zerolog.Nop())

	extracted, err := p.Extract(context.Background(), ExtractOptions{
		InputFile:          writeFile(t, dir, "runs.json", rawRuns),
		OutputPrefix:       filepath.Join(dir, "collision", "outCollision"),
		AdditionalInfoFile: writeFile(t, dir, "add.json", `{"algo": "algorithm", "dir": "direction"}`),
		Seeds:              []int{2, 4},
		Threshold:          0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, extracted.Runs)
	assert.Equal(t, 4, extracted.Records)
	assert.Equal(t, filepath.Join(dir, "collision", "outCollision.json"), extracted.OutputFile)

	gtPath := writeFile(t, dir, "gt.json", `{"avg_distance": 1.2, "effective_diameter": 1.8, "lower_bound": 2, "total_couples": 16}`)
	labelPath := writeFile(t, dir, "relabel.json", `{"seeds": "k", "residualAvgDistance": "AD"}`)

	computed, err := p.Compute(context.Background(), ComputeOptions{
		InputFile:       extracted.OutputFile,
		OutputPrefix:    filepath.Join(dir, "results", "outResults"),
		GroundTruthFile: gtPath,
		LabelFile:       labelPath,
		StdDev:          true,
		Tests:           true,
		Tabular:         true,
		Workers:         2,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, computed.Runs)
	assert.Equal(t, 2, computed.Groups)
	assert.Equal(t, summary.StageTests.String(), computed.Stage)
	assert.Len(t, computed.OutputFiles, 3)

	groups, err := output.ReadKeyed(filepath.Join(dir, "results", "outResults.json"))
	require.NoError(t, err)
	key := models.GroupKey{Algorithm: "MHSE", Direction: "out", SeedCount: 4}
	require.Contains(t, groups, key)
	lower := groups[key].Values["MeanLowerBoundDiameter"]
	require.Len(t, lower, 2)
	assert.Equal(t, 2.0, *lower[0])
	assert.Equal(t, 0.0, *lower[1])

	assert.FileExists(t, filepath.Join(dir, "results", "outResultsMHSE.csv"))
}

func TestExtractRecords(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(output.DefaultPrecision, zerolog.Nop())

	result, err := p.Extract(context.Background(), ExtractOptions{
		InputFile:    writeFile(t, dir, "runs.json", rawRuns),
		OutputPrefix: filepath.Join(dir, "out"),
		Seeds:        []int{4},
		Threshold:    0.9,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(result.OutputFile)
	require.NoError(t, err)
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)

	// run 0 with 4 seeds: couples 4, 12, 16
	assert.Equal(t, 16.0, records[0]["total_couples"])
	assert.Equal(t, 2.0, records[0]["lower_bound"])
	assert.Equal(t, 1.0, records[0]["avg_distance"])
	assert.Equal(t, 1.6, records[0]["effective_diameter"])
	assert.Equal(t, 0.5, records[0]["time"])
	assert.NotContains(t, records[0], "algorithm")
}

func TestComputeFailsBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(output.DefaultPrecision, zerolog.Nop())
	estimation := writeFile(t, dir, "est.json", `[{"num_seed": 16, "avg_distance": 2}]`)
	prefix := filepath.Join(dir, "outResults")

	_, err := p.Compute(context.Background(), ComputeOptions{
		InputFile:       estimation,
		OutputPrefix:    prefix,
		GroundTruthFile: filepath.Join(dir, "missing.json"),
		StdDev:          true,
		Tests:           true,
		Tabular:         true,
	})
	require.Error(t, err)
	assert.NoFileExists(t, prefix+".json")

	_, err = p.Compute(context.Background(), ComputeOptions{
		InputFile:       estimation,
		OutputPrefix:    prefix,
		GroundTruthFile: writeFile(t, dir, "gt.json", `{"avg_distance": 1, "effective_diameter": 1, "lower_bound": 1, "total_couples": 1}`),
		LabelFile:       filepath.Join(dir, "relabel.json"),
		StdDev:          true,
		Tests:           true,
		Tabular:         true,
	})
	require.Error(t, err)
	assert.NoFileExists(t, prefix+".json")
}

func TestComputeOptionsValidate(t *testing.T) {
	opts := DefaultComputeOptions()
	opts.InputFile = "est.json"
	assert.ErrorIs(t, opts.Validate(), summary.ErrTestsNeedGroundTruth)

	opts.Tests = false
	opts.StdDev = false
	opts.GroundTruthFile = "gt.json"
	assert.ErrorIs(t, opts.Validate(), summary.ErrComparisonNeedsDeviations)

	opts.StdDev = true
	assert.NoError(t, opts.Validate())
}

func TestExtractOptionsValidate(t *testing.T) {
	opts := DefaultExtractOptions()
	var ve models.ValidationErrors
	require.ErrorAs(t, opts.Validate(), &ve)
	assert.Equal(t, "input_file", ve[0].Field)

	opts.InputFile = "runs.json"
	assert.NoError(t, opts.Validate())

	opts.Seeds = []int{16, 0}
	assert.Error(t, opts.Validate())

	opts.Seeds = DefaultSeeds
	opts.Threshold = 1.5
	assert.Error(t, opts.Validate())
}

func TestComputeMeansOnly(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(output.DefaultPrecision, zerolog.Nop())

	result, err := p.Compute(context.Background(), ComputeOptions{
		InputFile:    writeFile(t, dir, "est.json", `[{"num_seed": 16, "avg_distance": 2}, {"num_seed": 32, "avg_distance": 3}]`),
		OutputPrefix: filepath.Join(dir, "means"),
		Tabular:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, summary.StageMeans.String(), result.Stage)
	assert.Equal(t, []string{filepath.Join(dir, "means.json"), filepath.Join(dir, "means.csv")}, result.OutputFiles)
}

func TestExtractKeepsFullPrecision(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(output.DefaultPrecision, zerolog.Nop())

	result, err := p.Extract(context.Background(), ExtractOptions{
		InputFile: writeFile(t, dir, "runs.json", `[{
			"collision_table": {"0": [1, 1, 1], "1": [2, 2, 2]},
			"last_hops": [1, 1, 1],
			"nodes": 3,
			"seeds_time": [4e-6, 2e-6, 3e-6]
		}]`),
		OutputPrefix: filepath.Join(dir, "out"),
		Seeds:        []int{3},
		Threshold:    0.9,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(result.OutputFile)
	require.NoError(t, err)
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)

	elapsed, ok := records[0]["time"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 3e-6, elapsed, 1e-15)
}
