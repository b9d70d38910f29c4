package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gilchrisn/hopstats/pkg/models"
)

// LoadRawRuns loads the simulator output (a JSON array of runs) and
// validates the structure of every run
func LoadRawRuns(filePath string) ([]*models.RawRun, error) {
	var runs []*models.RawRun
	if err := loadJSON(filePath, "raw runs", &runs); err != nil {
		return nil, err
	}

	if err := ValidateRawRuns(runs); err != nil {
		return nil, fmt.Errorf("raw runs validation failed: %w", err)
	}

	return runs, nil
}

// LoadAdditionalInfo loads the names of the source fields copied into every
// RunRecord. The file holds either a JSON object whose values are the field
// names or a plain array of names. An empty path means no additional field.
func LoadAdditionalInfo(filePath string) ([]string, error) {
	if filePath == "" {
		return nil, nil
	}

	data, err := readFile(filePath, "additional info")
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		var byKey map[string]string
		if err := json.Unmarshal(data, &byKey); err != nil {
			return nil, fmt.Errorf("failed to parse additional info JSON: %w", err)
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			names = append(names, byKey[k])
		}
	}

	var errors models.ValidationErrors
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, models.ValidationError{
				Field:   "additional_information",
				Message: "field name cannot be empty or whitespace",
				Value:   fmt.Sprintf("entry %d", i),
			})
		}
	}
	if len(errors) > 0 {
		return nil, fmt.Errorf("additional info validation failed: %w", errors)
	}

	return names, nil
}

// LoadAggregatedRuns loads the RunRecords produced by the extraction stage
func LoadAggregatedRuns(filePath string) ([]models.AggregatedRun, error) {
	var runs []models.AggregatedRun
	if err := loadJSON(filePath, "estimation", &runs); err != nil {
		return nil, err
	}

	if err := ValidateAggregatedRuns(runs); err != nil {
		return nil, fmt.Errorf("estimation validation failed: %w", err)
	}

	return runs, nil
}

// LoadGroundTruth loads the exact measures and checks all four are present
func LoadGroundTruth(filePath string) (*models.GroundTruth, error) {
	var gt models.GroundTruth
	if err := loadJSON(filePath, "exact measures", &gt); err != nil {
		return nil, err
	}

	if err := gt.Validate(); err != nil {
		return nil, fmt.Errorf("exact measures validation failed: %w", err)
	}

	return &gt, nil
}

// LoadLabels loads the column relabeling table (column name -> new label)
func LoadLabels(filePath string) (map[string]string, error) {
	labels := make(map[string]string)
	if err := loadJSON(filePath, "label", &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// ValidateRawRuns checks the fields every reduction needs
func ValidateRawRuns(runs []*models.RawRun) error {
	if len(runs) == 0 {
		return models.ValidationError{Field: "runs", Message: "at least one run is required"}
	}

	var errors models.ValidationErrors
	for i, run := range runs {
		value := fmt.Sprintf("run %d", i)
		if run == nil {
			errors = append(errors, models.ValidationError{Field: "runs", Message: "run cannot be null", Value: value})
			continue
		}
		if len(run.CollisionTable.Rows) == 0 {
			errors = append(errors, models.ValidationError{Field: "collision_table", Message: "collision table cannot be empty", Value: value})
		}
		if len(run.LastHops) == 0 {
			errors = append(errors, models.ValidationError{Field: "last_hops", Message: "at least one trial is required", Value: value})
		}
		for _, hop := range run.LastHops {
			if hop < 0 {
				errors = append(errors, models.ValidationError{Field: "last_hops", Message: "last hop cannot be negative", Value: value})
				break
			}
		}
		if len(run.SeedsTime) == 0 {
			errors = append(errors, models.ValidationError{Field: "seeds_time", Message: "at least one elapsed time is required", Value: value})
		}
		if run.Nodes < 0 {
			errors = append(errors, models.ValidationError{Field: "nodes", Message: "node count cannot be negative", Value: value})
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// ValidateAggregatedRuns checks every run carries a positive seed count
func ValidateAggregatedRuns(runs []models.AggregatedRun) error {
	var errors models.ValidationErrors
	for i, run := range runs {
		if run.NumSeed == nil {
			errors = append(errors, models.ValidationError{
				Field:   "num_seed",
				Message: "every run must carry num_seed",
				Value:   fmt.Sprintf("run %d", i),
			})
			continue
		}
		if *run.NumSeed <= 0 {
			errors = append(errors, models.ValidationError{
				Field:   "num_seed",
				Message: "seed count must be positive",
				Value:   fmt.Sprintf("run %d: %d", i, *run.NumSeed),
			})
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func loadJSON(filePath, what string, v interface{}) error {
	data, err := readFile(filePath, what)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s JSON: %w", what, err)
	}
	return nil
}

func readFile(filePath, what string) ([]byte, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file does not exist: %s", what, filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", what, err)
	}
	return data, nil
}
