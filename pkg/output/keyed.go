package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/summary"
)

// Entry names of the keyed summary besides the per-metric value entries
const (
	EntryResiduals          = "residuals"
	EntryConfidenceInterval = "confidence_Interval"
	EntryTTest              = "Ttest"
	EntryWilcoxon           = "Wilcoxon"
)

// GroupSummary is the keyed-JSON view of one group's summary
type GroupSummary struct {
	// Values maps a value entry (MeanAvgDistance, ..., avgTime) to
	// [mean] or [mean, std]
	Values             map[string][]*float64
	Residuals          map[string]*float64
	ConfidenceInterval map[string]*float64
	TTest              map[string]*float64
	Wilcoxon           map[string]*float64
}

// ValueEntry names the [mean, std] entry of metric m
func ValueEntry(m models.Metric) string {
	if m == models.Time {
		return "avgTime"
	}
	return "Mean" + m.Label()
}

// Summarize converts a report into keyed group summaries, rounded to
// precision digits
func Summarize(report *summary.Report, precision int) map[models.GroupKey]*GroupSummary {
	out := make(map[models.GroupKey]*GroupSummary, len(report.Results))
	for _, res := range report.Results {
		out[res.Key()] = summarizeResult(res, precision)
	}
	return out
}

func summarizeResult(res summary.Result, precision int) *GroupSummary {
	round := func(v float64, ok bool) *float64 {
		if !defined(v, ok) {
			return nil
		}
		r := Round(v, precision)
		return &r
	}

	gs := &GroupSummary{Values: make(map[string][]*float64, len(models.AllMetrics))}
	for _, m := range models.AllMetrics {
		values := []*float64{round(res.Mean(m))}
		if d, ok := res.(summary.WithDeviations); ok {
			values = append(values, round(d.StdDev(m)))
		}
		gs.Values[ValueEntry(m)] = values
	}

	if c, ok := res.(summary.WithComparison); ok {
		gs.Residuals = make(map[string]*float64, len(models.ComparedMetrics))
		gs.ConfidenceInterval = make(map[string]*float64, len(models.ComparedMetrics))
		for _, m := range models.ComparedMetrics {
			gs.Residuals[m.Key()] = round(c.Residual(m))
			gs.ConfidenceInterval[m.Key()] = round(c.ConfidenceInterval(m))
		}
	}

	if t, ok := res.(summary.WithTests); ok {
		gs.TTest = make(map[string]*float64, len(models.ComparedMetrics))
		gs.Wilcoxon = make(map[string]*float64, len(models.ComparedMetrics))
		for _, m := range models.ComparedMetrics {
			gs.TTest[m.Key()] = round(t.TTest(m))
			gs.Wilcoxon[m.Key()] = round(t.Wilcoxon(m))
		}
	}
	return gs
}

// Flatten joins group key and entry name with colons into one flat object
func Flatten(groups map[models.GroupKey]*GroupSummary) map[string]interface{} {
	flat := make(map[string]interface{})
	for key, gs := range groups {
		prefix := key.String() + ":"
		for entry, values := range gs.Values {
			flat[prefix+entry] = values
		}
		if gs.Residuals != nil {
			flat[prefix+EntryResiduals] = gs.Residuals
		}
		if gs.ConfidenceInterval != nil {
			flat[prefix+EntryConfidenceInterval] = gs.ConfidenceInterval
		}
		if gs.TTest != nil {
			flat[prefix+EntryTTest] = gs.TTest
		}
		if gs.Wilcoxon != nil {
			flat[prefix+EntryWilcoxon] = gs.Wilcoxon
		}
	}
	return flat
}

// WriteKeyed writes the summaries to <prefix>.json, keyed
// algorithm:direction:seedCount:entry
func (fw *FileWriter) WriteKeyed(report *summary.Report, prefix string) (string, error) {
	path := prefix + ".json"
	return path, writeJSON(path, Flatten(Summarize(report, fw.Precision)))
}

// ReadKeyed parses a keyed summary file written by WriteKeyed
func ReadKeyed(path string) (map[models.GroupKey]*GroupSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyed summary: %w", err)
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse keyed summary JSON: %w", err)
	}

	groups := make(map[models.GroupKey]*GroupSummary)
	for name, raw := range flat {
		key, entry, err := ParseKey(name)
		if err != nil {
			return nil, err
		}
		gs, ok := groups[key]
		if !ok {
			gs = &GroupSummary{Values: make(map[string][]*float64)}
			groups[key] = gs
		}
		if err := gs.decodeEntry(entry, raw); err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", name, err)
		}
	}
	return groups, nil
}

func (gs *GroupSummary) decodeEntry(entry string, raw json.RawMessage) error {
	var target *map[string]*float64
	switch entry {
	case EntryResiduals:
		target = &gs.Residuals
	case EntryConfidenceInterval:
		target = &gs.ConfidenceInterval
	case EntryTTest:
		target = &gs.TTest
	case EntryWilcoxon:
		target = &gs.Wilcoxon
	default:
		if !isValueEntry(entry) {
			return fmt.Errorf("unknown entry %q", entry)
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return err
		}
		gs.Values[entry] = values
		return nil
	}
	return json.Unmarshal(raw, target)
}

func isValueEntry(entry string) bool {
	for _, m := range models.AllMetrics {
		if ValueEntry(m) == entry {
			return true
		}
	}
	return false
}

// ParseKey splits algorithm:direction:seedCount:entry. The algorithm name
// may itself contain colons.
func ParseKey(name string) (models.GroupKey, string, error) {
	parts := strings.Split(name, ":")
	if len(parts) < 4 {
		return models.GroupKey{}, "", fmt.Errorf("malformed summary key %q", name)
	}
	n := len(parts)
	seeds, err := strconv.Atoi(parts[n-2])
	if err != nil {
		return models.GroupKey{}, "", fmt.Errorf("malformed seed count in summary key %q: %w", name, err)
	}
	key := models.GroupKey{
		Algorithm: strings.Join(parts[:n-3], ":"),
		Direction: parts[n-3],
		SeedCount: seeds,
	}
	return key, parts[n-1], nil
}
