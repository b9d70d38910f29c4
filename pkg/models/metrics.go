package models

// Metric is one of the per-run quantities the aggregator summarizes
type Metric int

const (
	AvgDistance Metric = iota
	EffectiveDiameter
	LowerBoundDiameter
	TotalCouples
	MemoryUsed
	Time
)

// AllMetrics lists every summarized metric in output order
var AllMetrics = []Metric{AvgDistance, EffectiveDiameter, LowerBoundDiameter, TotalCouples, MemoryUsed, Time}

// ComparedMetrics have a ground truth counterpart
var ComparedMetrics = []Metric{AvgDistance, EffectiveDiameter, LowerBoundDiameter, TotalCouples}

// Key is the snake_case field name used in run files and ground truth files
func (m Metric) Key() string {
	switch m {
	case AvgDistance:
		return "avg_distance"
	case EffectiveDiameter:
		return "effective_diameter"
	case LowerBoundDiameter:
		return "lower_bound"
	case TotalCouples:
		return "total_couples"
	case MemoryUsed:
		return "memory_used"
	case Time:
		return "time"
	}
	return "unknown"
}

// Label is the CamelCase suffix used in tabular column names
func (m Metric) Label() string {
	switch m {
	case AvgDistance:
		return "AvgDistance"
	case EffectiveDiameter:
		return "EffectiveDiameter"
	case LowerBoundDiameter:
		return "LowerBoundDiameter"
	case TotalCouples:
		return "TotalCouples"
	case MemoryUsed:
		return "MaxMemoryUsed"
	case Time:
		return "Time"
	}
	return "Unknown"
}

func (m Metric) String() string { return m.Key() }

// Compared reports whether the metric has a ground truth counterpart
func (m Metric) Compared() bool {
	return m <= TotalCouples
}
