package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Default cohort values used when aggregated runs carry no algorithm/direction
const (
	DefaultAlgorithm = "default"
	DefaultDirection = "out"
	DefaultThreshold = 0.9
)

// RawRun is one simulation run as emitted by the estimator
type RawRun struct {
	CollisionTable CollisionTable             `json:"collision_table"`
	LastHops       []int                      `json:"last_hops"`
	Nodes          int                        `json:"nodes"`
	NodeIDs        json.RawMessage            `json:"node_ids,omitempty"`
	SeedsTime      []float64                  `json:"seeds_time"`
	Fields         map[string]json.RawMessage `json:"-"` // every source field, for additional info copies
}

// UnmarshalJSON decodes the known fields and keeps the whole object in Fields
func (r *RawRun) UnmarshalJSON(data []byte) error {
	type plain RawRun
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = RawRun(p)
	r.Fields = fields
	return nil
}

// CollisionTable is hop-major: Rows[hop][trial] = collision count
type CollisionTable struct {
	Rows [][]float64
}

// UnmarshalJSON accepts either a trial-major matrix ([[...],[...]]) which is
// transposed, or a hop-major object keyed by hop index ({"0": [...]}).
func (t *CollisionTable) UnmarshalJSON(data []byte) error {
	var matrix [][]float64
	if err := json.Unmarshal(data, &matrix); err == nil {
		t.Rows = TransposeTable(matrix)
		return nil
	}

	var byHop map[string][]float64
	if err := json.Unmarshal(data, &byHop); err != nil {
		return fmt.Errorf("collision table must be a matrix or an object keyed by hop: %w", err)
	}

	rows, err := HopMajorRows(byHop)
	if err != nil {
		return err
	}
	t.Rows = rows
	return nil
}

// MarshalJSON writes the table in hop-major object form
func (t CollisionTable) MarshalJSON() ([]byte, error) {
	byHop := make(map[string][]float64, len(t.Rows))
	for hop, row := range t.Rows {
		byHop[fmt.Sprintf("%d", hop)] = row
	}
	return json.Marshal(byHop)
}

// TransposeTable turns a trial-major matrix into hop-major rows
func TransposeTable(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return [][]float64{}
	}
	hops := len(m[0])
	for _, trial := range m[1:] {
		if len(trial) < hops {
			hops = len(trial)
		}
	}

	rows := make([][]float64, hops)
	for hop := 0; hop < hops; hop++ {
		rows[hop] = make([]float64, len(m))
		for trial := range m {
			rows[hop][trial] = m[trial][hop]
		}
	}
	return rows
}

// HopMajorRows converts a hop-keyed object into rows 0..n-1, n being the
// first hop index missing from the object. Keys past that gap are ignored;
// the reducer rejects tables whose rows stop before the last hop reached.
func HopMajorRows(byHop map[string][]float64) ([][]float64, error) {
	index := make(map[int][]float64, len(byHop))
	for key, row := range byHop {
		hop, err := strconv.Atoi(key)
		if err != nil || strconv.Itoa(hop) != key || hop < 0 {
			return nil, ValidationError{Field: "collision_table", Message: "hop keys must be non-negative decimal integers", Value: key}
		}
		index[hop] = row
	}

	rows := make([][]float64, 0, len(index))
	for hop := 0; ; hop++ {
		row, ok := index[hop]
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RunRecord is the output of the reducer for one run and one seed count.
// AvgDistance and EffectiveDiameter are nil when no couple is reachable.
type RunRecord struct {
	AvgDistance        *float64                   `json:"avg_distance"`
	TotalCouples       float64                    `json:"total_couples"`
	CouplesPercentage  float64                    `json:"total_couples_perc"`
	LowerBoundDiameter int                        `json:"lower_bound"`
	EffectiveDiameter  *float64                   `json:"effective_diameter"`
	Threshold          float64                    `json:"threshold"`
	NumSeed            int                        `json:"num_seed"`
	Time               float64                    `json:"time"`
	Extra              map[string]json.RawMessage `json:"-"`
}

// MarshalJSON flattens Extra next to the derived metrics
func (r RunRecord) MarshalJSON() ([]byte, error) {
	type plain RunRecord
	core, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return core, nil
	}

	merged := make(map[string]json.RawMessage, len(r.Extra)+8)
	for k, v := range r.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(core, &fields); err != nil {
		return nil, err
	}
	// derived metrics win over copied fields with the same name
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// AggregatedRun is the stage-two view of a RunRecord
type AggregatedRun struct {
	NumSeed           *int     `json:"num_seed"`
	Algorithm         *string  `json:"algorithm,omitempty"`
	Direction         *string  `json:"direction,omitempty"`
	AvgDistance       *float64 `json:"avg_distance,omitempty"`
	EffectiveDiameter *float64 `json:"effective_diameter,omitempty"`
	LowerBound        *float64 `json:"lower_bound,omitempty"`
	TotalCouples      *float64 `json:"total_couples,omitempty"`
	MemoryUsed        *float64 `json:"memory_used,omitempty"`
	Time              *float64 `json:"time,omitempty"`
}

// Value returns the sample value for metric m, if the run carries it
func (r AggregatedRun) Value(m Metric) (float64, bool) {
	var v *float64
	switch m {
	case AvgDistance:
		v = r.AvgDistance
	case EffectiveDiameter:
		v = r.EffectiveDiameter
	case LowerBoundDiameter:
		v = r.LowerBound
	case TotalCouples:
		v = r.TotalCouples
	case MemoryUsed:
		v = r.MemoryUsed
	case Time:
		v = r.Time
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// GroundTruth holds the exact measures estimates are compared with
type GroundTruth struct {
	AvgDistance       *float64 `json:"avg_distance"`
	EffectiveDiameter *float64 `json:"effective_diameter"`
	LowerBound        *float64 `json:"lower_bound"`
	TotalCouples      *float64 `json:"total_couples"`
}

// Value returns the exact measure for a compared metric
func (gt GroundTruth) Value(m Metric) (float64, bool) {
	var v *float64
	switch m {
	case AvgDistance:
		v = gt.AvgDistance
	case EffectiveDiameter:
		v = gt.EffectiveDiameter
	case LowerBoundDiameter:
		v = gt.LowerBound
	case TotalCouples:
		v = gt.TotalCouples
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Validate checks that every compared metric is present
func (gt GroundTruth) Validate() error {
	var errors ValidationErrors
	for _, m := range ComparedMetrics {
		if _, ok := gt.Value(m); !ok {
			errors = append(errors, ValidationError{Field: m.Key(), Message: "ground truth value is required"})
		}
	}
	if len(errors) > 0 {
		return errors
	}
	return nil
}

// GroupKey identifies one comparable cohort of runs
type GroupKey struct {
	Algorithm string `json:"algorithm"`
	Direction string `json:"direction"`
	SeedCount int    `json:"num_seed"`
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.Algorithm, k.Direction, k.SeedCount)
}

// ValidationError represents structured validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (ve ValidationError) Error() string {
	if ve.Value != "" {
		return fmt.Sprintf("validation error in field '%s': %s (value: %s)", ve.Field, ve.Message, ve.Value)
	}
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(ve), ve[0].Error(), len(ve)-1)
}
