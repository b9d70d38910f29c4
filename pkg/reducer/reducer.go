// Package reducer derives the per-run distance metrics from a hop-indexed
// collision table.
package reducer

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hopstats/pkg/models"
)

// Reducer turns raw runs into RunRecords for a given active seed count
type Reducer struct {
	Threshold float64
	// Fields are copied by name from the raw run into every record
	Fields []string
	Logger zerolog.Logger
}

// NewReducer creates a reducer with the default 0.9 threshold
func NewReducer(logger zerolog.Logger) *Reducer {
	return &Reducer{
		Threshold: models.DefaultThreshold,
		Logger:    logger,
	}
}

// runStats holds the intermediate values of one reduction
type runStats struct {
	seeds   int
	nodes   float64
	maxHop  int
	table   [][]float64
	total   float64
	percent float64
	avg     *float64
	effDiam *float64
	elapsed float64
}

// Reduce computes one RunRecord using the first k trials of run
func (r *Reducer) Reduce(run *models.RawRun, k int) (*models.RunRecord, error) {
	if err := r.validate(run, k); err != nil {
		return nil, err
	}

	s := &runStats{
		seeds:   k,
		nodes:   float64(run.Nodes),
		elapsed: meanPrefix(run.SeedsTime, k),
	}
	s.maxHop = maxPrefix(run.LastHops, k)
	s.table = run.CollisionTable.Rows[:s.maxHop+1]

	s.total = s.couples(s.maxHop)
	s.percent = s.total * r.Threshold
	s.avg = s.avgDistance()
	s.effDiam = s.effectiveDiameter(r.Threshold)

	extra, err := r.additionalFields(run)
	if err != nil {
		return nil, err
	}

	record := &models.RunRecord{
		AvgDistance:        s.avg,
		TotalCouples:       s.total,
		CouplesPercentage:  s.percent,
		LowerBoundDiameter: s.maxHop,
		EffectiveDiameter:  s.effDiam,
		Threshold:          r.Threshold,
		NumSeed:            k,
		Time:               s.elapsed,
		Extra:              extra,
	}

	event := r.Logger.Debug().
		Int("num_seed", k).
		Float64("total_couples", s.total).
		Float64("total_couples_perc", s.percent).
		Int("lower_bound", s.maxHop)
	if s.avg != nil {
		event = event.Float64("avg_distance", *s.avg)
	}
	if s.effDiam != nil {
		event = event.Float64("effective_diameter", *s.effDiam)
	}
	event.Msg("Run reduced")

	if s.avg == nil {
		r.Logger.Warn().Int("num_seed", k).Msg("No reachable couples, distance metrics undefined")
	}

	return record, nil
}

// ReduceAll reduces every run for every seed count, seed-major
func (r *Reducer) ReduceAll(runs []*models.RawRun, seeds []int) ([]*models.RunRecord, error) {
	records := make([]*models.RunRecord, 0, len(runs)*len(seeds))
	for _, k := range seeds {
		for i, run := range runs {
			record, err := r.Reduce(run, k)
			if err != nil {
				return nil, fmt.Errorf("run %d with %d seeds: %w", i, k, err)
			}
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *Reducer) validate(run *models.RawRun, k int) error {
	var errors models.ValidationErrors

	if k <= 0 {
		return models.ValidationError{Field: "num_seed", Message: "active seed count must be positive", Value: fmt.Sprintf("%d", k)}
	}
	if r.Threshold <= 0 || r.Threshold > 1 {
		return models.ValidationError{Field: "threshold", Message: "threshold must be in (0, 1]", Value: fmt.Sprintf("%g", r.Threshold)}
	}
	if len(run.LastHops) < k {
		errors = append(errors, models.ValidationError{
			Field:   "last_hops",
			Message: fmt.Sprintf("need at least %d trials, found %d", k, len(run.LastHops)),
		})
	}
	if len(run.SeedsTime) == 0 {
		errors = append(errors, models.ValidationError{Field: "seeds_time", Message: "at least one elapsed time is required"})
	}
	if run.Nodes < 0 {
		errors = append(errors, models.ValidationError{Field: "nodes", Message: "node count cannot be negative", Value: fmt.Sprintf("%d", run.Nodes)})
	}
	if len(errors) > 0 {
		return errors
	}

	maxHop := maxPrefix(run.LastHops, k)
	rows := run.CollisionTable.Rows
	if maxHop < 0 || len(rows) <= maxHop {
		return models.ValidationError{
			Field:   "collision_table",
			Message: fmt.Sprintf("table has %d hop rows, last hop reached is %d", len(rows), maxHop),
		}
	}
	for hop := 0; hop <= maxHop; hop++ {
		if len(rows[hop]) < k {
			errors = append(errors, models.ValidationError{
				Field:   "collision_table",
				Message: fmt.Sprintf("hop %d has %d trials, need %d", hop, len(rows[hop]), k),
			})
			continue
		}
		for _, c := range rows[hop][:k] {
			if c < 0 {
				errors = append(errors, models.ValidationError{
					Field:   "collision_table",
					Message: fmt.Sprintf("hop %d has a negative collision count", hop),
					Value:   fmt.Sprintf("%g", c),
				})
				break
			}
		}
	}
	if len(errors) > 0 {
		return errors
	}
	return nil
}

// additionalFields copies the configured source fields verbatim
func (r *Reducer) additionalFields(run *models.RawRun) (map[string]json.RawMessage, error) {
	if len(r.Fields) == 0 {
		return nil, nil
	}
	extra := make(map[string]json.RawMessage, len(r.Fields))
	for _, name := range r.Fields {
		value, ok := run.Fields[name]
		if !ok {
			return nil, models.ValidationError{Field: name, Message: "additional field missing from run"}
		}
		extra[name] = value
	}
	return extra, nil
}

// couples extrapolates the collisions at hop to the whole node population
func (s *runStats) couples(hop int) float64 {
	sum := 0.0
	for _, c := range s.table[hop][:s.seeds] {
		sum += c
	}
	return sum * s.nodes / float64(s.seeds)
}

// avgDistance is the expected hop distance over the reachability
// distribution; nil when nothing is reachable.
func (s *runStats) avgDistance() *float64 {
	if s.total == 0 {
		return nil
	}
	weighted := 0.0
	previous := s.couples(0)
	for hop := 1; hop <= s.maxHop; hop++ {
		current := s.couples(hop)
		weighted += float64(hop) * (current - previous)
		previous = current
	}
	avg := weighted / s.total
	return &avg
}

// effectiveDiameter interpolates the hop at which a threshold fraction of
// all reachable couples has been reached
func (s *runStats) effectiveDiameter(threshold float64) *float64 {
	if len(s.table) == 0 {
		return nil
	}
	final := s.couples(s.maxHop)
	if final == 0 {
		return nil
	}
	if s.maxHop == 0 {
		zero := 0.0
		return &zero
	}

	d := 1
	for d < s.maxHop && s.couples(d)/final < threshold {
		d++
	}

	couplesD := s.couples(d)
	previousD := s.couples(d - 1)

	result := float64(d-1) + interpolate(previousD, couplesD, s.percent)
	if result < 0 {
		result = 0
	}
	return &result
}

// interpolate returns the fraction of the way y lies between y0 and y1,
// 0 when the segment is flat
func interpolate(y0, y1, y float64) float64 {
	if y1-y0 == 0 {
		return 0
	}
	return (y - y0) / (y1 - y0)
}

func maxPrefix(values []int, k int) int {
	if k > len(values) {
		k = len(values)
	}
	if k == 0 {
		return -1
	}
	m := values[0]
	for _, v := range values[1:k] {
		if v > m {
			m = v
		}
	}
	return m
}

// meanPrefix averages the first k values, or all of them when fewer exist
func meanPrefix(values []float64, k int) float64 {
	if k > len(values) {
		k = len(values)
	}
	if k == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values[:k] {
		sum += v
	}
	return sum / float64(k)
}
