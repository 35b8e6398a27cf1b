package optimizer

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Objective is one optimised metric.
type Objective struct {
	Metric    string          `json:"metric" yaml:"metric" validate:"required"`
	Direction types.Direction `json:"direction" yaml:"direction" validate:"oneof=maximize minimize"`
}

// NewObjectives pairs metric names with directions. A single direction
// applies to every metric.
func NewObjectives(metrics []string, directions []types.Direction) ([]Objective, error) {
	if len(metrics) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "at least one objective metric is required")
	}

	if len(directions) != 1 && len(directions) != len(metrics) {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "%d metrics but %d directions", len(metrics), len(directions))
	}

	objectives := make([]Objective, len(metrics))
	for i, metric := range metrics {
		d := directions[0]
		if len(directions) > 1 {
			d = directions[i]
		}

		if d != types.DirectionMaximize && d != types.DirectionMinimize {
			return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "invalid direction %q for %s", d, metric)
		}

		objectives[i] = Objective{Metric: types.CanonicalMetric(metric), Direction: d}
	}

	return objectives, nil
}

// Study records trials for a fixed set of objectives. It is safe for
// concurrent Ask/Tell.
type Study struct {
	objectives []Objective
	sampler    Sampler

	mu     sync.Mutex
	next   int
	trials []FrozenTrial
}

func NewStudy(objectives []Objective, sampler Sampler) *Study {
	return &Study{
		objectives: objectives,
		sampler:    sampler,
	}
}

func (s *Study) Objectives() []Objective {
	return slices.Clone(s.objectives)
}

// Ask starts a new trial.
func (s *Study) Ask() *LiveTrial {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &LiveTrial{
		number:  s.next,
		sampler: s.sampler,
		params:  make(map[string]any),
		started: time.Now(),
	}
	s.next++

	return t
}

// Tell finishes a trial. Missing, NaN and non-complete values are replaced by
// the worst admissible value of their objective.
func (s *Study) Tell(t *LiveTrial, metrics types.Metrics, state TrialState, cause error) FrozenTrial {
	values := make([]float64, len(s.objectives))
	for i, obj := range s.objectives {
		v := metrics.Get(obj.Metric)
		if state != TrialComplete || math.IsNaN(v) {
			v = obj.Direction.Worst()
		}

		values[i] = v
	}

	frozen := FrozenTrial{
		Number:   t.number,
		Params:   t.Params(),
		Values:   values,
		Metrics:  metrics,
		State:    state,
		Duration: time.Since(t.started),
	}

	if cause != nil {
		frozen.Error = cause.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trials = append(s.trials, frozen)
	slices.SortFunc(s.trials, func(a, b FrozenTrial) int { return a.Number - b.Number })

	return frozen
}

// Trials returns the finished trials ordered by number.
func (s *Study) Trials() []FrozenTrial {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.trials)
}

// BestTrial returns the best trial on the first objective among the Pareto
// front. With one objective this is the plain argmax/argmin; ties go to the
// earliest trial.
func (s *Study) BestTrial() (FrozenTrial, error) {
	front := s.ParetoFront()
	if len(front) == 0 {
		return FrozenTrial{}, errors.New(errors.ErrCodeNoCompletedTrials, "study has no trials")
	}

	primary := s.objectives[0].Direction
	best := front[0]
	for _, t := range front[1:] {
		if primary.Better(t.Values[0], best.Values[0]) {
			best = t
		}
	}

	return best, nil
}

// BestValue is the first objective value of BestTrial, or the worst value
// when the study is empty.
func (s *Study) BestValue() float64 {
	best, err := s.BestTrial()
	if err != nil {
		return s.objectives[0].Direction.Worst()
	}

	return best.Values[0]
}

func (s *Study) BestParams() map[string]any {
	best, err := s.BestTrial()
	if err != nil {
		return nil
	}

	return best.Params
}

// ParetoFront returns the non-dominated trials ordered by number. Trials with
// identical values are all kept.
func (s *Study) ParetoFront() []FrozenTrial {
	trials := s.Trials()

	var front []FrozenTrial
	for i, candidate := range trials {
		dominated := false
		for j, other := range trials {
			if i != j && s.dominates(other.Values, candidate.Values) {
				dominated = true
				break
			}
		}

		if !dominated {
			front = append(front, candidate)
		}
	}

	return front
}

// dominates reports whether a is no worse than b everywhere and better somewhere.
func (s *Study) dominates(a, b []float64) bool {
	better := false
	for k, obj := range s.objectives {
		if obj.Direction.Better(b[k], a[k]) {
			return false
		}

		if obj.Direction.Better(a[k], b[k]) {
			better = true
		}
	}

	return better
}
