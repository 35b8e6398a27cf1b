package evaluation

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

const (
	// EvaluationFile holds one strategy's cross-window evaluation.
	EvaluationFile = "evaluation_result.json"
	// SummaryFile holds a symbol's selection, and under strategy_metrics the
	// portfolio recommendation.
	SummaryFile = "summary_result.json"
	// AllocatorFile lists every allocator's portfolio evaluation.
	AllocatorFile = "allocator_result.json"
)

// Candidate is how one strategy ranked during selection.
type Candidate struct {
	ViabilityScore   float64 `json:"viability_score"`
	ParamConsistency float64 `json:"param_consistency"`
	IsViable         bool    `json:"is_viable"`
}

// SymbolSummary is the content of a symbol's summary_result.json: the
// selected strategy and its evaluation.
type SymbolSummary struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	StrategyEvaluation
	Candidates map[string]Candidate `json:"candidates"`
}

// SelectStrategy picks the strategy with the highest viability score,
// breaking ties on param consistency and then on name.
func (a *Aggregator) SelectStrategy(symbol string, evaluations map[string]StrategyEvaluation) (SymbolSummary, error) {
	if len(evaluations) == 0 {
		return SymbolSummary{}, errors.Newf(errors.ErrCodeDataNotFound, "%s has no strategy evaluations", symbol)
	}

	names := make([]string, 0, len(evaluations))
	candidates := make(map[string]Candidate, len(evaluations))
	for name, ev := range evaluations {
		names = append(names, name)
		candidates[name] = Candidate{
			ViabilityScore:   ev.ViabilityScore,
			ParamConsistency: ev.ParamConsistency,
			IsViable:         ev.IsViable,
		}
	}

	slices.SortFunc(names, func(x, y string) int {
		ex, ey := evaluations[x], evaluations[y]
		if c := cmp.Compare(ey.ViabilityScore, ex.ViabilityScore); c != 0 {
			return c
		}

		if c := cmp.Compare(ey.ParamConsistency, ex.ParamConsistency); c != 0 {
			return c
		}

		return cmp.Compare(x, y)
	})

	selected := names[0]
	a.logger.Info("Selected strategy",
		zap.String("symbol", symbol),
		zap.String("strategy", selected),
		zap.Float64("viability_score", evaluations[selected].ViabilityScore),
		zap.Float64("param_consistency", evaluations[selected].ParamConsistency),
	)

	return SymbolSummary{
		Symbol:             symbol,
		Strategy:           selected,
		StrategyEvaluation: evaluations[selected],
		Candidates:         candidates,
	}, nil
}

func WriteEvaluation(path string, ev StrategyEvaluation) error {
	return stage.WriteJSON(path, ev)
}

func ReadEvaluation(path string) (StrategyEvaluation, error) {
	var ev StrategyEvaluation
	err := stage.ReadJSON(path, &ev)

	return ev, err
}

func WriteSymbolSummary(path string, s SymbolSummary) error {
	return stage.WriteJSON(path, s)
}

func ReadSymbolSummary(path string) (SymbolSummary, error) {
	var s SymbolSummary
	if err := stage.ReadJSON(path, &s); err != nil {
		return SymbolSummary{}, err
	}

	if s.Strategy == "" {
		return SymbolSummary{}, errors.Newf(errors.ErrCodeSchemaViolation, "%s names no strategy", path)
	}

	return s, nil
}
