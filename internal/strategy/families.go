package strategy

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/condition"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logic"
)

const (
	FamilyMomentum       = "MomentumStrategy"
	FamilyMeanReversion  = "MeanReversionStrategy"
	FamilyTrendFollowing = "TrendFollowingStrategy"
	FamilyBreakout       = "BreakoutStrategy"
)

// MomentumCombinator enters on MACD or moving-average crosses in an up
// trend and leaves on the opposite cross or an overbought RSI.
func MomentumCombinator(registry *condition.Registry) *Combinator {
	return &Combinator{
		Family:           FamilyMomentum,
		Filters:          []condition.Kind{condition.KindVolumeSurge, condition.KindTimeOfDayFilter},
		Entries:          []condition.Kind{condition.KindMACDBullishCross, condition.KindMACrossover},
		Trends:           []condition.Kind{condition.KindPriceAboveSMA, condition.KindSMASlopeUp},
		Exits:            []condition.Kind{condition.KindMACDBearishCross, condition.KindRSIAbove},
		Logics:           []logic.Kind{logic.KindTrailingStop},
		AllowEmptyFilter: true,
		AllowEmptyTrend:  true,
		AllowEmptyLogic:  true,
		ExitMode:         ExitAny,
		Registry:         registry,
	}
}

// MeanReversionCombinator buys oversold dips in calm regimes and sells the
// rebound, with a cooldown after each exit.
func MeanReversionCombinator(registry *condition.Registry) *Combinator {
	return &Combinator{
		Family:  FamilyMeanReversion,
		Filters: []condition.Kind{condition.KindVolatilityRegime, condition.KindDayOfWeekFilter},
		Entries: []condition.Kind{
			condition.KindRSIBelow, condition.KindBollingerLowerBreak,
			condition.KindVWAPReversion, condition.KindReturnDrop,
		},
		Exits:            []condition.Kind{condition.KindRSIAbove, condition.KindBollingerUpperBreak, condition.KindPriceAboveSMA},
		Logics:           []logic.Kind{logic.KindMeanReversion},
		AllowEmptyFilter: true,
		AllowEmptyLogic:  true,
		ExitMode:         ExitAny,
		Registry:         registry,
	}
}

// TrendFollowingCombinator rides rising averages and trails an ATR stop.
func TrendFollowingCombinator(registry *condition.Registry) *Combinator {
	return &Combinator{
		Family:           FamilyTrendFollowing,
		Filters:          []condition.Kind{condition.KindVolatilityRegime},
		Entries:          []condition.Kind{condition.KindMACrossover, condition.KindPriceAboveSMA},
		Trends:           []condition.Kind{condition.KindSMASlopeUp},
		Exits:            []condition.Kind{condition.KindMACrossunder, condition.KindPriceBelowSMA},
		Logics:           []logic.Kind{logic.KindMACDTrailing, logic.KindTrailingStop},
		AllowEmptyFilter: true,
		AllowEmptyTrend:  true,
		ExitMode:         ExitAny,
		Registry:         registry,
	}
}

// BreakoutCombinator buys band breaks on heavy volume. Signal exits only
// fire on surge bars; the trailing stop covers the rest.
func BreakoutCombinator(registry *condition.Registry) *Combinator {
	return &Combinator{
		Family:   FamilyBreakout,
		Filters:  []condition.Kind{condition.KindVolumeSurge},
		Entries:  []condition.Kind{condition.KindBollingerUpperBreak, condition.KindMACrossover},
		Trends:   []condition.Kind{condition.KindPriceAboveSMA},
		Exits:    []condition.Kind{condition.KindBollingerLowerBreak, condition.KindPriceBelowSMA},
		Logics:   []logic.Kind{logic.KindTrailingStop},
		ExitMode: ExitAllFiltered,
		Registry: registry,
	}
}

// Families returns the built-in combinators sharing one registry.
func Families(registry *condition.Registry) []*Combinator {
	if registry == nil {
		registry = condition.DefaultRegistry()
	}

	return []*Combinator{
		MomentumCombinator(registry),
		MeanReversionCombinator(registry),
		TrendFollowingCombinator(registry),
		BreakoutCombinator(registry),
	}
}
