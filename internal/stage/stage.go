// Package stage owns the on-disk lifecycle of pipeline data: directory
// layout, status markers, page writing and streaming page reads.
//
// Layout:
//
//	<root>/<stage>/[<strategy>/]<symbol>/<YYYYMMDD>_<YYYYMMDD>/page_<N>.<ext>
//	<root>/<stage>/[<strategy>/]<symbol>/<YYYYMMDD>_<YYYYMMDD>/.<marker>
package stage

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Name identifies a pipeline stage and is also its directory name.
type Name string

const (
	DataIngest           Name = "data_ingest"
	FeatureEngineering   Name = "feature_engineering"
	Backtest             Name = "backtest"
	StrategyOptimization Name = "strategy_optimization"
	ResultsAnalysis      Name = "results_analysis"
	StrategySelection    Name = "strategy_selection"
	StrategyMetrics      Name = "strategy_metrics"
)

// Marker is a status file name inside a date-range directory.
type Marker string

const (
	MarkerIngested   Marker = ".ingested"
	MarkerPrepared   Marker = ".prepared"
	MarkerBacktested Marker = ".backtested"
	MarkerOptimized  Marker = ".optimized"
	MarkerSelected   Marker = ".selected"
	MarkerDone       Marker = ".done"
)

// ErrorMarker returns the marker carrying the failure reason of a phase.
func ErrorMarker(phase string) Marker {
	return Marker(".error." + phase)
}

// Descriptor declares the schema contract and bookkeeping of a stage.
type Descriptor struct {
	Name Name
	// Marker is written when a (strategy, symbol) unit completes.
	Marker Marker
	// Phase names the error marker, e.g. .error.ingest.
	Phase string
	// StrategyScoped stages nest a strategy directory above the symbol.
	StrategyScoped bool
	// RenameMap normalises incoming column names before validation.
	RenameMap map[string]string
	// RequiredInputColumns must be present in every page consumed by the stage.
	RequiredInputColumns []string
	// DropUnknownColumns removes columns outside KnownColumns.
	DropUnknownColumns bool
	KnownColumns       []string
}

var ohlcv = []string{types.ColumnOpen, types.ColumnHigh, types.ColumnLow, types.ColumnClose, types.ColumnVolume}

var descriptors = []Descriptor{
	{
		Name:   DataIngest,
		Marker: MarkerIngested,
		Phase:  "ingest",
		RenameMap: map[string]string{
			"o": types.ColumnOpen, "h": types.ColumnHigh, "l": types.ColumnLow, "c": types.ColumnClose, "v": types.ColumnVolume,
			"Open": types.ColumnOpen, "High": types.ColumnHigh, "Low": types.ColumnLow, "Close": types.ColumnClose, "Volume": types.ColumnVolume,
		},
		RequiredInputColumns: ohlcv,
		DropUnknownColumns:   true,
		KnownColumns:         append([]string{types.ColumnSymbol, types.ColumnStrategy}, ohlcv...),
	},
	{
		Name:                 FeatureEngineering,
		Marker:               MarkerPrepared,
		Phase:                "features",
		RequiredInputColumns: ohlcv,
	},
	{
		Name:                 Backtest,
		Marker:               MarkerBacktested,
		Phase:                "backtest",
		StrategyScoped:       true,
		RequiredInputColumns: []string{types.ColumnClose},
	},
	{
		Name:                 StrategyOptimization,
		Marker:               MarkerOptimized,
		Phase:                "optimization",
		StrategyScoped:       true,
		RequiredInputColumns: []string{types.ColumnClose},
	},
	{
		Name:           ResultsAnalysis,
		Marker:         MarkerDone,
		Phase:          "analysis",
		StrategyScoped: true,
	},
	{
		Name:   StrategySelection,
		Marker: MarkerSelected,
		Phase:  "selection",
	},
	{
		Name:                 StrategyMetrics,
		Marker:               MarkerDone,
		Phase:                "portfolio",
		StrategyScoped:       true,
		RequiredInputColumns: []string{types.ColumnClose},
	},
}

// All returns every stage in pipeline order.
func All() []Name {
	names := make([]Name, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name
	}

	return names
}

// Describe returns the descriptor of a stage.
func Describe(name Name) (Descriptor, error) {
	for _, d := range descriptors {
		if d.Name == name {
			return d, nil
		}
	}

	return Descriptor{}, errors.Newf(errors.ErrCodeUnknownStage, "unknown stage %q", name)
}

// MustDescribe is Describe for the stage constants above.
func MustDescribe(name Name) Descriptor {
	d, err := Describe(name)
	if err != nil {
		panic(err)
	}

	return d
}
