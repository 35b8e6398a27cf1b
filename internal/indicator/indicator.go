// Package indicator computes the fixed library of rolling indicators used by
// the feature engineer. Every indicator is a deterministic function of the
// trailing Lookback() rows, so a value computed on a page with enough carried
// history equals the value computed on the full series.
package indicator

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
)

// Indicator interface defines methods that any technical indicator must implement
type Indicator interface {
	// Name returns the name of the indicator
	Name() types.IndicatorType
	// Config configures the indicator. The accepted parameters are documented per indicator.
	Config(params ...any) error
	// Lookback is the number of trailing rows, including the current one, a value depends on.
	Lookback() int
	// Columns lists the output columns in the order they are added.
	Columns() []string
	// RequiredColumns lists the input columns read by Compute.
	RequiredColumns() []string
	// Compute adds the output columns to f.
	Compute(f *frame.Frame) error
}
