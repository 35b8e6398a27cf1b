package marketdata

import (
	"fmt"
	"slices"
	"time"

	"github.com/polygon-io/client-go/rest/models"

	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Timeframe is the bar resolution requested from a source.
type Timeframe string

const (
	TimeframeOneMinute      Timeframe = "1m"
	TimeframeFiveMinutes    Timeframe = "5m"
	TimeframeFifteenMinutes Timeframe = "15m"
	TimeframeThirtyMinutes  Timeframe = "30m"
	TimeframeOneHour        Timeframe = "1h"
	TimeframeFourHours      Timeframe = "4h"
	TimeframeOneDay         Timeframe = "1d"
	TimeframeOneWeek        Timeframe = "1w"
	TimeframeOneMonth       Timeframe = "1M"
)

var timeframes = []Timeframe{
	TimeframeOneMinute,
	TimeframeFiveMinutes,
	TimeframeFifteenMinutes,
	TimeframeThirtyMinutes,
	TimeframeOneHour,
	TimeframeFourHours,
	TimeframeOneDay,
	TimeframeOneWeek,
	TimeframeOneMonth,
}

// Timeframes lists every supported timeframe, finest first.
func Timeframes() []Timeframe {
	return slices.Clone(timeframes)
}

// ParseTimeframe validates a timeframe name. Empty means daily bars.
func ParseTimeframe(s string) (Timeframe, error) {
	if s == "" {
		return TimeframeOneDay, nil
	}

	tf := Timeframe(s)
	if !slices.Contains(timeframes, tf) {
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe %q", s)
	}

	return tf, nil
}

// Multiplier is the number of Timespan units in one bar.
func (t Timeframe) Multiplier() int {
	switch t {
	case TimeframeFiveMinutes:
		return 5
	case TimeframeFifteenMinutes:
		return 15
	case TimeframeThirtyMinutes:
		return 30
	case TimeframeFourHours:
		return 4
	default:
		return 1
	}
}

// Timespan is the polygon aggregate unit of the timeframe.
func (t Timeframe) Timespan() models.Timespan {
	switch t {
	case TimeframeOneMinute, TimeframeFiveMinutes, TimeframeFifteenMinutes, TimeframeThirtyMinutes:
		return models.Minute
	case TimeframeOneHour, TimeframeFourHours:
		return models.Hour
	case TimeframeOneWeek:
		return models.Week
	case TimeframeOneMonth:
		return models.Month
	default:
		return models.Day
	}
}

// Duration is the nominal bar length; a month counts as 30 days.
func (t Timeframe) Duration() time.Duration {
	var unit time.Duration

	switch t.Timespan() {
	case models.Minute:
		unit = time.Minute
	case models.Hour:
		unit = time.Hour
	case models.Week:
		unit = 7 * 24 * time.Hour
	case models.Month:
		unit = 30 * 24 * time.Hour
	default:
		unit = 24 * time.Hour
	}

	return time.Duration(t.Multiplier()) * unit
}

// BinanceInterval returns the kline interval name. Binance uses the same
// notation for every timeframe listed here.
func (t Timeframe) BinanceInterval() string {
	return string(t)
}

// interval is the DuckDB interval literal used to bucket file bars.
func (t Timeframe) interval() string {
	switch t.Timespan() {
	case models.Minute:
		return fmt.Sprintf("%d minutes", t.Multiplier())
	case models.Hour:
		return fmt.Sprintf("%d hours", t.Multiplier())
	case models.Week:
		return "1 week"
	case models.Month:
		return "1 month"
	default:
		return "1 day"
	}
}
