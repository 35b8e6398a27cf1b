package types

// IndicatorType names a feature family computed by the feature engineer.
type IndicatorType string

const (
	IndicatorTypeSMA            IndicatorType = "sma"
	IndicatorTypeEMA            IndicatorType = "ema"
	IndicatorTypeRSI            IndicatorType = "rsi"
	IndicatorTypeMACD           IndicatorType = "macd"
	IndicatorTypeATR            IndicatorType = "atr"
	IndicatorTypeBollingerBands IndicatorType = "bollinger_bands"
	IndicatorTypeVolatility     IndicatorType = "volatility"
	IndicatorTypeVWAP           IndicatorType = "vwap"
	IndicatorTypeCandle         IndicatorType = "candle"
	IndicatorTypeReturns        IndicatorType = "returns"
	IndicatorTypeCalendar       IndicatorType = "calendar"
)

// Feature column names that are not parameterised by a period.
const (
	ColumnRSI        = "rsi"
	ColumnMACD       = "macd"
	ColumnMACDSignal = "macd_signal"
	ColumnMACDHist   = "macd_hist"
	ColumnATR        = "atr"
	ColumnBBMid      = "bb_mid"
	ColumnBBUpper    = "bb_upper"
	ColumnBBLower    = "bb_lower"
	ColumnRange      = "range"
	ColumnBody       = "body"
	ColumnUpperWick  = "upper_wick"
	ColumnLowerWick  = "lower_wick"
	ColumnLogReturn  = "log_return"
	ColumnPctReturn  = "pct_return"
	ColumnHour       = "hour"
	ColumnDayOfWeek  = "day_of_week"
)
