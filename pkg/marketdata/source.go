// Package marketdata fetches historical bars for the ingest stage from
// Polygon, Binance or local Parquet/CSV files, and reads symbol watchlists.
package marketdata

import (
	"context"
	"iter"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Source yields the bars of every requested symbol between start and end,
// both inclusive. Bars are UTC and strictly increasing in time per symbol;
// symbols are yielded one after another in request order.
type Source interface {
	FetchBars(ctx context.Context, symbols []string, start, end time.Time, timeframe Timeframe) iter.Seq2[types.Bar, error]
}

// ProviderType names a market data provider.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
	ProviderFile    ProviderType = "file"
)

// ProviderInfo contains metadata about a market data provider.
type ProviderInfo struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	RequiresAuth bool   `json:"requiresAuth"`
	RequiresPath bool   `json:"requiresPath"`
}

var providerRegistry = map[ProviderType]ProviderInfo{
	ProviderPolygon: {
		Name:         string(ProviderPolygon),
		DisplayName:  "Polygon.io",
		Description:  "US equity aggregates over the Polygon REST API",
		RequiresAuth: true,
	},
	ProviderBinance: {
		Name:        string(ProviderBinance),
		DisplayName: "Binance",
		Description: "Spot klines for cryptocurrency pairs",
	},
	ProviderFile: {
		Name:         string(ProviderFile),
		DisplayName:  "Local files",
		Description:  "One Parquet or CSV file per symbol, read through DuckDB",
		RequiresPath: true,
	},
}

// Providers returns the supported provider names in sorted order.
func Providers() []string {
	names := make([]string, 0, len(providerRegistry))
	for p := range maps.Keys(providerRegistry) {
		names = append(names, string(p))
	}

	slices.Sort(names)

	return names
}

// GetProviderInfo returns metadata for a specific provider.
func GetProviderInfo(name string) (ProviderInfo, error) {
	info, ok := providerRegistry[ProviderType(name)]
	if !ok {
		return ProviderInfo{}, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported provider: %s", name)
	}

	return info, nil
}

// SourceConfig selects and configures a provider.
type SourceConfig struct {
	Provider ProviderType `yaml:"provider" json:"provider" default:"file" validate:"required,oneof=polygon binance file" jsonschema:"enum=polygon,enum=binance,enum=file"`
	// APIKey authenticates against providers that require it.
	APIKey string `yaml:"api_key" json:"api_key,omitempty"`
	// Path is the directory holding <symbol>.parquet or <symbol>.csv files.
	Path string `yaml:"path" json:"path,omitempty"`
}

// NewSource builds the configured source.
func NewSource(config SourceConfig, log *logger.Logger) (Source, error) {
	info, err := GetProviderInfo(string(config.Provider))
	if err != nil {
		return nil, err
	}

	if info.RequiresAuth && config.APIKey == "" {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "%s requires an api_key", info.DisplayName)
	}

	if info.RequiresPath && config.Path == "" {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "%s requires a path", info.DisplayName)
	}

	switch config.Provider {
	case ProviderPolygon:
		return NewPolygonSource(config.APIKey, log)
	case ProviderBinance:
		return NewBinanceSource(config.APIKey, log), nil
	default:
		return NewFileSource(config.Path, log)
	}
}

type fetchFunc func(ctx context.Context, symbol string, start, end time.Time, timeframe Timeframe) iter.Seq2[types.Bar, error]

// fetchEach runs fetch for each symbol in turn. Bars outside [start, end] or
// not after the previous bar of the same symbol are dropped.
func fetchEach(
	ctx context.Context,
	log *logger.Logger,
	symbols []string,
	start, end time.Time,
	timeframe Timeframe,
	fetch fetchFunc,
) iter.Seq2[types.Bar, error] {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return func(yield func(types.Bar, error) bool) {
		if end.Before(start) {
			yield(types.Bar{}, errors.Newf(errors.ErrCodeInvalidInput, "end %s is before start %s",
				end.Format(time.DateOnly), start.Format(time.DateOnly)))

			return
		}

		for _, symbol := range symbols {
			if err := ctx.Err(); err != nil {
				yield(types.Bar{}, errors.Wrap(errors.ErrCodeCancellationRequested, "market data fetch cancelled", err))

				return
			}

			var last time.Time
			count, dropped := 0, 0

			for bar, err := range fetch(ctx, symbol, start, end, timeframe) {
				if err != nil {
					if !yield(types.Bar{}, err) {
						return
					}

					continue
				}

				bar.Symbol = symbol
				bar.Time = bar.Time.UTC()

				if bar.Time.Before(start) || bar.Time.After(end) || (count > 0 && !bar.Time.After(last)) {
					dropped++

					continue
				}

				last = bar.Time
				count++

				if !yield(bar, nil) {
					return
				}
			}

			log.Debug("Fetched bars",
				zap.String("symbol", symbol),
				zap.String("timeframe", string(timeframe)),
				zap.Int("bars", count),
				zap.Int("dropped", dropped),
			)
		}
	}
}

// Collect drains a bar stream into per-symbol slices.
func Collect(bars iter.Seq2[types.Bar, error]) (map[string][]types.Bar, error) {
	out := map[string][]types.Bar{}
	for bar, err := range bars {
		if err != nil {
			return nil, err
		}

		out[bar.Symbol] = append(out[bar.Symbol], bar)
	}

	return out, nil
}
