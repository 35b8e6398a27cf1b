package marketdata

import (
	"context"
	"iter"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

const polygonPageLimit = 50000

// PolygonAggsIterator is the subset of the polygon list iterator we use.
type PolygonAggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// PolygonAPIClient lists aggregate bars.
type PolygonAPIClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator
}

type polygonClient struct {
	client *polygon.Client
}

func (c polygonClient) ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator {
	return c.client.ListAggs(ctx, params, options...)
}

// PolygonSource reads adjusted aggregates from Polygon.io.
type PolygonSource struct {
	api    PolygonAPIClient
	logger *logger.Logger
}

func NewPolygonSource(apiKey string, log *logger.Logger) (*PolygonSource, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon requires an api key")
	}

	return NewPolygonSourceWithClient(polygonClient{client: polygon.New(apiKey)}, log), nil
}

// NewPolygonSourceWithClient builds a source around any aggregate lister.
func NewPolygonSourceWithClient(api PolygonAPIClient, log *logger.Logger) *PolygonSource {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &PolygonSource{api: api, logger: log.Named("polygon")}
}

func (s *PolygonSource) FetchBars(ctx context.Context, symbols []string, start, end time.Time, timeframe Timeframe) iter.Seq2[types.Bar, error] {
	return fetchEach(ctx, s.logger, symbols, start, end, timeframe, s.fetch)
}

func (s *PolygonSource) fetch(ctx context.Context, symbol string, start, end time.Time, timeframe Timeframe) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		//nolint:exhaustruct // third-party struct with many optional fields
		params := models.ListAggsParams{
			Ticker:     symbol,
			Multiplier: timeframe.Multiplier(),
			Timespan:   timeframe.Timespan(),
			From:       models.Millis(start),
			To:         models.Millis(end),
		}.WithAdjusted(true).WithLimit(polygonPageLimit)

		it := s.api.ListAggs(ctx, params)
		for it.Next() {
			agg := it.Item()
			bar := types.Bar{
				Time:   time.Time(agg.Timestamp),
				Open:   agg.Open,
				High:   agg.High,
				Low:    agg.Low,
				Close:  agg.Close,
				Volume: agg.Volume,
			}

			if !yield(bar, nil) {
				return
			}
		}

		if err := it.Err(); err != nil {
			if ctx.Err() != nil {
				yield(types.Bar{}, errors.Wrap(errors.ErrCodeCancellationRequested, "polygon fetch cancelled", ctx.Err()))

				return
			}

			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to list %s aggregates", symbol))
		}
	}
}
