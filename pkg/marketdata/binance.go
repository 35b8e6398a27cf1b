package marketdata

import (
	"context"
	"iter"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// binancePageSize is the kline service's default page length.
const binancePageSize = 500

// BinanceKlinesService is the builder returned by the kline endpoint.
type BinanceKlinesService interface {
	Symbol(symbol string) BinanceKlinesService
	Interval(interval string) BinanceKlinesService
	StartTime(startTime int64) BinanceKlinesService
	EndTime(endTime int64) BinanceKlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// BinanceAPIClient creates kline requests.
type BinanceAPIClient interface {
	NewKlinesService() BinanceKlinesService
}

type binanceClient struct {
	client *binance.Client
}

func (c binanceClient) NewKlinesService() BinanceKlinesService {
	return &binanceKlines{service: c.client.NewKlinesService()}
}

type binanceKlines struct {
	service *binance.KlinesService
}

func (k *binanceKlines) Symbol(symbol string) BinanceKlinesService {
	k.service.Symbol(symbol)

	return k
}

func (k *binanceKlines) Interval(interval string) BinanceKlinesService {
	k.service.Interval(interval)

	return k
}

func (k *binanceKlines) StartTime(startTime int64) BinanceKlinesService {
	k.service.StartTime(startTime)

	return k
}

func (k *binanceKlines) EndTime(endTime int64) BinanceKlinesService {
	k.service.EndTime(endTime)

	return k
}

func (k *binanceKlines) Do(ctx context.Context) ([]*binance.Kline, error) {
	return k.service.Do(ctx)
}

// BinanceSource pages through spot klines. The endpoint is public, the API
// key only raises rate limits.
type BinanceSource struct {
	api    BinanceAPIClient
	logger *logger.Logger
}

func NewBinanceSource(apiKey string, log *logger.Logger) *BinanceSource {
	return NewBinanceSourceWithClient(binanceClient{client: binance.NewClient(apiKey, "")}, log)
}

// NewBinanceSourceWithClient builds a source around any kline client.
func NewBinanceSourceWithClient(api BinanceAPIClient, log *logger.Logger) *BinanceSource {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BinanceSource{api: api, logger: log.Named("binance")}
}

func (s *BinanceSource) FetchBars(ctx context.Context, symbols []string, start, end time.Time, timeframe Timeframe) iter.Seq2[types.Bar, error] {
	return fetchEach(ctx, s.logger, symbols, start, end, timeframe, s.fetch)
}

func (s *BinanceSource) fetch(ctx context.Context, symbol string, start, end time.Time, timeframe Timeframe) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		from := start.UnixMilli()
		until := end.UnixMilli()

		for from <= until {
			klines, err := s.api.NewKlinesService().
				Symbol(symbol).
				Interval(timeframe.BinanceInterval()).
				StartTime(from).
				EndTime(until).
				Do(ctx)
			if err != nil {
				if ctx.Err() != nil {
					yield(types.Bar{}, errors.Wrap(errors.ErrCodeCancellationRequested, "binance fetch cancelled", ctx.Err()))

					return
				}

				yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch %s klines", symbol))

				return
			}

			for _, k := range klines {
				bar, err := klineToBar(k)
				if err != nil {
					yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "bad %s kline at %d", symbol, k.OpenTime))

					return
				}

				if !yield(bar, nil) {
					return
				}
			}

			if len(klines) < binancePageSize {
				return
			}

			// continue after the close of the last kline
			from = klines[len(klines)-1].CloseTime + 1
		}
	}
}

func klineToBar(k *binance.Kline) (types.Bar, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]float64, len(fields))

	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return types.Bar{}, err
		}

		values[i] = v
	}

	return types.Bar{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
