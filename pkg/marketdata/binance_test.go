package marketdata

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/suite"

	apperrors "github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// mockBinanceAPIClient returns one page per call.
type mockBinanceAPIClient struct {
	pages     [][]*binance.Kline
	errs      []error
	callCount int
	starts    []int64
	interval  string
}

func (m *mockBinanceAPIClient) NewKlinesService() BinanceKlinesService {
	return &mockBinanceKlinesService{client: m}
}

type mockBinanceKlinesService struct {
	client *mockBinanceAPIClient
}

func (m *mockBinanceKlinesService) Symbol(string) BinanceKlinesService { return m }

func (m *mockBinanceKlinesService) Interval(interval string) BinanceKlinesService {
	m.client.interval = interval

	return m
}

func (m *mockBinanceKlinesService) StartTime(startTime int64) BinanceKlinesService {
	m.client.starts = append(m.client.starts, startTime)

	return m
}

func (m *mockBinanceKlinesService) EndTime(int64) BinanceKlinesService { return m }

func (m *mockBinanceKlinesService) Do(_ context.Context) ([]*binance.Kline, error) {
	idx := m.client.callCount
	m.client.callCount++

	var err error
	if idx < len(m.client.errs) {
		err = m.client.errs[idx]
	}

	if idx < len(m.client.pages) {
		return m.client.pages[idx], err
	}

	return nil, err
}

func klines(from time.Time, n int, step time.Duration) []*binance.Kline {
	out := make([]*binance.Kline, n)
	for i := range out {
		open := from.Add(time.Duration(i) * step)
		price := strconv.FormatFloat(100+float64(i), 'f', 2, 64)
		out[i] = &binance.Kline{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(step).UnixMilli() - 1,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    "1.5",
		}
	}

	return out
}

type BinanceSourceTestSuite struct {
	suite.Suite
}

func TestBinanceSourceSuite(t *testing.T) {
	suite.Run(t, new(BinanceSourceTestSuite))
}

func (suite *BinanceSourceTestSuite) TestPaginates() {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	first := klines(start, binancePageSize, time.Minute)
	second := klines(start.Add(binancePageSize*time.Minute), 20, time.Minute)

	client := &mockBinanceAPIClient{pages: [][]*binance.Kline{first, second}}
	src := NewBinanceSourceWithClient(client, nil)

	bars, err := Collect(src.FetchBars(context.Background(), []string{"BTCUSDT"}, start, start.Add(24*time.Hour), TimeframeOneMinute))
	suite.Require().NoError(err)
	suite.Len(bars["BTCUSDT"], binancePageSize+20)
	suite.Equal(2, client.callCount)
	suite.Equal("1m", client.interval)
	suite.Equal(first[len(first)-1].CloseTime+1, client.starts[1])
	suite.Equal(1.5, bars["BTCUSDT"][0].Volume)
	suite.True(bars["BTCUSDT"][0].Time.Equal(start))
}

func (suite *BinanceSourceTestSuite) TestErrors() {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	client := &mockBinanceAPIClient{errs: []error{errors.New("teapot")}}
	_, err := Collect(NewBinanceSourceWithClient(client, nil).FetchBars(context.Background(), []string{"ETHUSDT"}, start, start.Add(time.Hour), TimeframeOneMinute))
	suite.True(apperrors.HasCode(err, apperrors.ErrCodeMarketDataFetchFailed))

	bad := klines(start, 2, time.Minute)
	bad[1].Close = "n/a"
	client = &mockBinanceAPIClient{pages: [][]*binance.Kline{bad}}
	_, err = Collect(NewBinanceSourceWithClient(client, nil).FetchBars(context.Background(), []string{"ETHUSDT"}, start, start.Add(time.Hour), TimeframeOneMinute))
	suite.True(apperrors.HasCode(err, apperrors.ErrCodeMarketDataParseFailed))
}
