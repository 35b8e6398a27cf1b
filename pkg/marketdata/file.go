package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// fileExtensions are tried in order for each symbol.
var fileExtensions = []string{".parquet", ".csv"}

// FileSource reads <dir>/<symbol>.parquet or <dir>/<symbol>.csv and buckets
// the rows to the requested timeframe.
type FileSource struct {
	dir    string
	db     *sql.DB
	logger *logger.Logger
}

func NewFileSource(dir string, log *logger.Logger) (*FileSource, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "market data directory %s does not exist", dir)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open DuckDB connection", err)
	}

	return &FileSource{dir: dir, db: db, logger: log.Named("file")}, nil
}

func (s *FileSource) Close() error {
	return s.db.Close()
}

func (s *FileSource) FetchBars(ctx context.Context, symbols []string, start, end time.Time, timeframe Timeframe) iter.Seq2[types.Bar, error] {
	return fetchEach(ctx, s.logger, symbols, start, end, timeframe, s.fetch)
}

// Path returns the file holding the symbol's bars.
func (s *FileSource) Path(symbol string) (string, error) {
	for _, ext := range fileExtensions {
		path := filepath.Join(s.dir, symbol+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", errors.Newf(errors.ErrCodeDataNotFound, "no parquet or csv file for %s in %s", symbol, s.dir)
}

func (s *FileSource) fetch(ctx context.Context, symbol string, start, end time.Time, timeframe Timeframe) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		path, err := s.Path(symbol)
		if err != nil {
			yield(types.Bar{}, err)

			return
		}

		query, args, err := barQuery(path, start, end, timeframe).ToSql()
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build bar query", err))

			return
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to read %s", path))

			return
		}
		defer rows.Close()

		for rows.Next() {
			var bar types.Bar
			if err := rows.Scan(&bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
				yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "failed to scan %s", path))

				return
			}

			if !yield(bar, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to iterate %s", path))
		}
	}
}

// barQuery aggregates rows into timeframe buckets: first open, highest high,
// lowest low, last close and summed volume.
func barQuery(path string, start, end time.Time, timeframe Timeframe) sq.SelectBuilder {
	source := fmt.Sprintf("read_parquet(%s)", quoteLiteral(path))
	if strings.HasSuffix(path, ".csv") {
		source = fmt.Sprintf("read_csv(%s, header = true, auto_detect = true)", quoteLiteral(path))
	}

	ts := quoteIdent(types.ColumnTimestamp)
	bucket := fmt.Sprintf("time_bucket(INTERVAL '%s', CAST(%s AS TIMESTAMP))", timeframe.interval(), ts)

	return sq.Select(
		bucket+" AS bucket",
		fmt.Sprintf("CAST(arg_min(%s, %s) AS DOUBLE)", quoteIdent(types.ColumnOpen), ts),
		fmt.Sprintf("CAST(max(%s) AS DOUBLE)", quoteIdent(types.ColumnHigh)),
		fmt.Sprintf("CAST(min(%s) AS DOUBLE)", quoteIdent(types.ColumnLow)),
		fmt.Sprintf("CAST(arg_max(%s, %s) AS DOUBLE)", quoteIdent(types.ColumnClose), ts),
		fmt.Sprintf("CAST(sum(%s) AS DOUBLE)", quoteIdent(types.ColumnVolume)),
	).
		From(source).
		Where(sq.GtOrEq{ts: start.UTC()}).
		Where(sq.LtOrEq{ts: end.UTC()}).
		GroupBy("bucket").
		OrderBy("bucket")
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
