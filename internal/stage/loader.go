package stage

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// LoadRequest selects the pages of a stage.
type LoadRequest struct {
	Stage    Name
	Strategy string
	// Start and End filter rows by timestamp, both inclusive.
	Start optional.Option[time.Time]
	End   optional.Option[time.Time]
	// ReversePages iterates the newest page first.
	ReversePages bool
	// ExcludeDoneSymbols skips symbols already carrying DoneStage's completion marker.
	ExcludeDoneSymbols bool
	// DoneStage defaults to Stage.
	DoneStage optional.Option[Name]
	// DoneStrategy is the strategy directory checked in DoneStage. Defaults to Strategy
	// when DoneStage is strategy scoped.
	DoneStrategy optional.Option[string]
	// Symbols restricts the result. Requested symbols without data map to empty streams.
	Symbols []string
}

// PageStreamFactory opens a lazy page stream. Creating it is cheap; pages are
// read one at a time while iterating.
type PageStreamFactory func(ctx context.Context) iter.Seq2[*frame.Frame, error]

// Loader reads stage pages through DuckDB.
type Loader struct {
	manager *Manager
	db      *sql.DB
	logger  *logger.Logger
}

// NewLoader opens the DuckDB connection used for page reads.
func NewLoader(manager *Manager, log *logger.Logger) (*Loader, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePageReadFailed, "failed to open DuckDB connection", err)
	}

	return &Loader{
		manager: manager,
		db:      db,
		logger:  log,
	}, nil
}

// LoadAllStageData maps every symbol of the stage to a page stream factory.
// It fails with DataNotFound only when the stage directory is absent.
func (l *Loader) LoadAllStageData(ctx context.Context, req LoadRequest) (map[string]PageStreamFactory, error) {
	if !l.manager.Exists(req.Stage) {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "stage directory %s does not exist", l.manager.StageDir(req.Stage))
	}

	available, err := l.manager.ListSymbols(req.Stage, req.Strategy)
	if err != nil {
		if !errors.HasCode(err, errors.ErrCodeDataNotFound) {
			return nil, err
		}

		l.logger.Warn("no data for strategy",
			zap.String("stage", string(req.Stage)),
			zap.String("strategy", req.Strategy),
		)
	}

	symbols := available
	if len(req.Symbols) > 0 {
		symbols = req.Symbols
	}

	doneStage := req.DoneStage.TakeOr(req.Stage)
	doneStrategy := req.DoneStrategy.TakeOr("")
	if req.DoneStrategy.IsNone() {
		if desc, err := Describe(doneStage); err == nil && desc.StrategyScoped {
			doneStrategy = req.Strategy
		}
	}

	out := make(map[string]PageStreamFactory, len(symbols))
	for _, symbol := range symbols {
		if req.ExcludeDoneSymbols && l.manager.IsDone(doneStage, doneStrategy, symbol) {
			l.logger.Debug("skipping completed symbol",
				zap.String("stage", string(doneStage)),
				zap.String("symbol", symbol),
			)

			continue
		}

		if !slices.Contains(available, symbol) {
			l.logger.Warn("symbol has no data",
				zap.String("stage", string(req.Stage)),
				zap.String("strategy", req.Strategy),
				zap.String("symbol", symbol),
			)

			out[symbol] = emptyStream

			continue
		}

		out[symbol] = l.factory(req, symbol)
	}

	return out, nil
}

// LoadSymbol materialises every page of one symbol into a single frame.
func (l *Loader) LoadSymbol(ctx context.Context, req LoadRequest, symbol string) (*frame.Frame, error) {
	if !l.manager.Exists(req.Stage) {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "stage directory %s does not exist", l.manager.StageDir(req.Stage))
	}

	var pages []*frame.Frame
	for page, err := range l.factory(req, symbol)(ctx) {
		if err != nil {
			return nil, err
		}

		pages = append(pages, page)
	}

	if len(pages) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no %s data for %s", req.Stage, symbol)
	}

	if req.ReversePages {
		slices.Reverse(pages)
	}

	return frame.Concat(pages...)
}

func (l *Loader) factory(req LoadRequest, symbol string) PageStreamFactory {
	return func(ctx context.Context) iter.Seq2[*frame.Frame, error] {
		return func(yield func(*frame.Frame, error) bool) {
			paths, err := l.manager.ListPages(req.Stage, req.Strategy, symbol)
			if err != nil {
				yield(nil, err)

				return
			}

			if req.ReversePages {
				slices.Reverse(paths)
			}

			for _, path := range paths {
				if err := ctx.Err(); err != nil {
					yield(nil, errors.Wrap(errors.ErrCodeCancellationRequested, "page read cancelled", err))

					return
				}

				page, err := l.ReadPage(ctx, path, req.Start, req.End)
				if err != nil {
					if !yield(nil, err) {
						return
					}

					continue
				}

				if page.Empty() {
					continue
				}

				if !yield(page, nil) {
					return
				}
			}
		}
	}
}

// ReadPage reads one page file, optionally filtering rows by timestamp.
func (l *Loader) ReadPage(ctx context.Context, path string, start, end optional.Option[time.Time]) (*frame.Frame, error) {
	source := fmt.Sprintf("read_parquet(%s)", quoteLiteral(path))
	if strings.HasSuffix(path, "."+string(FormatCSV)) {
		source = fmt.Sprintf("read_csv(%s, header = true, auto_detect = true)", quoteLiteral(path))
	}

	ts := quoteIdent(types.ColumnTimestamp)
	query := sq.Select("*").From(source).OrderBy(ts)

	if start.IsSome() {
		query = query.Where(sq.GtOrEq{ts: start.Unwrap().UTC()})
	}

	if end.IsSome() {
		query = query.Where(sq.LtOrEq{ts: end.Unwrap().UTC()})
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build page query", err)
	}

	rows, err := l.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodePageReadFailed, err, "failed to read %s", path)
	}
	defer rows.Close()

	return scanFrame(rows)
}

func scanFrame(rows *sql.Rows) (*frame.Frame, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePageReadFailed, "failed to read column types", err)
	}

	type column struct {
		name   string
		isTime bool
		isText bool
		floats []float64
		texts  []string
	}

	columns := make([]*column, len(columnTypes))
	timeColumn := -1
	for i, ct := range columnTypes {
		dbType := strings.ToUpper(ct.DatabaseTypeName())
		c := &column{name: ct.Name()}

		switch {
		case ct.Name() == types.ColumnTimestamp:
			c.isTime = true
			timeColumn = i
		case strings.Contains(dbType, "CHAR") || strings.Contains(dbType, "TEXT") || dbType == "STRING":
			c.isText = true
		}

		columns[i] = c
	}

	if timeColumn < 0 {
		return nil, errors.New(errors.ErrCodeSchemaViolation, "page has no timestamp column")
	}

	var index []time.Time
	dest := make([]any, len(columns))
	for rows.Next() {
		for i, c := range columns {
			switch {
			case c.isTime:
				dest[i] = new(sql.NullTime)
			case c.isText:
				dest[i] = new(sql.NullString)
			default:
				dest[i] = new(sql.NullFloat64)
			}
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(errors.ErrCodePageReadFailed, "failed to scan row", err)
		}

		for i, c := range columns {
			switch v := dest[i].(type) {
			case *sql.NullTime:
				if !v.Valid {
					return nil, errors.New(errors.ErrCodeSchemaViolation, "page has a null timestamp")
				}

				index = append(index, v.Time.UTC())
			case *sql.NullString:
				c.texts = append(c.texts, v.String)
			case *sql.NullFloat64:
				if v.Valid {
					c.floats = append(c.floats, v.Float64)
				} else {
					c.floats = append(c.floats, math.NaN())
				}
			}
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodePageReadFailed, "failed to iterate rows", err)
	}

	f := frame.New(index)
	for _, c := range columns {
		switch {
		case c.isTime:
			continue
		case c.isText:
			if c.texts == nil {
				c.texts = []string{}
			}

			if err := f.SetText(c.name, c.texts); err != nil {
				return nil, err
			}
		default:
			if c.floats == nil {
				c.floats = []float64{}
			}

			if err := f.SetFloat(c.name, c.floats); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}

// Close releases the DuckDB connection.
func (l *Loader) Close() error {
	if l.db == nil {
		return nil
	}

	err := l.db.Close()
	l.db = nil

	return err
}

func emptyStream(context.Context) iter.Seq2[*frame.Frame, error] {
	return func(func(*frame.Frame, error) bool) {}
}
