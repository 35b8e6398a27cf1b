package stage

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// DefaultMaxRowsPerFile is the page size used when none is configured.
const DefaultMaxRowsPerFile = 5000

// WriterConfig controls page size and format.
type WriterConfig struct {
	MaxRowsPerFile int    `yaml:"max_rows_per_file" json:"max_rows_per_file" default:"5000" validate:"gte=0"`
	Format         Format `yaml:"format" json:"format" default:"parquet" validate:"omitempty,oneof=parquet csv"`
}

// WriteRequest addresses the unit being written.
type WriteRequest struct {
	Stage    Name
	Strategy string
	Symbol   string
	// StartPage is the index of the first page written.
	StartPage int
}

// Writer persists frames as pages through an in-memory DuckDB instance.
// Each page is copied to a temporary file and renamed into place.
type Writer struct {
	manager *Manager
	config  WriterConfig
	db      *sql.DB
	logger  *logger.Logger
}

// NewWriter opens the DuckDB connection used for page exports.
func NewWriter(manager *Manager, config WriterConfig, log *logger.Logger) (*Writer, error) {
	if config.MaxRowsPerFile <= 0 {
		config.MaxRowsPerFile = DefaultMaxRowsPerFile
	}

	if config.Format == "" {
		config.Format = FormatParquet
	}

	if config.Format != FormatParquet && config.Format != FormatCSV {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported page format %q", config.Format)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePageWriteFailed, "failed to open DuckDB connection", err)
	}

	return &Writer{
		manager: manager,
		config:  config,
		db:      db,
		logger:  log,
	}, nil
}

// Format returns the configured page format.
func (w *Writer) Format() Format {
	return w.config.Format
}

// Write splits f into pages and writes them. It returns the written paths.
func (w *Writer) Write(ctx context.Context, req WriteRequest, f *frame.Frame) ([]string, error) {
	if f == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "cannot write a nil frame")
	}

	paths, _, err := w.writeFrame(ctx, req, f, req.StartPage)

	return paths, err
}

// WriteStream writes every page of a stream, continuing the page numbering
// across input frames. It stops at the first error.
func (w *Writer) WriteStream(ctx context.Context, req WriteRequest, pages iter.Seq2[*frame.Frame, error]) ([]string, error) {
	var (
		written []string
		next    = req.StartPage
	)

	for f, err := range pages {
		if err != nil {
			return written, err
		}

		if f == nil {
			return written, errors.New(errors.ErrCodeInvalidInput, "cannot write a nil frame")
		}

		paths, n, err := w.writeFrame(ctx, req, f, next)
		written = append(written, paths...)
		if err != nil {
			return written, err
		}

		next = n
	}

	return written, nil
}

func (w *Writer) writeFrame(ctx context.Context, req WriteRequest, f *frame.Frame, page int) ([]string, int, error) {
	out := f.Clone()
	if !out.Has(types.ColumnStrategy) {
		out.FillText(types.ColumnStrategy, req.Strategy)
	}

	if !out.Has(types.ColumnSymbol) {
		out.FillText(types.ColumnSymbol, req.Symbol)
	}

	dir := w.manager.Dir(req.Stage, req.Strategy, req.Symbol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, page, errors.Wrapf(errors.ErrCodePageWriteFailed, err, "failed to create %s", dir)
	}

	var paths []string
	for start := 0; start < out.Len(); start += w.config.MaxRowsPerFile {
		if err := ctx.Err(); err != nil {
			return paths, page, errors.Wrap(errors.ErrCodeCancellationRequested, "page write cancelled", err)
		}

		chunk := out.Slice(start, start+w.config.MaxRowsPerFile)
		path := w.manager.PagePath(req.Stage, req.Strategy, req.Symbol, page, w.config.Format)

		if err := w.writePage(ctx, chunk, path); err != nil {
			return paths, page, err
		}

		w.logger.Debug("wrote page",
			zap.String("stage", string(req.Stage)),
			zap.String("symbol", req.Symbol),
			zap.String("path", path),
			zap.Int("rows", chunk.Len()),
		)

		paths = append(paths, path)
		page++
	}

	return paths, page, nil
}

// writePage loads the chunk into a scratch table and copies it out.
func (w *Writer) writePage(ctx context.Context, chunk *frame.Frame, path string) (err error) {
	table := "page_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	columns := chunk.Columns()

	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, quoteIdent(types.ColumnTimestamp)+" TIMESTAMP")
	for _, name := range columns {
		kind := "DOUBLE"
		if chunk.IsText(name) {
			kind = "VARCHAR"
		}

		defs = append(defs, quoteIdent(name)+" "+kind)
	}

	conn, err := w.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodePageWriteFailed, "failed to acquire DuckDB connection", err)
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))); err != nil {
		return errors.Wrap(errors.ErrCodePageWriteFailed, "failed to create page table", err)
	}

	defer func() {
		if _, dropErr := conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+table); dropErr != nil && err == nil {
			err = errors.Wrap(errors.ErrCodePageWriteFailed, "failed to drop page table", dropErr)
		}
	}()

	if err = insertRows(ctx, conn, table, chunk, columns); err != nil {
		return err
	}

	tmp := path + ".tmp"
	copyOptions := "(FORMAT PARQUET)"
	if strings.HasSuffix(path, "."+string(FormatCSV)) {
		copyOptions = "(FORMAT CSV, HEADER)"
	}

	query := fmt.Sprintf("COPY (SELECT * FROM %s ORDER BY %s) TO %s %s",
		table, quoteIdent(types.ColumnTimestamp), quoteLiteral(tmp), copyOptions)
	if _, err = conn.ExecContext(ctx, query); err != nil {
		_ = os.Remove(tmp)

		return errors.Wrapf(errors.ErrCodePageWriteFailed, err, "failed to export %s", filepath.Base(path))
	}

	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return errors.Wrapf(errors.ErrCodePageWriteFailed, err, "failed to move %s into place", filepath.Base(path))
	}

	return nil
}

func insertRows(ctx context.Context, conn *sql.Conn, table string, chunk *frame.Frame, columns []string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodePageWriteFailed, "failed to begin transaction", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)+1), ", ")

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, placeholders))
	if err != nil {
		_ = tx.Rollback()

		return errors.Wrap(errors.ErrCodePageWriteFailed, "failed to prepare statement", err)
	}
	defer stmt.Close()

	args := make([]any, len(columns)+1)
	for i := 0; i < chunk.Len(); i++ {
		args[0] = chunk.Time(i)
		for j, name := range columns {
			if chunk.IsText(name) {
				args[j+1] = chunk.Text(name)[i]
			} else {
				args[j+1] = chunk.Float(name)[i]
			}
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()

			return errors.Wrap(errors.ErrCodePageWriteFailed, "failed to insert row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodePageWriteFailed, "failed to commit transaction", err)
	}

	return nil
}

// Close releases the DuckDB connection.
func (w *Writer) Close() error {
	if w.db == nil {
		return nil
	}

	err := w.db.Close()
	w.db = nil

	return err
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
