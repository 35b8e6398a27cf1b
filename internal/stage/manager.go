package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Format is the on-disk page format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

// DateRange is the inclusive calendar range of a pipeline run.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// String formats the range as a directory name, e.g. 20230102_20230410.
func (r DateRange) String() string {
	return r.Start.UTC().Format("20060102") + "_" + r.End.UTC().Format("20060102")
}

var pagePattern = regexp.MustCompile(`^page_(\d+)\.(parquet|csv)$`)

// Manager resolves stage paths and reads and writes status markers for one date range.
// It holds no mutable state and is safe for concurrent use.
type Manager struct {
	root      string
	dateRange DateRange
}

// NewManager creates a manager rooted at root for the given run range.
func NewManager(root string, start, end time.Time) *Manager {
	return &Manager{
		root:      root,
		dateRange: DateRange{Start: start, End: end},
	}
}

func (m *Manager) Root() string {
	return m.root
}

func (m *Manager) DateRange() DateRange {
	return m.dateRange
}

// StageDir returns <root>/<stage>.
func (m *Manager) StageDir(stage Name) string {
	return filepath.Join(m.root, string(stage))
}

// SymbolDir returns <root>/<stage>/[<strategy>/]<symbol>.
func (m *Manager) SymbolDir(stage Name, strategy, symbol string) string {
	if strategy == "" {
		return filepath.Join(m.root, string(stage), symbol)
	}

	return filepath.Join(m.root, string(stage), strategy, symbol)
}

// Dir returns the date-range directory holding pages and markers.
func (m *Manager) Dir(stage Name, strategy, symbol string) string {
	return filepath.Join(m.SymbolDir(stage, strategy, symbol), m.dateRange.String())
}

// PagePath returns the path of page n.
func (m *Manager) PagePath(stage Name, strategy, symbol string, n int, format Format) string {
	return filepath.Join(m.Dir(stage, strategy, symbol), fmt.Sprintf("page_%d.%s", n, format))
}

// FilePath returns the path of a named artifact, such as a result JSON, in the date-range directory.
func (m *Manager) FilePath(stage Name, strategy, symbol, name string) string {
	return filepath.Join(m.Dir(stage, strategy, symbol), name)
}

// Mark writes a zero-byte marker.
func (m *Manager) Mark(stage Name, strategy, symbol string, marker Marker) error {
	dir := m.Dir(stage, strategy, symbol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(errors.ErrCodeMarkerFailed, err, "failed to create %s", dir)
	}

	if err := os.WriteFile(filepath.Join(dir, string(marker)), nil, 0o644); err != nil {
		return errors.Wrapf(errors.ErrCodeMarkerFailed, err, "failed to write marker %s", marker)
	}

	return nil
}

// MarkDone writes the completion marker of the stage and clears its error marker.
func (m *Manager) MarkDone(stage Name, strategy, symbol string) error {
	desc, err := Describe(stage)
	if err != nil {
		return err
	}

	_ = os.Remove(filepath.Join(m.Dir(stage, strategy, symbol), string(ErrorMarker(desc.Phase))))

	return m.Mark(stage, strategy, symbol, desc.Marker)
}

// HasMarker reports whether the marker file exists.
func (m *Manager) HasMarker(stage Name, strategy, symbol string, marker Marker) bool {
	_, err := os.Stat(filepath.Join(m.Dir(stage, strategy, symbol), string(marker)))

	return err == nil
}

// IsDone reports whether the stage's completion marker exists.
func (m *Manager) IsDone(stage Name, strategy, symbol string) bool {
	desc, err := Describe(stage)
	if err != nil {
		return false
	}

	return m.HasMarker(stage, strategy, symbol, desc.Marker)
}

// MarkError writes .error.<phase> containing a short reason.
func (m *Manager) MarkError(stage Name, strategy, symbol, reason string) error {
	desc, err := Describe(stage)
	if err != nil {
		return err
	}

	dir := m.Dir(stage, strategy, symbol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(errors.ErrCodeMarkerFailed, err, "failed to create %s", dir)
	}

	reason = strings.TrimSpace(reason)
	if len(reason) > 512 {
		reason = reason[:512]
	}

	path := filepath.Join(dir, string(ErrorMarker(desc.Phase)))
	if err := os.WriteFile(path, []byte(reason+"\n"), 0o644); err != nil {
		return errors.Wrapf(errors.ErrCodeMarkerFailed, err, "failed to write %s", path)
	}

	return nil
}

// ReadError returns the reason stored in the stage's error marker.
func (m *Manager) ReadError(stage Name, strategy, symbol string) (string, error) {
	desc, err := Describe(stage)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(m.Dir(stage, strategy, symbol), string(ErrorMarker(desc.Phase))))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeDataNotFound, "no error marker", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// Reset removes the date-range directory so a rerun starts from a clean slate.
func (m *Manager) Reset(stage Name, strategy, symbol string) error {
	dir := m.Dir(stage, strategy, symbol)
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(errors.ErrCodePageWriteFailed, err, "failed to reset %s", dir)
	}

	return nil
}

// Exists reports whether the stage directory exists.
func (m *Manager) Exists(stage Name) bool {
	info, err := os.Stat(m.StageDir(stage))

	return err == nil && info.IsDir()
}

// ListStrategies lists strategy directories of a strategy-scoped stage.
func (m *Manager) ListStrategies(stage Name) ([]string, error) {
	return listDirs(m.StageDir(stage))
}

// ListSymbols lists symbols that have data for this run's date range.
func (m *Manager) ListSymbols(stage Name, strategy string) ([]string, error) {
	base := m.StageDir(stage)
	if strategy != "" {
		base = filepath.Join(base, strategy)
	}

	dirs, err := listDirs(base)
	if err != nil {
		return nil, err
	}

	symbols := dirs[:0]
	for _, symbol := range dirs {
		if info, err := os.Stat(m.Dir(stage, strategy, symbol)); err == nil && info.IsDir() {
			symbols = append(symbols, symbol)
		}
	}

	return symbols, nil
}

// ListPages returns the page files of a unit ordered by page number.
func (m *Manager) ListPages(stage Name, strategy, symbol string) ([]string, error) {
	dir := m.Dir(stage, strategy, symbol)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(errors.ErrCodePageReadFailed, err, "failed to list %s", dir)
	}

	type page struct {
		n    int
		path string
	}

	var pages []page
	for _, entry := range entries {
		match := pagePattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}

		n, _ := strconv.Atoi(match[1])
		pages = append(pages, page{n: n, path: filepath.Join(dir, entry.Name())})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	paths := make([]string, len(pages))
	for i, p := range pages {
		paths[i] = p.path
	}

	return paths, nil
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "directory %s does not exist", dir)
		}

		return nil, errors.Wrapf(errors.ErrCodePageReadFailed, err, "failed to list %s", dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}
