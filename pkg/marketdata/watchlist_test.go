package marketdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	apperrors "github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type WatchlistTestSuite struct {
	suite.Suite
}

func TestWatchlistSuite(t *testing.T) {
	suite.Run(t, new(WatchlistTestSuite))
}

func (suite *WatchlistTestSuite) write(name, content string) string {
	path := filepath.Join(suite.T().TempDir(), name)
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	return path
}

func (suite *WatchlistTestSuite) TestFormats() {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "text", file: "watchlist.txt", content: "# tech\nAAPL\nMSFT, NVDA # chips\n\nAAPL\n"},
		{name: "yaml list", file: "watchlist.yaml", content: "- AAPL\n- MSFT\n- NVDA\n- MSFT\n"},
		{name: "yaml mapping", file: "watchlist.yml", content: "symbols:\n  - AAPL # first\n  - MSFT\n  - NVDA\n"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			symbols, err := LoadWatchlist(suite.write(tc.file, tc.content))
			suite.Require().NoError(err)
			suite.Equal([]string{"AAPL", "MSFT", "NVDA"}, symbols)
		})
	}
}

func (suite *WatchlistTestSuite) TestErrors() {
	_, err := LoadWatchlist(filepath.Join(suite.T().TempDir(), "missing.txt"))
	suite.True(apperrors.HasCode(err, apperrors.ErrCodeDataNotFound))

	_, err = LoadWatchlist(suite.write("empty.txt", "# nothing here\n"))
	suite.True(apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	_, err = LoadWatchlist(suite.write("bad.yaml", "symbols: {a: 1}\n"))
	suite.True(apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}
