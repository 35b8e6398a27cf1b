package marketdata

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// LoadWatchlist reads the symbols of a watchlist file in order, without
// duplicates. YAML files hold either a list or a mapping with a symbols list;
// any other file holds symbols separated by whitespace or commas, with #
// starting a comment.
func LoadWatchlist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeDataNotFound, "watchlist %s does not exist", path)
		}

		return nil, errors.Wrapf(errors.ErrCodeInvalidInput, err, "failed to read watchlist %s", path)
	}

	var symbols []string

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		symbols, err = parseYAMLWatchlist(data)
	default:
		symbols, err = parseTextWatchlist(data)
	}

	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidInput, err, "malformed watchlist %s", path)
	}

	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "watchlist %s lists no symbols", path)
	}

	return symbols, nil
}

func parseYAMLWatchlist(data []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Symbols []string `yaml:"symbols"`
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return doc.Symbols, nil
}

func parseTextWatchlist(data []byte) ([]string, error) {
	var symbols []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), "#")
		symbols = append(symbols, strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})...)
	}

	return symbols, scanner.Err()
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))

	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}

		seen[s] = true
		out = append(out, s)
	}

	return out
}
