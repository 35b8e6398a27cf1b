// Package config loads the YAML run configuration of the pipeline.
package config

import (
	"encoding/json"
	"os"
	"reflect"
	"slices"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluation"
	"github.com/ashourz/AlgoRoyale-sub003/internal/evaluator"
	"github.com/ashourz/AlgoRoyale-sub003/internal/executor"
	"github.com/ashourz/AlgoRoyale-sub003/internal/feature"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/optimizer"
	"github.com/ashourz/AlgoRoyale-sub003/internal/portfolio"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/strategy"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/internal/walkforward"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/marketdata"
)

// DefaultHistory is the span ingested when no start date is configured.
const DefaultHistory = 5 * 365 * 24 * time.Hour

type LogConfig struct {
	Level       string `yaml:"level" json:"level" default:"info" validate:"oneof=debug info warn warning error critical"`
	Development bool   `yaml:"development" json:"development"`
}

func (c LogConfig) Options() logger.Options {
	return logger.Options{Level: c.Level, Development: c.Development}
}

// Config is the whole run configuration.
type Config struct {
	// DataRoot holds every stage directory.
	DataRoot string `yaml:"data_root" json:"data_root" default:"data" validate:"required" jsonschema:"title=Data root,description=Directory holding every stage"`
	// Start and End bound the ingested history, both inclusive.
	Start optional.Option[time.Time] `yaml:"-" json:"start" jsonschema:"title=Start,description=First day of history"`
	End   optional.Option[time.Time] `yaml:"-" json:"end" jsonschema:"title=End,description=Last day of history"`
	// Symbols takes precedence over Watchlist.
	Symbols     []string                   `yaml:"symbols" json:"symbols,omitempty" validate:"dive,required"`
	Watchlist   string                     `yaml:"watchlist" json:"watchlist,omitempty"`
	Timeframe   string                     `yaml:"timeframe" json:"timeframe" default:"1d"`
	Source      marketdata.SourceConfig    `yaml:"source" json:"source"`
	Log         LogConfig                  `yaml:"log" json:"log"`
	Storage     stage.WriterConfig         `yaml:"storage" json:"storage"`
	Features    feature.Config             `yaml:"features" json:"features"`
	Strategies  []string                   `yaml:"strategies" json:"strategies,omitempty" jsonschema:"description=Strategy families to run; empty runs all"`
	WalkForward walkforward.Config         `yaml:"walk_forward" json:"walk_forward"`
	Evaluation  evaluation.Config          `yaml:"evaluation" json:"evaluation"`
	Portfolio   evaluation.PortfolioConfig `yaml:"portfolio" json:"portfolio"`
	Evaluator   evaluator.Config           `yaml:"evaluator" json:"evaluator"`
	// Concurrency is the number of symbols processed at once within a stage.
	Concurrency int `yaml:"concurrency" json:"concurrency" default:"1" validate:"gte=1"`
	// MetricsFile receives the Prometheus registry in text format after a run.
	MetricsFile string `yaml:"metrics_file" json:"metrics_file,omitempty"`
}

// UnmarshalYAML reads start and end as plain timestamps.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config

	raw := struct {
		plain `yaml:",inline"`
		Start *time.Time `yaml:"start"`
		End   *time.Time `yaml:"end"`
	}{plain: plain(*c)}

	if err := node.Decode(&raw); err != nil {
		return err
	}

	*c = Config(raw.plain)
	if raw.Start != nil {
		c.Start = optional.Some(raw.Start.UTC())
	}

	if raw.End != nil {
		c.End = optional.Some(raw.End.UTC())
	}

	return nil
}

// Default returns the configuration used for every key a file leaves out.
func Default() Config {
	c := Config{
		Features:   feature.DefaultConfig(),
		Evaluation: evaluation.DefaultConfig(),
		WalkForward: walkforward.Config{
			Objectives: []optimizer.Objective{
				{Metric: types.MetricSharpeRatio, Direction: types.DirectionMaximize},
			},
		},
		Start: optional.None[time.Time](),
		End:   optional.None[time.Time](),
	}

	// only fails on malformed default tags
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}

	return c
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "cannot read config %s", path)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "malformed config", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate checks tags first, then the rules spanning several fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if len(c.Symbols) == 0 && c.Watchlist == "" {
		return errors.New(errors.ErrCodeInvalidConfiguration, "either symbols or watchlist is required")
	}

	if c.Start.IsSome() && c.End.IsSome() && c.End.Unwrap().Before(c.Start.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "end is before start")
	}

	if _, err := marketdata.ParseTimeframe(c.Timeframe); err != nil {
		return err
	}

	if _, err := strategy.DefaultFactory(nil).Select(c.Strategies); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid strategies", err)
	}

	kinds := portfolio.Kinds()
	for _, k := range c.Portfolio.Allocators {
		if !slices.Contains(kinds, k) {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown allocator %s", k)
		}
	}

	return nil
}

// ResolveSymbols returns Symbols, or the watchlist's symbols when none are listed.
func (c *Config) ResolveSymbols() ([]string, error) {
	if len(c.Symbols) > 0 {
		return slices.Clone(c.Symbols), nil
	}

	return marketdata.LoadWatchlist(c.Watchlist)
}

// DateRange resolves the configured history against now.
func (c *Config) DateRange(now time.Time) (time.Time, time.Time) {
	end := c.End.TakeOr(now.UTC().Truncate(24 * time.Hour))
	start := c.Start.TakeOr(end.Add(-DefaultHistory))

	return start, end
}

// GenerateSchema reflects the JSON schema of the configuration.
func GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case reflect.TypeFor[optional.Option[time.Time]]():
				return &jsonschema.Schema{Type: "string", Format: "date-time"}
			case reflect.TypeFor[time.Duration]():
				return &jsonschema.Schema{Type: "string", Description: "Go duration such as 30s"}
			case reflect.TypeFor[executor.Broker]():
				return &jsonschema.Schema{Type: "string", Enum: executor.AllBrokers}
			case reflect.TypeFor[portfolio.Kind]():
				enum := make([]any, 0)
				for _, k := range portfolio.Kinds() {
					enum = append(enum, string(k))
				}

				return &jsonschema.Schema{Type: "string", Enum: enum}
			}

			return nil
		},
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "royale-config"
	schema.Description = "Configuration schema for a walk-forward pipeline run"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

func GenerateSchemaJSON() (string, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternalError, "cannot encode config schema", err)
	}

	return string(data), nil
}
