package strategy

import (
	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Factory exposes the strategy families of a run.
type Factory struct {
	combinators []*Combinator
	logger      *logger.Logger
}

func NewFactory(log *logger.Logger, combinators ...*Combinator) *Factory {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Factory{combinators: combinators, logger: log}
}

// DefaultFactory serves the built-in families.
func DefaultFactory(log *logger.Logger) *Factory {
	return NewFactory(log, Families(nil)...)
}

// Families lists the family names in declaration order.
func (f *Factory) Families() []string {
	out := make([]string, len(f.combinators))
	for i, c := range f.combinators {
		out[i] = c.Family
	}

	return out
}

func (f *Factory) Combinator(family string) (*Combinator, error) {
	for _, c := range f.combinators {
		if c.Family == family {
			return c, nil
		}
	}

	return nil, errors.Newf(errors.ErrCodeUnsupportedStrategy, "unknown strategy family %s", family)
}

// Select narrows the factory to the named families, keeping their order.
func (f *Factory) Select(families []string) (*Factory, error) {
	if len(families) == 0 {
		return f, nil
	}

	selected := make([]*Combinator, 0, len(families))
	for _, name := range families {
		c, err := f.Combinator(name)
		if err != nil {
			return nil, err
		}

		selected = append(selected, c)
	}

	return NewFactory(f.logger, selected...), nil
}

// AllStrategyCombinationLambdas enumerates the builders of every family.
func (f *Factory) AllStrategyCombinationLambdas() (map[string][]Builder, error) {
	out := make(map[string][]Builder, len(f.combinators))
	for _, c := range f.combinators {
		builders, err := c.AllCombinations()
		if err != nil {
			return nil, err
		}

		out[c.Family] = builders
	}

	return out, nil
}

// Catalogue maps each family to the hash ids of its enumerated strategies.
// Duplicate compositions appear once.
func (f *Factory) Catalogue() (map[string][]string, error) {
	lambdas, err := f.AllStrategyCombinationLambdas()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(lambdas))
	for _, family := range f.Families() {
		seen := map[string]bool{}
		ids := []string{}
		for _, build := range lambdas[family] {
			s, err := build()
			if err != nil {
				f.logger.Warn("Skipping inadmissible combination", zap.String("family", family), zap.Error(err))
				continue
			}

			if id := s.HashID(); !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}

		out[family] = ids
	}

	return out, nil
}

// WriteCatalogue persists the catalogue as JSON, replacing path atomically.
func (f *Factory) WriteCatalogue(path string) error {
	catalogue, err := f.Catalogue()
	if err != nil {
		return err
	}

	if err := stage.WriteJSON(path, catalogue); err != nil {
		return err
	}

	f.logger.Info("Wrote strategy catalogue", zap.String("path", path), zap.Int("families", len(catalogue)))

	return nil
}
