package stage

import (
	"iter"
	"slices"

	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// Preparer normalises pages to the input schema of a stage.
type Preparer struct {
	descriptor Descriptor
	logger     *logger.Logger
}

func NewPreparer(descriptor Descriptor, log *logger.Logger) *Preparer {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Preparer{
		descriptor: descriptor,
		logger:     log,
	}
}

// Prepare returns a normalised copy of f. A page lacking required columns
// fails with SchemaViolation.
func (p *Preparer) Prepare(f *frame.Frame) (*frame.Frame, error) {
	if f == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "cannot prepare a nil frame")
	}

	out := f.Clone()
	if len(p.descriptor.RenameMap) > 0 {
		out.Rename(p.descriptor.RenameMap)
	}

	if err := out.Require(p.descriptor.RequiredInputColumns...); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeSchemaViolation, err, "page does not satisfy %s input schema", p.descriptor.Name)
	}

	if p.descriptor.DropUnknownColumns {
		var unknown []string
		for _, name := range out.Columns() {
			if !slices.Contains(p.descriptor.KnownColumns, name) {
				unknown = append(unknown, name)
			}
		}

		out.Drop(unknown...)
	}

	return out, nil
}

// PrepareStream applies Prepare to every page. Pages violating the schema are
// logged and skipped; other errors are passed through.
func (p *Preparer) PrepareStream(pages iter.Seq2[*frame.Frame, error]) iter.Seq2[*frame.Frame, error] {
	return func(yield func(*frame.Frame, error) bool) {
		page := 0
		for f, err := range pages {
			if err != nil {
				if !yield(nil, err) {
					return
				}

				continue
			}

			prepared, err := p.Prepare(f)
			page++

			if err != nil {
				if errors.HasCode(err, errors.ErrCodeSchemaViolation) {
					p.logger.Warn("skipping page",
						zap.String("stage", string(p.descriptor.Name)),
						zap.Int("page", page-1),
						zap.Error(err),
					)

					continue
				}

				if !yield(nil, err) {
					return
				}

				continue
			}

			if !yield(prepared, nil) {
				return
			}
		}
	}
}
