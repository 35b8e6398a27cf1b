package frame

import (
	"math"

	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// MaxAbsValue is the magnitude at or above which a numeric value is treated as corrupt.
const MaxAbsValue = 1e7

// ValidateIndex checks that the frame is non-empty and its index is strictly increasing.
func (f *Frame) ValidateIndex() error {
	if f.Empty() {
		return errors.New(errors.ErrCodeInvalidInput, "frame is empty")
	}

	for i := 1; i < len(f.index); i++ {
		if !f.index[i].After(f.index[i-1]) {
			if f.index[i].Equal(f.index[i-1]) {
				return errors.Newf(errors.ErrCodeInvalidInput, "duplicate timestamp %s at row %d", f.index[i], i)
			}

			return errors.Newf(errors.ErrCodeInvalidInput, "index is not sorted at row %d", i)
		}
	}

	return nil
}

// ValidateNumeric checks the index and that every named column exists, is
// numeric and holds finite values of magnitude below MaxAbsValue.
func (f *Frame) ValidateNumeric(columns ...string) error {
	if err := f.ValidateIndex(); err != nil {
		return err
	}

	for _, name := range columns {
		if f.IsText(name) {
			return errors.Newf(errors.ErrCodeInvalidInput, "column %s is not numeric", name)
		}

		values, ok := f.floats[name]
		if !ok {
			return errors.Newf(errors.ErrCodeInvalidInput, "missing column %s", name)
		}

		if err := ValidateValues(name, values); err != nil {
			return err
		}
	}

	return nil
}

// ValidateValues rejects NaN, infinities and extreme magnitudes.
func ValidateValues(name string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Newf(errors.ErrCodeInvalidInput, "column %s has invalid value %v at row %d", name, v, i)
		}

		if math.Abs(v) >= MaxAbsValue {
			return errors.Newf(errors.ErrCodeInvalidInput, "column %s has extreme value %v at row %d", name, v, i)
		}
	}

	return nil
}
