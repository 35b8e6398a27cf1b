package types

import (
	"fmt"
	"time"
)

// Window is one walk-forward train/test split. Bounds are inclusive.
type Window struct {
	Index      int       `json:"-"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
}

// Key returns the identifier used in result files, e.g. window_0.
func (w Window) Key() string {
	return WindowKey(w.Index)
}

// WindowKey formats the result key of the i-th window.
func WindowKey(i int) string {
	return fmt.Sprintf("window_%d", i)
}

func (w Window) String() string {
	return fmt.Sprintf("%s train[%s..%s] test[%s..%s]", w.Key(),
		w.TrainStart.Format(time.DateOnly), w.TrainEnd.Format(time.DateOnly),
		w.TestStart.Format(time.DateOnly), w.TestEnd.Format(time.DateOnly))
}
