// Package walkforward splits a series into train/test windows, optimises a
// strategy family on each train segment and scores the winner on the test
// segment that follows.
package walkforward

import (
	"time"

	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type Mode string

const (
	// ModeSliding keeps the train segment at TrainSize bars.
	ModeSliding Mode = "sliding"
	// ModeExpanding anchors every train segment at the first bar.
	ModeExpanding Mode = "expanding"
)

// WindowConfig sizes windows in bars.
type WindowConfig struct {
	TrainSize int  `yaml:"train_size" json:"train_size" default:"252" validate:"gt=0"`
	TestSize  int  `yaml:"test_size" json:"test_size" default:"63" validate:"gt=0"`
	Step      int  `yaml:"step" json:"step" default:"63" validate:"gt=0"`
	Mode      Mode `yaml:"mode" json:"mode" default:"sliding" validate:"oneof=sliding expanding"`
}

func (c WindowConfig) validate() error {
	if c.TrainSize <= 0 || c.TestSize <= 0 || c.Step <= 0 {
		return errors.Newf(errors.ErrCodeInvalidWindow, "train_size, test_size and step must be positive, got %d/%d/%d",
			c.TrainSize, c.TestSize, c.Step)
	}

	if c.Mode != ModeSliding && c.Mode != ModeExpanding {
		return errors.Newf(errors.ErrCodeInvalidWindow, "unknown window mode %q", c.Mode)
	}

	return nil
}

// GenerateWindows returns every window that fits entirely inside index, in
// chronological order. The test segment starts on the bar after the train
// segment ends; successive windows advance by Step bars.
func GenerateWindows(index []time.Time, cfg WindowConfig) ([]types.Window, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeSliding
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var windows []types.Window
	for k := 0; ; k++ {
		trainEnd := cfg.TrainSize - 1 + k*cfg.Step
		testEnd := trainEnd + cfg.TestSize
		if testEnd >= len(index) {
			break
		}

		trainStart := 0
		if cfg.Mode == ModeSliding {
			trainStart = k * cfg.Step
		}

		windows = append(windows, types.Window{
			Index:      k,
			TrainStart: index[trainStart],
			TrainEnd:   index[trainEnd],
			TestStart:  index[trainEnd+1],
			TestEnd:    index[testEnd],
		})
	}

	return windows, nil
}
