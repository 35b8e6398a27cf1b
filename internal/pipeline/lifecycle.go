package pipeline

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
)

// OnRunStartCallback is called once before the first stage runs.
// Returning an error aborts the run.
type OnRunStartCallback func(runID string, stages []stage.Name, symbols []string) error

// OnRunEndCallback is called when the run returns (always called via defer).
type OnRunEndCallback func(err error)

// OnStageStartCallback is called when a stage begins, with the number of work
// units it will process. Returning an error aborts the run.
type OnStageStartCallback func(stageIndex int, name stage.Name, totalStages int, totalUnits int) error

// OnStageEndCallback is called when a stage ends, with its stage-wide error if any.
type OnStageEndCallback func(stageIndex int, name stage.Name, err error)

// OnUnitDoneCallback is called after each (strategy, symbol) unit, whether it
// was processed, skipped as already done, or failed. Calls are serialised.
type OnUnitDoneCallback func(name stage.Name, strategy string, symbol string, err error, done int, total int)

// LifecycleCallbacks holds all lifecycle callback functions of a pipeline run.
// Every field is optional.
type LifecycleCallbacks struct {
	OnRunStart   *OnRunStartCallback
	OnRunEnd     *OnRunEndCallback
	OnStageStart *OnStageStartCallback
	OnStageEnd   *OnStageEndCallback
	OnUnitDone   *OnUnitDoneCallback
}

func (c LifecycleCallbacks) runStart(runID string, stages []stage.Name, symbols []string) error {
	if c.OnRunStart == nil {
		return nil
	}

	return (*c.OnRunStart)(runID, stages, symbols)
}

func (c LifecycleCallbacks) runEnd(err error) {
	if c.OnRunEnd != nil {
		(*c.OnRunEnd)(err)
	}
}

func (c LifecycleCallbacks) stageStart(index int, name stage.Name, total, units int) error {
	if c.OnStageStart == nil {
		return nil
	}

	return (*c.OnStageStart)(index, name, total, units)
}

func (c LifecycleCallbacks) stageEnd(index int, name stage.Name, err error) {
	if c.OnStageEnd != nil {
		(*c.OnStageEnd)(index, name, err)
	}
}

func (c LifecycleCallbacks) unitDone(name stage.Name, u unit, err error, done, total int) {
	if c.OnUnitDone != nil {
		(*c.OnUnitDone)(name, u.strategy, u.symbol, err, done, total)
	}
}
