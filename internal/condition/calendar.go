package condition

import (
	"github.com/ashourz/AlgoRoyale-sub003/internal/frame"
	"github.com/ashourz/AlgoRoyale-sub003/internal/types"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// TimeOfDayFilter is true while the UTC hour lies in [StartHour, EndHour].
type TimeOfDayFilter struct {
	StartHour int
	EndHour   int
}

func NewTimeOfDayFilter(startHour, endHour int) (*TimeOfDayFilter, error) {
	if startHour < 0 || endHour > 23 || startHour > endHour {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "invalid hour range [%d, %d]", startHour, endHour)
	}

	return &TimeOfDayFilter{StartHour: startHour, EndHour: endHour}, nil
}

func (c *TimeOfDayFilter) Kind() Kind                { return KindTimeOfDayFilter }
func (c *TimeOfDayFilter) ID() string                { return FormatID(c.Kind(), c.Params()) }
func (c *TimeOfDayFilter) RequiredColumns() []string { return []string{types.ColumnHour} }
func (c *TimeOfDayFilter) Window() int               { return 1 }

func (c *TimeOfDayFilter) Params() Params {
	return Params{intParam("start_hour", c.StartHour), intParam("end_hour", c.EndHour)}
}

func (c *TimeOfDayFilter) Apply(f *frame.Frame) ([]bool, error) {
	return rowwise(f, c.RequiredColumns(), func(v []float64) bool {
		return v[0] >= float64(c.StartHour) && v[0] <= float64(c.EndHour)
	})
}

func timeOfDaySpec() Spec {
	return Spec{
		Kind: KindTimeOfDayFilter,
		Params: []ParamSpec{
			{Name: "start_hour", Kind: ParamInt, Low: 0, High: 12, Step: 3},
			{Name: "end_hour", Kind: ParamInt, Low: 15, High: 23, Step: 4},
		},
		New: func(p Params) (Condition, error) {
			return NewTimeOfDayFilter(p.Int("start_hour"), p.Int("end_hour"))
		},
	}
}

// DayOfWeekFilter is true except on ExcludeDay (Monday=0). -1 excludes nothing.
type DayOfWeekFilter struct {
	ExcludeDay int
}

func NewDayOfWeekFilter(excludeDay int) (*DayOfWeekFilter, error) {
	if excludeDay < -1 || excludeDay > 6 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "exclude_day must be in [-1, 6], got %d", excludeDay)
	}

	return &DayOfWeekFilter{ExcludeDay: excludeDay}, nil
}

func (c *DayOfWeekFilter) Kind() Kind                { return KindDayOfWeekFilter }
func (c *DayOfWeekFilter) ID() string                { return FormatID(c.Kind(), c.Params()) }
func (c *DayOfWeekFilter) Params() Params            { return Params{intParam("exclude_day", c.ExcludeDay)} }
func (c *DayOfWeekFilter) RequiredColumns() []string { return []string{types.ColumnDayOfWeek} }
func (c *DayOfWeekFilter) Window() int               { return 1 }

func (c *DayOfWeekFilter) Apply(f *frame.Frame) ([]bool, error) {
	return rowwise(f, c.RequiredColumns(), func(v []float64) bool { return int(v[0]) != c.ExcludeDay })
}

func dayOfWeekSpec() Spec {
	return Spec{
		Kind:   KindDayOfWeekFilter,
		Params: []ParamSpec{{Name: "exclude_day", Kind: ParamInt, Low: -1, High: 4, Step: 1}},
		New:    func(p Params) (Condition, error) { return NewDayOfWeekFilter(p.Int("exclude_day")) },
	}
}
