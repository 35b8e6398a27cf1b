package indicator

import (
	"fmt"
)

// toInt accepts the numeric parameter types used in configs and tests.
func toInt(name string, v any) (int, error) {
	switch p := v.(type) {
	case int:
		return p, nil
	case int64:
		return int(p), nil
	case float64:
		return int(p), nil
	default:
		return 0, fmt.Errorf("invalid type for %s parameter, expected int", name)
	}
}

func toFloat(name string, v any) (float64, error) {
	switch p := v.(type) {
	case float64:
		return p, nil
	case int:
		return float64(p), nil
	default:
		return 0, fmt.Errorf("invalid type for %s parameter, expected float64", name)
	}
}

func toPeriod(name string, v any) (int, error) {
	period, err := toInt(name, v)
	if err != nil {
		return 0, err
	}

	if period <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %d", name, period)
	}

	return period, nil
}

// toPeriods parses a variadic list of periods, accepting a single []int as well.
func toPeriods(params []any) ([]int, error) {
	if len(params) == 1 {
		if list, ok := params[0].([]int); ok {
			params = make([]any, len(list))
			for i, p := range list {
				params[i] = p
			}
		}
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("Config expects at least 1 parameter: period (int)")
	}

	periods := make([]int, 0, len(params))
	for _, p := range params {
		period, err := toPeriod("period", p)
		if err != nil {
			return nil, err
		}

		periods = append(periods, period)
	}

	return periods, nil
}
