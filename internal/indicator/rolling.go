package indicator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// EMAWindow is the truncation window of an exponential average. Values older
// than this many rows contribute less than (1-2/(n+1))^(4n) of the weight and
// are ignored, which keeps the look-back finite.
func EMAWindow(period int) int {
	return 4 * period
}

// RollingMean returns the simple moving average over period rows. Each value
// is summed from scratch so that it only depends on its own window.
func RollingMean(x []float64, period int) []float64 {
	out := nans(len(x))
	for i := period - 1; i < len(x); i++ {
		out[i] = stat.Mean(x[i-period+1:i+1], nil)
	}

	return out
}

// RollingStd returns the standard deviation over period rows. Sample
// deviation when sample is true, population otherwise.
func RollingStd(x []float64, period int, sample bool) []float64 {
	out := nans(len(x))
	for i := period - 1; i < len(x); i++ {
		window := x[i-period+1 : i+1]
		if sample {
			if period < 2 {
				continue
			}

			out[i] = stat.StdDev(window, nil)

			continue
		}

		out[i] = stat.PopStdDev(window, nil)
	}

	return out
}

// truncatedEMA computes, for every row, an exponential average seeded with
// the first value of the trailing window and rolled forward to the row.
func truncatedEMA(x []float64, period int) []float64 {
	window := EMAWindow(period)
	alpha := 2.0 / float64(period+1)

	out := nans(len(x))
	for i := window - 1; i < len(x); i++ {
		ema := x[i-window+1]
		for j := i - window + 2; j <= i; j++ {
			ema = alpha*x[j] + (1-alpha)*ema
		}

		out[i] = ema
	}

	return out
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}

	return out
}
