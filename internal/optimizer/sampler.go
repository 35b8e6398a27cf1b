package optimizer

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Sampler draws parameter values for a trial.
type Sampler interface {
	SampleInt(name string, low, high, step int) int
	SampleFloat(name string, low, high, step float64) float64
	SampleCategorical(name string, choices []string) string
}

// RandomSampler draws independent uniform values. Two samplers with the same
// seed produce the same sequence for the same sequence of requests.
type RandomSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomSampler(seed uint64) *RandomSampler {
	return &RandomSampler{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *RandomSampler) SampleInt(_ string, low, high, step int) int {
	if step <= 0 {
		step = 1
	}

	if high <= low {
		return low
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return low + s.rng.IntN((high-low)/step+1)*step
}

func (s *RandomSampler) SampleFloat(_ string, low, high, step float64) float64 {
	if high <= low {
		return low
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if step <= 0 {
		return low + s.rng.Float64()*(high-low)
	}

	n := int(math.Floor((high-low)/step+1e-9)) + 1

	return RoundStep(low + float64(s.rng.IntN(n))*step)
}

func (s *RandomSampler) SampleCategorical(_ string, choices []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return choices[s.rng.IntN(len(choices))]
}

// RoundStep removes the binary noise of low + k*step so grid values print
// and compare as written, e.g. 0.03 instead of 0.030000000000000002.
func RoundStep(v float64) float64 {
	return math.Round(v*1e10) / 1e10
}
