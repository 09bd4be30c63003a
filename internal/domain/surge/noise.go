package surge

import (
	"math/rand/v2"
	"time"
)

// NoiseSource yields standard normal draws.
type NoiseSource interface {
	NormFloat64() float64
}

// SourceFactory creates a fresh source for each forecast so concurrent
// forecasts never share a generator.
type SourceFactory func() NoiseSource

// SeededSource returns a factory whose sources all replay the same sequence.
func SeededSource(seed uint64) SourceFactory {
	return func() NoiseSource {
		return rand.New(rand.NewPCG(seed, seed))
	}
}

// TimeSeeded returns a factory seeded from the clock on every call.
func TimeSeeded() SourceFactory {
	return func() NoiseSource {
		n := uint64(time.Now().UnixNano())
		return rand.New(rand.NewPCG(n, n>>1))
	}
}

// NoNoise disables the perturbation.
func NoNoise() SourceFactory {
	return func() NoiseSource { return zeroSource{} }
}

type zeroSource struct{}

func (zeroSource) NormFloat64() float64 { return 0 }
