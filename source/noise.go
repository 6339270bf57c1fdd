package source

import "math/rand"

import "github.com/neurlang/probe/blob"
import "github.com/neurlang/probe/engine"

// Noise feeds standard normal latent vectors of length Dim.
type Noise struct {
	Input string
	Dim   int
	rng   *rand.Rand
}

// NewNoise returns a seeded Gaussian source.
func NewNoise(input string, dim int, seed int64) *Noise {
	return &Noise{Input: input, Dim: dim, rng: rand.New(rand.NewSource(seed))}
}

// Next implements engine.Source with a [batch, Dim] input.
func (s *Noise) Next(batch int) (engine.Feed, error) {
	z := blob.New(s.Input, batch, s.Dim)
	for i := range z.Data {
		z.Data[i] = float32(s.rng.NormFloat64())
	}
	return engine.Feed{Inputs: map[string]*blob.Blob{s.Input: z}}, nil
}
