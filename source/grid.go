package source

import "github.com/neurlang/probe/blob"
import "github.com/neurlang/probe/engine"

import "github.com/pkg/errors"

// LatentGrid sweeps latent axis I over the rows and axis J over the columns
// of a Steps x Steps grid, every other axis held at zero. When I == J both
// sweeps add up on the same axis.
type LatentGrid struct {
	Input string
	Dim   int
	Steps int
	Span  float64

	i, j int
}

// NewLatentGrid sweeps each axis over [-span, span] in steps values.
func NewLatentGrid(input string, dim, steps int, span float64) *LatentGrid {
	return &LatentGrid{Input: input, Dim: dim, Steps: steps, Span: span}
}

// SetAxes selects the pair of axes the next pass sweeps.
func (g *LatentGrid) SetAxes(i, j int) error {
	if i < 0 || j < 0 || i >= g.Dim || j >= g.Dim {
		return errors.Errorf("latent axes (%d,%d) out of range for dimension %d", i, j, g.Dim)
	}
	g.i, g.j = i, j
	return nil
}

// Value is the latent coordinate of grid step k.
func (g *LatentGrid) Value(k int) float64 {
	if g.Steps < 2 {
		return 0
	}
	return -g.Span + 2*g.Span*float64(k)/float64(g.Steps-1)
}

// Next implements engine.Source. Sample r*Steps+c sits in grid row r, column c.
func (g *LatentGrid) Next(batch int) (engine.Feed, error) {
	if batch != g.Steps*g.Steps {
		return engine.Feed{}, errors.Errorf("latent grid of %d steps needs batch %d, got %d", g.Steps, g.Steps*g.Steps, batch)
	}
	z := blob.New(g.Input, batch, g.Dim)
	for r := 0; r < g.Steps; r++ {
		for c := 0; c < g.Steps; c++ {
			n := r*g.Steps + c
			z.Data[n*g.Dim+g.i] += float32(g.Value(r))
			z.Data[n*g.Dim+g.j] += float32(g.Value(c))
		}
	}
	return engine.Feed{Inputs: map[string]*blob.Blob{g.Input: z}}, nil
}
