package pipeline

import "log"
import "os"

import "github.com/neurlang/probe/blob"
import "github.com/neurlang/probe/composite"
import "github.com/neurlang/probe/engine"

import "github.com/pkg/errors"

// GenConfig configures Generate.
type GenConfig struct {
	Batches int
	Output  string
	Path    string
	Rows    int
	Cols    int
	Log     *log.Logger
}

// DefaultGen fills a 10x10 grid from three passes of the "generated" blob.
func DefaultGen() GenConfig {
	return GenConfig{Batches: 3, Output: "generated", Path: "composite.png", Rows: 10, Cols: 10}
}

// tiles checks that every sample of b holds at least one tile-sized
// channel and returns the sample count.
func tiles(b *blob.Blob, name string) (int, error) {
	if b.Rank() < 2 || b.Dim(0) == 0 {
		return 0, errors.Errorf("%s: no samples", name)
	}
	samples := b.Dim(0)
	if stride := b.Len() / samples; stride < composite.Tile*composite.Tile {
		return 0, errors.Errorf("%s: %d values per sample, need %d", name, stride, composite.Tile*composite.Tile)
	}
	return samples, nil
}

// Generate runs Batches passes and tiles the first channel of every
// generated sample in arrival order until the grid is full, then writes it.
func Generate(m engine.Model, cfg GenConfig) (int, error) {
	lg := logger(cfg.Log)
	seq := &composite.Sequential{Grid: composite.NewGrid(cfg.Rows, cfg.Cols, composite.Tile)}
	err := engine.Forward(m, cfg.Batches, func(pass int) error {
		out, err := m.Blob(cfg.Output)
		if err != nil {
			return err
		}
		samples, err := tiles(out, cfg.Output)
		if err != nil {
			return err
		}
		for n := 0; n < samples; n++ {
			ok, err := seq.Add(out.Sample(n)[:composite.Tile*composite.Tile])
			if err != nil || !ok {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return seq.Placed(), err
	}
	if err := seq.Grid.WritePNG(cfg.Path); err != nil {
		return seq.Placed(), err
	}
	lg.Printf("wrote %d samples to %s", seq.Placed(), cfg.Path)
	return seq.Placed(), nil
}

// Axes is a latent input that can be pointed at a pair of axes.
type Axes interface {
	SetAxes(i, j int) error
}

// SweepConfig configures Sweep.
type SweepConfig struct {
	Axes   int
	Latent Axes
	Output string
	Dir    string
	Rows   int
	Cols   int
	Log    *log.Logger
}

// DefaultSweep sweeps 10 axes of the "decoder_sample" blob into debug/.
func DefaultSweep(latent Axes) SweepConfig {
	return SweepConfig{Axes: 10, Latent: latent, Output: "decoder_sample", Dir: "debug", Rows: 10, Cols: 10}
}

// Sweep runs one pass per axis pair (i <= j) and writes one composite per
// pair into Dir, which must already exist. It returns the written paths.
func Sweep(m engine.Model, cfg SweepConfig) ([]string, error) {
	lg := logger(cfg.Log)
	if st, err := os.Stat(cfg.Dir); err != nil {
		return nil, errors.Wrap(err, "sweep output")
	} else if !st.IsDir() {
		return nil, errors.Errorf("sweep output %s is not a directory", cfg.Dir)
	}
	if cfg.Latent == nil {
		return nil, errors.Wrap(engine.ErrNoSource, "sweep")
	}
	grid := composite.NewGrid(cfg.Rows, cfg.Cols, composite.Tile)
	var paths []string
	for _, p := range composite.Pairs(cfg.Axes) {
		if err := cfg.Latent.SetAxes(p.I, p.J); err != nil {
			return paths, err
		}
		err := engine.Forward(m, 1, func(int) error {
			out, err := m.Blob(cfg.Output)
			if err != nil {
				return err
			}
			samples, err := tiles(out, cfg.Output)
			if err != nil {
				return err
			}
			if samples < grid.Cells() {
				return errors.Errorf("%s: %d samples for %d cells", cfg.Output, samples, grid.Cells())
			}
			grid.Clear()
			for cell := 0; cell < grid.Cells(); cell++ {
				if err := grid.Place(cell, out.Sample(cell)[:composite.Tile*composite.Tile]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return paths, errors.Wrapf(err, "axes %d,%d", p.I, p.J)
		}
		path := composite.PairPath(cfg.Dir, p)
		if err := grid.WritePNG(path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	lg.Printf("wrote %d composites to %s", len(paths), cfg.Dir)
	return paths, nil
}
