package main

import "flag"
import "fmt"
import "log"
import "os"
import "strconv"

import "github.com/neurlang/probe/engine"
import _ "github.com/neurlang/probe/engine/onnx"
import _ "github.com/neurlang/probe/engine/sim"
import "github.com/neurlang/probe/pipeline"
import "github.com/neurlang/probe/source"

func main() {
	topo := flag.String("topology", "examples/mnist/vae.onnx", "model topology")
	weights := flag.String("weights", "examples/mnist/vae_iter_1200000.onnx.data", "weight file")
	axes := flag.Int("axes", 10, "latent axes to sweep")
	dim := flag.Int("dim", 0, "latent dimension, 0 for the number of axes")
	span := flag.Float64("span", 3, "each axis is swept over [-span, span]")
	steps := flag.Int("steps", 10, "grid steps per axis")
	input := flag.String("input", "z", "latent input name")
	dir := flag.String("dir", "debug", "existing output directory")
	backend := flag.String("backend", "onnx", "engine backend")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] gpu\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	gpu, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		log.Fatalf("gpu: %v", err)
	}
	if *dim <= 0 {
		*dim = *axes
	}

	grid := source.NewLatentGrid(*input, *dim, *steps, *span)
	batch := *steps * *steps
	m, err := engine.Open(*backend, engine.Config{
		Topology: *topo,
		Weights:  *weights,
		Device:   gpu,
		Phase:    engine.Train,
		Batch:    batch,
		Shapes:   map[string][]int{"decoder_sample": {batch, 28 * 28}},
		Source:   grid,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg := pipeline.DefaultSweep(grid)
	cfg.Axes = *axes
	cfg.Dir = *dir
	cfg.Rows, cfg.Cols = *steps, *steps
	_, err = pipeline.Sweep(m, cfg)
	m.Close()
	if err != nil {
		log.Fatalf("%v", err)
	}
}
