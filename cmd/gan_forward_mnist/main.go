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
	topo := flag.String("topology", "examples/mnist/gan.onnx", "model topology")
	weights := flag.String("weights", "examples/mnist/gan_iter_1145000.onnx.data", "weight file")
	batches := flag.Int("batches", 3, "forward passes")
	batch := flag.Int("batch", 2, "samples per forward pass")
	out := flag.String("out", "composite.png", "composite image path")
	input := flag.String("input", "z", "latent input name")
	dim := flag.Int("dim", 100, "latent dimension")
	seed := flag.Int64("seed", 1, "latent noise seed")
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

	m, err := engine.Open(*backend, engine.Config{
		Topology: *topo,
		Weights:  *weights,
		Device:   gpu,
		Phase:    engine.Train,
		Batch:    *batch,
		Shapes:   map[string][]int{"generated": {*batch, 1, 28, 28}},
		Source:   source.NewNoise(*input, *dim, *seed),
		Seed:     *seed,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg := pipeline.DefaultGen()
	cfg.Batches = *batches
	cfg.Path = *out
	_, err = pipeline.Generate(m, cfg)
	m.Close()
	if err != nil {
		log.Fatalf("%v", err)
	}
}
