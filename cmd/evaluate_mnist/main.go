package main

import "flag"
import "fmt"
import "log"
import "strings"

import "github.com/neurlang/probe/accuracy"
import "github.com/neurlang/probe/datasets/mnist"
import "github.com/neurlang/probe/engine"
import _ "github.com/neurlang/probe/engine/onnx"
import _ "github.com/neurlang/probe/engine/sim"
import "github.com/neurlang/probe/pipeline"
import "github.com/neurlang/probe/source"

func main() {
	dev := flag.Int("device", 1, "device index, -1 for cpu")
	topo := flag.String("topology", "examples/mnist/dram.onnx", "model topology")
	weights := flag.String("weights", "examples/mnist/dram_iter_300000.onnx.data", "comma separated weight files, each evaluated on its own")
	dir := flag.String("mnist", mnist.DefaultDirectory, "directory holding the MNIST test files")
	patterns := flag.Int("patterns", 10000, "number of input patterns")
	batches := flag.Int("batches", 1, "forward passes per input pattern")
	batch := flag.Int("batch", 512, "samples per forward pass")
	zero := flag.String("zero", "clamp", "zero probability in the geometric mean: clamp, propagate or fail")
	seed := flag.Int64("seed", 1, "seed placing the digit copies")
	backend := flag.String("backend", "onnx", "engine backend")
	flag.Parse()

	zp, err := accuracy.ParseZeroPolicy(*zero)
	if err != nil {
		log.Fatalf("%v", err)
	}
	set, err := mnist.LoadTest(*dir)
	if err != nil {
		log.Fatalf("%v", err)
	}

	weightFiles := strings.Split(*weights, ",")
	base := engine.Config{
		Topology: *topo,
		Device:   *dev,
		Phase:    engine.Test,
		Batch:    *batch,
		Shapes: map[string][]int{
			"predict_output": {*batch, 10, 8},
			"label":          {*batch, 2},
		},
	}
	feed := func() engine.Source {
		return source.NewDigits(set, *batches, *seed)
	}
	cfg := pipeline.DefaultEval()
	cfg.Patterns = *patterns
	cfg.Batches = *batches
	cfg.Zero = zp
	reports, err := pipeline.EvaluateWeights(*backend, base, weightFiles, feed, cfg)
	for i, report := range reports {
		log.Printf("weights %s", weightFiles[i])
		fmt.Println(report)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
