package source

import "math/rand"

import "github.com/neurlang/probe/blob"
import "github.com/neurlang/probe/datasets/mnist"
import "github.com/neurlang/probe/engine"

import "github.com/pkg/errors"

// Canvas is the side of the square every sample is drawn on.
const Canvas = 100

// Scale maps a byte to [0,1) as 1/256.
const Scale = 0.00390625

// Digits shows one test digit per input pattern. Every sample of a pass
// draws that digit twice, at two independent random positions on a black
// Canvas x Canvas square, the left copy first. Both label columns carry the
// digit's class. Each pattern is served Repeat times before the next one.
type Digits struct {
	Set    *mnist.Set
	Input  string
	Label  string
	Repeat int

	rng     *rand.Rand
	pattern int
	pass    int
}

// NewDigits serves each pattern for repeat consecutive passes. seed fixes
// the placement of the copies.
func NewDigits(set *mnist.Set, repeat int, seed int64) *Digits {
	if repeat <= 0 {
		repeat = 1
	}
	return &Digits{
		Set:    set,
		Input:  "data",
		Label:  "label",
		Repeat: repeat,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Datum returns the index of the digit shown by input pattern k.
func (d *Digits) Datum(k int) int {
	return k % d.Set.Len()
}

// Next implements engine.Source. The input is [batch, 1, Canvas, Canvas]
// and the label side blob [batch, 2].
func (d *Digits) Next(batch int) (engine.Feed, error) {
	if d.Set == nil || d.Set.Len() == 0 {
		return engine.Feed{}, errors.New("digits: empty set")
	}
	idx := d.Datum(d.pattern)
	img := &d.Set.Images[idx]
	class := float32(d.Set.Labels[idx])

	const size = mnist.ImgSize
	const room = Canvas - size
	in := blob.New(d.Input, batch, 1, Canvas, Canvas)
	label := blob.New(d.Label, batch, 2)
	for n := 0; n < batch; n++ {
		x1, y1 := int(room*d.rng.Float64()), int(room*d.rng.Float64())
		x2, y2 := int(room*d.rng.Float64()), int(room*d.rng.Float64())
		if x1 > x2 {
			x1, x2 = x2, x1
		}
		sample := in.Data[n*Canvas*Canvas : (n+1)*Canvas*Canvas]
		for _, at := range [2][2]int{{x1, y1}, {x2, y2}} {
			for y := 0; y < size; y++ {
				for x := 0; x < size; x++ {
					sample[(at[1]+y)*Canvas+at[0]+x] = float32(img[y*size+x]) * Scale
				}
			}
		}
		label.Set(class, n, 0)
		label.Set(class, n, 1)
	}

	d.pass++
	if d.pass == d.Repeat {
		d.pass = 0
		d.pattern++
	}
	return engine.Feed{
		Inputs: map[string]*blob.Blob{d.Input: in},
		Side:   map[string]*blob.Blob{d.Label: label},
	}, nil
}
