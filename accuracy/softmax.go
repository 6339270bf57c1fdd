package accuracy

import "math"

import "github.com/neurlang/probe/blob"

import "github.com/pkg/errors"

// Probs holds class probabilities laid out as [batch, classes, slots].
type Probs struct {
	Batch, Classes, Slots int
	P                     []float64
}

// At returns the probability of class c for sample n in slot s.
func (p *Probs) At(n, c, s int) float64 {
	return p.P[(n*p.Classes+c)*p.Slots+s]
}

// Row copies the class distribution of sample n in slot s into dst and returns it.
func (p *Probs) Row(dst []float64, n, s int) []float64 {
	dst = dst[:0]
	for c := 0; c < p.Classes; c++ {
		dst = append(dst, p.At(n, c, s))
	}
	return dst
}

// Softmax normalizes the class axis of a rank-3 logit blob.
func Softmax(b *blob.Blob) (*Probs, error) {
	if err := b.Expect(-1, -1, -1); err != nil {
		return nil, err
	}
	p := &Probs{Batch: b.Dim(0), Classes: b.Dim(1), Slots: b.Dim(2)}
	if p.Classes == 0 {
		return nil, errors.Wrapf(blob.ErrShape, "%s: no classes", b.Name)
	}
	p.P = make([]float64, b.Len())
	for n := 0; n < p.Batch; n++ {
		for s := 0; s < p.Slots; s++ {
			max := math.Inf(-1)
			for c := 0; c < p.Classes; c++ {
				if v := float64(b.At(n, c, s)); v > max {
					max = v
				}
			}
			sum := 0.0
			for c := 0; c < p.Classes; c++ {
				e := math.Exp(float64(b.At(n, c, s)) - max)
				p.P[(n*p.Classes+c)*p.Slots+s] = e
				sum += e
			}
			for c := 0; c < p.Classes; c++ {
				p.P[(n*p.Classes+c)*p.Slots+s] /= sum
			}
		}
	}
	return p, nil
}

// Argmax returns the index of the largest value. On ties the lowest index wins.
func Argmax(row []float64) int {
	best := 0
	for i := range row {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// GeometricMean is exp of the mean of the logs.
func GeometricMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Log(v)
	}
	return math.Exp(sum / float64(len(values)))
}
