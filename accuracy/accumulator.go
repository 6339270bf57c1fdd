package accuracy

import "fmt"
import "math"
import "strconv"

import "github.com/neurlang/probe/blob"

import "github.com/pkg/errors"

// ErrZeroProbability is returned under the Fail policy when a probability
// entering the geometric mean is zero.
var ErrZeroProbability = errors.New("zero probability in geometric mean")

// ErrLabelDrift is returned when the ground truth changes between batches
// of the same input pattern.
var ErrLabelDrift = errors.New("label changed within an input pattern")

// Epsilon is the floor the Clamp policy applies before taking a logarithm.
const Epsilon = 1e-30

// ZeroPolicy decides what the geometric mean does with a zero probability.
type ZeroPolicy int

const (
	// Clamp raises zero to Epsilon.
	Clamp ZeroPolicy = iota
	// Propagate takes log(0) = -Inf, so the class can never win.
	Propagate
	// Fail aborts the evaluation.
	Fail
)

func (z ZeroPolicy) String() string {
	switch z {
	case Propagate:
		return "propagate"
	case Fail:
		return "fail"
	}
	return "clamp"
}

// ParseZeroPolicy reads clamp, propagate or fail.
func ParseZeroPolicy(s string) (ZeroPolicy, error) {
	for _, z := range []ZeroPolicy{Clamp, Propagate, Fail} {
		if z.String() == s {
			return z, nil
		}
	}
	return Clamp, errors.Errorf("unknown zero policy %q", s)
}

// Slot pairs a slot of the probability tensor with the label column
// holding its ground truth.
type Slot struct {
	Index  int
	Column int
}

// DefaultSlots scores slot 3 against the left digit and slot 7 against the right one.
var DefaultSlots = []Slot{{Index: 3, Column: 0}, {Index: 7, Column: 1}}

// Accumulator collects the three policies over a sequence of input
// patterns. Every pattern is bracketed by BeginPattern and EndPattern with
// one AddBatch per forward pass in between.
type Accumulator struct {
	Slots []Slot
	Zero  ZeroPolicy

	hits     float64
	samples  int
	patterns int
	avgHits  int
	logHits  int

	open   bool
	count  int
	truth  []int
	sum    [][]float64
	logSum [][]float64
	row    []float64
}

// NewAccumulator scores the given slots.
func NewAccumulator(slots []Slot, zero ZeroPolicy) *Accumulator {
	if len(slots) == 0 {
		slots = DefaultSlots
	}
	return &Accumulator{Slots: slots, Zero: zero}
}

// BeginPattern starts a new input pattern.
func (a *Accumulator) BeginPattern() {
	a.open = true
	a.count = 0
	a.truth = a.truth[:0]
	a.sum = a.sum[:0]
	a.logSum = a.logSum[:0]
}

// AddBatch scores one forward pass. label is [batch, columns].
func (a *Accumulator) AddBatch(p *Probs, label *blob.Blob) error {
	if !a.open {
		return errors.New("accuracy: AddBatch outside a pattern")
	}
	if err := label.Expect(p.Batch, -1); err != nil {
		return err
	}
	for _, sl := range a.Slots {
		if sl.Index < 0 || sl.Index >= p.Slots {
			return errors.Wrapf(blob.ErrShape, "slot %d of %d", sl.Index, p.Slots)
		}
		if sl.Column < 0 || sl.Column >= label.Dim(1) {
			return errors.Wrapf(blob.ErrShape, "label column %d of %d", sl.Column, label.Dim(1))
		}
	}
	if p.Batch == 0 {
		return nil
	}

	truth := make([]int, len(a.Slots))
	for k, sl := range a.Slots {
		truth[k] = int(label.At(0, sl.Column))
	}
	if len(a.truth) == 0 {
		a.truth = append(a.truth, truth...)
		for range a.Slots {
			a.sum = append(a.sum, make([]float64, p.Classes))
			a.logSum = append(a.logSum, make([]float64, p.Classes))
		}
	} else {
		for k := range truth {
			if truth[k] != a.truth[k] {
				return errors.Wrapf(ErrLabelDrift, "slot %d: %d then %d", a.Slots[k].Index, a.truth[k], truth[k])
			}
		}
		if len(a.sum[0]) != p.Classes {
			return errors.Wrapf(blob.ErrShape, "%d classes after %d", p.Classes, len(a.sum[0]))
		}
	}

	unit := 1 / float64(len(a.Slots))
	for n := 0; n < p.Batch; n++ {
		for k, sl := range a.Slots {
			a.row = p.Row(a.row, n, sl.Index)
			if Argmax(a.row) == int(label.At(n, sl.Column)) {
				a.hits += unit
			}
			for c, v := range a.row {
				a.sum[k][c] += v
				l, err := a.log(v)
				if err != nil {
					return errors.Wrapf(err, "sample %d class %d slot %d", n, c, sl.Index)
				}
				a.logSum[k][c] += l
			}
		}
	}
	a.count += p.Batch
	a.samples += p.Batch
	return nil
}

func (a *Accumulator) log(v float64) (float64, error) {
	if v > 0 {
		return math.Log(v), nil
	}
	switch a.Zero {
	case Propagate:
		return math.Log(v), nil
	case Fail:
		return 0, ErrZeroProbability
	}
	return math.Log(Epsilon), nil
}

// EndPattern decides the mean policies for the current pattern.
func (a *Accumulator) EndPattern() {
	if !a.open {
		return
	}
	a.open = false
	a.patterns++
	if a.count == 0 {
		return
	}
	avg, geo := true, true
	mean := make([]float64, len(a.sum[0]))
	for k := range a.Slots {
		for c := range mean {
			mean[c] = a.sum[k][c] / float64(a.count)
		}
		avg = avg && Argmax(mean) == a.truth[k]
		for c := range mean {
			mean[c] = math.Exp(a.logSum[k][c] / float64(a.count))
		}
		geo = geo && Argmax(mean) == a.truth[k]
	}
	if avg {
		a.avgHits++
	}
	if geo {
		a.logHits++
	}
}

// Report is the normalized result of an Accumulator.
type Report struct {
	Frac       float64
	FracAvg    float64
	FracLogAvg float64
	Samples    int
	Patterns   int
}

// Report normalizes the per-sample score by the samples seen and the mean
// policies by the patterns seen.
func (a *Accumulator) Report() Report {
	r := Report{Samples: a.samples, Patterns: a.patterns}
	if a.samples > 0 {
		r.Frac = a.hits / float64(a.samples)
	}
	if a.patterns > 0 {
		r.FracAvg = float64(a.avgHits) / float64(a.patterns)
		r.FracLogAvg = float64(a.logHits) / float64(a.patterns)
	}
	return r
}

func (r Report) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return fmt.Sprintf("frac=%s, frac_avg=%s, frac_logavg=%s", f(r.Frac), f(r.FracAvg), f(r.FracLogAvg))
}
