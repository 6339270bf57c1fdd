package accuracy

import "math"
import "testing"

import "github.com/neurlang/probe/blob"

import "github.com/pkg/errors"
import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

// logits builds a [batch, 10, 8] blob whose slots 3 and 7 favour the given classes.
func logits(batch int, left, right []int) *blob.Blob {
	b := blob.New("predict_output", batch, 10, 8)
	for n := 0; n < batch; n++ {
		b.Set(5, n, left[n%len(left)], 3)
		b.Set(5, n, right[n%len(right)], 7)
	}
	return b
}

func labels(batch, left, right int) *blob.Blob {
	b := blob.New("label", batch, 2)
	for n := 0; n < batch; n++ {
		b.Set(float32(left), n, 0)
		b.Set(float32(right), n, 1)
	}
	return b
}

func TestSoftmaxSumsToOne(t *testing.T) {
	b := blob.New("x", 3, 10, 8)
	for i := range b.Data {
		b.Data[i] = float32((i*37)%23) - 11
	}
	b.Data[5] = 800
	p, err := Softmax(b)
	require.NoError(t, err)
	for n := 0; n < p.Batch; n++ {
		for s := 0; s < p.Slots; s++ {
			sum := 0.0
			for c := 0; c < p.Classes; c++ {
				v := p.At(n, c, s)
				assert.False(t, math.IsNaN(v))
				sum += v
			}
			assert.InDelta(t, 1, sum, 1e-9, "sample %d slot %d", n, s)
		}
	}
}

func TestSoftmaxRank(t *testing.T) {
	_, err := Softmax(blob.New("x", 2, 10))
	assert.True(t, errors.Is(err, blob.ErrShape))
}

func TestArgmaxTieBreak(t *testing.T) {
	row := []float64{0.05, 0.1, 0.3, 0.05, 0.1, 0.3, 0.1, 0, 0, 0}
	assert.Equal(t, 2, Argmax(row))
	assert.Equal(t, 0, Argmax([]float64{1, 1, 1}))
	assert.Equal(t, 0, Argmax(nil))
}

func TestGeometricMean(t *testing.T) {
	values := []float64{0.2, 0.3, 0.5}
	direct := math.Cbrt(0.2 * 0.3 * 0.5)
	assert.InDelta(t, direct, GeometricMean(values), 1e-12)
	assert.InDelta(t, 0.3107, GeometricMean(values), 1e-4)
}

func TestAccumulatorPerfect(t *testing.T) {
	a := NewAccumulator(nil, Clamp)
	for pat := 0; pat < 4; pat++ {
		a.BeginPattern()
		p, err := Softmax(logits(8, []int{pat}, []int{9 - pat}))
		require.NoError(t, err)
		require.NoError(t, a.AddBatch(p, labels(8, pat, 9-pat)))
		a.EndPattern()
	}
	r := a.Report()
	assert.Equal(t, 1.0, r.Frac)
	assert.Equal(t, 1.0, r.FracAvg)
	assert.Equal(t, 1.0, r.FracLogAvg)
	assert.Equal(t, 32, r.Samples)
	assert.Equal(t, 4, r.Patterns)
	assert.Equal(t, "frac=1, frac_avg=1, frac_logavg=1", r.String())
}

func TestAccumulatorHalfPoints(t *testing.T) {
	a := NewAccumulator(nil, Clamp)
	a.BeginPattern()
	// left always right, right digit correct in one of four samples
	p, _ := Softmax(logits(4, []int{1}, []int{2, 0, 0, 0}))
	require.NoError(t, a.AddBatch(p, labels(4, 1, 2)))
	a.EndPattern()
	r := a.Report()
	assert.InDelta(t, (4*0.5+1*0.5)/4, r.Frac, 1e-12)
	assert.Equal(t, 0.0, r.FracAvg)
	assert.Equal(t, 0.0, r.FracLogAvg)
}

func TestAccumulatorMeansDiffer(t *testing.T) {
	// Slot 3: class 1 dominates two samples and vanishes in the other two,
	// class 2 is present everywhere. The arithmetic mean follows class 1,
	// the geometric mean follows class 2.
	b := blob.New("predict_output", 4, 10, 8)
	for n := 0; n < 2; n++ {
		b.Set(20, n, 1, 3)
		b.Set(float32(20-math.Log(9)), n, 2, 3)
	}
	for n := 2; n < 4; n++ {
		b.Set(-30, n, 1, 3)
		b.Set(float32(math.Log(0.3*8/0.7)), n, 2, 3)
	}
	for n := 0; n < 4; n++ {
		b.Set(5, n, 6, 7)
	}
	p, err := Softmax(b)
	require.NoError(t, err)

	a := NewAccumulator(nil, Clamp)
	a.BeginPattern()
	require.NoError(t, a.AddBatch(p, labels(4, 1, 6)))
	a.EndPattern()
	r := a.Report()
	assert.Equal(t, 1.0, r.FracAvg)
	assert.Equal(t, 0.0, r.FracLogAvg)
	assert.InDelta(t, 0.75, r.Frac, 1e-12)
}

func TestAccumulatorFractionBounded(t *testing.T) {
	a := NewAccumulator(nil, Clamp)
	for pat := 0; pat < 5; pat++ {
		a.BeginPattern()
		for batch := 0; batch < 3; batch++ {
			p, _ := Softmax(logits(6, []int{pat, 3, 4}, []int{batch, 8}))
			require.NoError(t, a.AddBatch(p, labels(6, pat, 8)))
		}
		a.EndPattern()
	}
	r := a.Report()
	for _, v := range []float64{r.Frac, r.FracAvg, r.FracLogAvg} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, 90, r.Samples)
}

func TestAccumulatorLabelDrift(t *testing.T) {
	a := NewAccumulator(nil, Clamp)
	a.BeginPattern()
	p, _ := Softmax(logits(2, []int{1}, []int{2}))
	require.NoError(t, a.AddBatch(p, labels(2, 1, 2)))
	err := a.AddBatch(p, labels(2, 1, 3))
	assert.True(t, errors.Is(err, ErrLabelDrift), "%v", err)
}

func TestAccumulatorShapes(t *testing.T) {
	a := NewAccumulator(nil, Clamp)
	p, _ := Softmax(logits(2, []int{1}, []int{2}))
	assert.Error(t, a.AddBatch(p, labels(2, 1, 2)), "outside a pattern")
	a.BeginPattern()
	assert.True(t, errors.Is(a.AddBatch(p, labels(3, 1, 2)), blob.ErrShape))
	small, _ := Softmax(blob.New("x", 2, 10, 4))
	assert.True(t, errors.Is(a.AddBatch(small, labels(2, 1, 2)), blob.ErrShape))
}

func TestZeroPolicies(t *testing.T) {
	p := &Probs{Batch: 1, Classes: 2, Slots: 8, P: make([]float64, 16)}
	for s := 0; s < 8; s++ {
		p.P[s] = 1 // class 0 certain, class 1 exactly zero
	}
	tests := []struct {
		zero ZeroPolicy
		fail bool
	}{
		{Clamp, false},
		{Propagate, false},
		{Fail, true},
	}
	for _, tt := range tests {
		t.Run(tt.zero.String(), func(t *testing.T) {
			a := NewAccumulator(nil, tt.zero)
			a.BeginPattern()
			err := a.AddBatch(p, labels(1, 0, 0))
			if tt.fail {
				assert.True(t, errors.Is(err, ErrZeroProbability), "%v", err)
				return
			}
			require.NoError(t, err)
			a.EndPattern()
			assert.Equal(t, 1.0, a.Report().FracLogAvg)
		})
	}
}

func TestParseZeroPolicy(t *testing.T) {
	for _, z := range []ZeroPolicy{Clamp, Propagate, Fail} {
		got, err := ParseZeroPolicy(z.String())
		require.NoError(t, err)
		assert.Equal(t, z, got)
	}
	_, err := ParseZeroPolicy("skip")
	assert.Error(t, err)
}

func TestEmptyReport(t *testing.T) {
	assert.Equal(t, "frac=0, frac_avg=0, frac_logavg=0", NewAccumulator(nil, Clamp).Report().String())
}
