package pipeline

import "log"

import "github.com/neurlang/probe/accuracy"
import "github.com/neurlang/probe/engine"

import "github.com/pkg/errors"

// EvalConfig configures Evaluate.
type EvalConfig struct {
	// Patterns is the number of input patterns, Batches the forward passes per pattern.
	Patterns int
	Batches  int
	Output   string
	Label    string
	Slots    []accuracy.Slot
	Zero     accuracy.ZeroPolicy
	// Every sets how often progress is logged, in patterns.
	Every int
	Log   *log.Logger
}

// DefaultEval mirrors the digit-pair classifier: 10000 patterns of one pass each.
func DefaultEval() EvalConfig {
	return EvalConfig{
		Patterns: 10000,
		Batches:  1,
		Output:   "predict_output",
		Label:    "label",
		Slots:    accuracy.DefaultSlots,
		Every:    100,
	}
}

func logger(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}

// Evaluate scores Patterns input patterns and returns the three fractions.
func Evaluate(m engine.Model, cfg EvalConfig) (accuracy.Report, error) {
	lg := logger(cfg.Log)
	if cfg.Patterns <= 0 || cfg.Batches <= 0 {
		return accuracy.Report{}, errors.Errorf("evaluate: %d patterns of %d batches", cfg.Patterns, cfg.Batches)
	}
	total, err := engine.TotalCount(m)
	if err != nil {
		return accuracy.Report{}, err
	}
	lg.Printf("model on %s, total blob count %d", m.Device(), total)

	acc := accuracy.NewAccumulator(cfg.Slots, cfg.Zero)
	for pat := 0; pat < cfg.Patterns; pat++ {
		if cfg.Every > 0 && pat%cfg.Every == 0 {
			lg.Printf("working on input %d of %d", pat, cfg.Patterns)
		}
		acc.BeginPattern()
		err := engine.Forward(m, cfg.Batches, func(int) error {
			out, err := m.Blob(cfg.Output)
			if err != nil {
				return err
			}
			label, err := m.Blob(cfg.Label)
			if err != nil {
				return err
			}
			probs, err := accuracy.Softmax(out)
			if err != nil {
				return err
			}
			return acc.AddBatch(probs, label)
		})
		if err != nil {
			return accuracy.Report{}, errors.Wrapf(err, "input %d", pat)
		}
		acc.EndPattern()
	}
	return acc.Report(), nil
}

// EvaluateWeights evaluates the model once per weight file. Every file gets
// its own model, a fresh source from feed and a fresh accumulator, so no
// score carries over from one file to the next.
func EvaluateWeights(backend string, base engine.Config, weights []string, feed func() engine.Source, cfg EvalConfig) ([]accuracy.Report, error) {
	reports := make([]accuracy.Report, 0, len(weights))
	for _, w := range weights {
		mc := base
		mc.Weights = w
		mc.Source = feed()
		m, err := engine.Open(backend, mc)
		if err != nil {
			return reports, err
		}
		r, err := Evaluate(m, cfg)
		m.Close()
		if err != nil {
			return reports, errors.Wrap(err, w)
		}
		reports = append(reports, r)
	}
	return reports, nil
}
