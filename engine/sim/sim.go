package sim

import "hash/fnv"
import "math"
import "math/rand"
import "os"
import "sort"

import "github.com/neurlang/probe/blob"
import "github.com/neurlang/probe/device"
import "github.com/neurlang/probe/engine"

import "github.com/pkg/errors"

// Margin is added to the logit of the labelled class.
const Margin = 3.0

// DropRate is the probability a latent component is zeroed in the Train phase.
const DropRate = 0.1

func init() {
	engine.Register("sim", Open)
}

// Model is the simulated engine.Model.
type Model struct {
	cfg      engine.Config
	dev      device.Info
	seed     int64
	rng      *rand.Rand
	blobs    map[string]*blob.Blob
	decoders map[string][]float64
	closed   bool
}

// Open allocates the configured blobs. Only the leading dimension may be
// symbolic; it takes the batch size.
func Open(cfg engine.Config, dev device.Info) (engine.Model, error) {
	if len(cfg.Shapes) == 0 {
		return nil, errors.New("sim: no output shapes configured")
	}
	seed, err := weightSeed(cfg)
	if err != nil {
		return nil, err
	}
	m := &Model{
		cfg:      cfg,
		dev:      dev,
		seed:     seed,
		rng:      rand.New(rand.NewSource(seed)),
		blobs:    map[string]*blob.Blob{},
		decoders: map[string][]float64{},
	}
	for name, dims := range cfg.Shapes {
		shape := append([]int(nil), dims...)
		for i, d := range shape {
			if d >= 0 {
				continue
			}
			if i != 0 {
				return nil, errors.Wrapf(blob.ErrShape, "sim: %s axis %d is symbolic", name, i)
			}
			shape[i] = cfg.Batch
		}
		m.blobs[name] = blob.New(name, shape...)
	}
	return m, nil
}

// weightSeed folds the content of the weight file into the seed, so distinct
// weight files give distinct models and the same file the same one.
func weightSeed(cfg engine.Config) (int64, error) {
	if cfg.Weights == "" {
		return cfg.Seed, nil
	}
	data, err := os.ReadFile(cfg.Weights)
	if err != nil {
		return 0, errors.Wrap(err, "sim: weights")
	}
	h := fnv.New64a()
	h.Write(data)
	return cfg.Seed ^ int64(h.Sum64()), nil
}

// Forward draws the next feed and synthesizes every output not provided as a side blob.
func (m *Model) Forward() error {
	if m.closed {
		return errors.New("sim: model closed")
	}
	var feed engine.Feed
	if m.cfg.Source != nil {
		var err error
		feed, err = m.cfg.Source.Next(m.cfg.Batch)
		if err != nil {
			return errors.Wrap(err, "sim: source")
		}
	}
	for name, side := range feed.Side {
		if want, ok := m.blobs[name]; ok {
			if err := side.Expect(want.Shape...); err != nil {
				return err
			}
		}
		m.blobs[name] = side.Clone()
	}
	latent := firstInput(feed.Inputs)
	label := feed.Side["label"]
	for _, name := range m.Names() {
		if _, ok := feed.Side[name]; ok {
			continue
		}
		b := m.blobs[name]
		if b.Rank() == 3 {
			m.logits(b, label)
		} else {
			m.images(b, latent)
		}
	}
	return nil
}

func firstInput(inputs map[string]*blob.Blob) *blob.Blob {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return inputs[names[0]]
}

// logits fills a [batch, classes, slots] blob. Slot s is biased towards
// label column s*columns/slots when a [batch, columns] label is present.
func (m *Model) logits(b *blob.Blob, label *blob.Blob) {
	batch, classes, slots := b.Dim(0), b.Dim(1), b.Dim(2)
	for n := 0; n < batch; n++ {
		for c := 0; c < classes; c++ {
			for s := 0; s < slots; s++ {
				v := m.rng.NormFloat64()
				if label != nil && label.Rank() == 2 && n < label.Dim(0) {
					col := s * label.Dim(1) / slots
					if int(label.At(n, col)) == c {
						v += Margin
					}
				}
				b.Set(float32(v), n, c, s)
			}
		}
	}
}

// images fills every sample with values in [0,1]. With a latent input of
// the same batch size each sample is sigmoid(W z) for a fixed W.
func (m *Model) images(b *blob.Blob, latent *blob.Blob) {
	batch := b.Dim(0)
	pixels := b.Len() / batch
	if latent == nil || latent.Rank() == 0 || latent.Dim(0) != batch {
		for i := range b.Data {
			b.Data[i] = float32(m.rng.Float64())
		}
		return
	}
	dim := latent.Len() / batch
	w := m.decoder(b.Name, pixels*dim)
	z := make([]float64, dim)
	for n := 0; n < batch; n++ {
		for k := range z {
			z[k] = float64(latent.Data[n*dim+k])
			if m.cfg.Phase == engine.Train && m.rng.Float64() < DropRate {
				z[k] = 0
			}
		}
		for p := 0; p < pixels; p++ {
			sum := 0.0
			for k, v := range z {
				sum += w[p*dim+k] * v
			}
			b.Data[n*pixels+p] = float32(1 / (1 + math.Exp(-sum)))
		}
	}
}

func (m *Model) decoder(name string, size int) []float64 {
	if w, ok := m.decoders[name]; ok && len(w) == size {
		return w
	}
	rng := rand.New(rand.NewSource(m.seed + int64(len(name))))
	w := make([]float64, size)
	for i := range w {
		w[i] = rng.NormFloat64()
	}
	m.decoders[name] = w
	return w
}

// Blob returns a copy of a configured blob.
func (m *Model) Blob(name string) (*blob.Blob, error) {
	b, ok := m.blobs[name]
	if !ok {
		return nil, errors.Wrapf(engine.ErrNoBlob, "sim: %s", name)
	}
	return b.Clone(), nil
}

// Names lists the configured blobs.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Device is the probed device the model pretends to run on.
func (m *Model) Device() device.Info {
	return m.dev
}

// Close releases nothing but rejects further passes.
func (m *Model) Close() error {
	m.closed = true
	return nil
}
