package onnx

import "log"
import "os"
import "sort"
import "strconv"
import "sync"

import "github.com/neurlang/probe/blob"
import "github.com/neurlang/probe/device"
import "github.com/neurlang/probe/engine"
import "github.com/neurlang/probe/topology"

import "github.com/pkg/errors"
import ort "github.com/yalue/onnxruntime_go"

// LibraryEnv names the environment variable holding the runtime library path.
const LibraryEnv = "ONNXRUNTIME_LIB"

func init() {
	engine.Register("onnx", Open)
}

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment() error {
	envOnce.Do(func() {
		if path := os.Getenv(LibraryEnv); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

type tensor struct {
	name  string
	shape []int
	t     *ort.Tensor[float32]
}

// Model is an ONNX Runtime session with pre-allocated input and output tensors.
type Model struct {
	cfg     engine.Config
	dev     device.Info
	session *ort.AdvancedSession
	inputs  []tensor
	outputs []tensor
	side    map[string]*blob.Blob
	// staged is the temporary directory holding the selected weights, if any.
	staged string
}

// Open validates the topology against the configuration and creates the session.
func Open(cfg engine.Config, dev device.Info) (engine.Model, error) {
	graph, err := topology.Load(cfg.Topology)
	if err != nil {
		return nil, err
	}
	if err := graph.CheckWeights(cfg.Topology, cfg.Weights); err != nil {
		return nil, err
	}
	if cfg.Phase == engine.Train && !graph.Stochastic() {
		log.Printf("onnx: %s has no stochastic operators, train phase behaves like test", cfg.Topology)
	}
	if len(graph.Inputs) > 0 && cfg.Source == nil {
		return nil, engine.ErrNoSource
	}

	side, err := sideBlobs(cfg, graph)
	if err != nil {
		return nil, err
	}
	m := &Model{cfg: cfg, dev: dev, side: side}
	ok := false
	defer func() {
		if !ok {
			m.Close()
		}
	}()

	for _, in := range graph.Inputs {
		t, err := newTensor(in, cfg.Batch)
		if err != nil {
			return nil, errors.Wrap(err, "input")
		}
		m.inputs = append(m.inputs, t)
	}
	for _, name := range cfg.Outputs() {
		out, found := graph.Output(name)
		if !found {
			// published by the source, not by the graph
			continue
		}
		t, err := newTensor(out, cfg.Batch)
		if err != nil {
			return nil, errors.Wrap(err, "output")
		}
		m.outputs = append(m.outputs, t)
		if err := (&blob.Blob{Name: name, Shape: t.shape}).Expect(cfg.Shapes[name]...); err != nil {
			return nil, err
		}
	}
	if len(m.outputs) == 0 {
		return nil, errors.Errorf("none of %v is a graph output", cfg.Outputs())
	}

	if err := initEnvironment(); err != nil {
		return nil, errors.Wrap(err, "initialize onnxruntime")
	}
	opts, err := sessionOptions(dev)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	model, staged, err := graph.Stage(cfg.Topology, cfg.Weights)
	if err != nil {
		return nil, err
	}
	m.staged = staged

	inNames, inValues := values(m.inputs)
	outNames, outValues := values(m.outputs)
	m.session, err = ort.NewAdvancedSession(model, inNames, outNames, inValues, outValues, opts)
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	ok = true
	return m, nil
}

// sideBlobs allocates the configured blobs the graph does not produce. The
// source overwrites them on every pass; allocating them up front lists and
// counts them before the first one.
func sideBlobs(cfg engine.Config, graph *topology.Graph) (map[string]*blob.Blob, error) {
	side := map[string]*blob.Blob{}
	for _, name := range cfg.Outputs() {
		if _, found := graph.Output(name); found {
			continue
		}
		shape := append([]int(nil), cfg.Shapes[name]...)
		for i, d := range shape {
			if d >= 0 {
				continue
			}
			if i != 0 {
				return nil, errors.Wrapf(blob.ErrShape, "%s: axis %d is symbolic", name, i)
			}
			shape[i] = cfg.Batch
		}
		side[name] = blob.New(name, shape...)
	}
	return side, nil
}

func newTensor(v topology.Value, batch int) (tensor, error) {
	if v.ElemType != topology.ElemFloat {
		return tensor{}, errors.Errorf("%s: element type %d, only float32 is supported", v.Name, v.ElemType)
	}
	if len(v.Dims) == 0 {
		return tensor{}, errors.Errorf("%s: no static shape", v.Name)
	}
	shape := make([]int, len(v.Dims))
	dims := make([]int64, len(v.Dims))
	for i, d := range v.Dims {
		if d < 0 {
			if i != 0 {
				return tensor{}, errors.Wrapf(blob.ErrShape, "%s: axis %d is symbolic", v.Name, i)
			}
			d = batch
		}
		shape[i] = d
		dims[i] = int64(d)
	}
	t, err := ort.NewEmptyTensor[float32](ort.NewShape(dims...))
	if err != nil {
		return tensor{}, errors.Wrapf(err, "allocate %s", v.Name)
	}
	return tensor{name: v.Name, shape: shape, t: t}, nil
}

func values(ts []tensor) ([]string, []ort.Value) {
	names := make([]string, len(ts))
	vals := make([]ort.Value, len(ts))
	for i, t := range ts {
		names[i] = t.name
		vals[i] = t.t
	}
	return names, vals
}

func sessionOptions(dev device.Info) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "session options")
	}
	if dev.IsCPU() {
		return opts, nil
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		opts.Destroy()
		return nil, errors.Wrap(err, "cuda provider options")
	}
	defer cuda.Destroy()
	err = cuda.Update(map[string]string{"device_id": strconv.Itoa(dev.Index)})
	if err == nil {
		err = opts.AppendExecutionProviderCUDA(cuda)
	}
	if err != nil {
		opts.Destroy()
		return nil, errors.Wrapf(device.ErrUnavailable, "cuda:%d: %v", dev.Index, err)
	}
	return opts, nil
}

// Forward copies the next feed into the input tensors and runs the session.
func (m *Model) Forward() error {
	if m.session == nil {
		return errors.New("onnx: model closed")
	}
	var feed engine.Feed
	if m.cfg.Source != nil {
		var err error
		feed, err = m.cfg.Source.Next(m.cfg.Batch)
		if err != nil {
			return errors.Wrap(err, "onnx: source")
		}
	}
	for _, in := range m.inputs {
		b, ok := feed.Inputs[in.name]
		if !ok {
			return errors.Wrapf(engine.ErrNoSource, "input %s not fed", in.name)
		}
		dst := in.t.GetData()
		if b.Len() != len(dst) {
			return errors.Wrapf(blob.ErrShape, "input %s: fed %v, want %v", in.name, b.Shape, in.shape)
		}
		copy(dst, b.Data)
	}
	for name, b := range feed.Side {
		if want, ok := m.cfg.Shapes[name]; ok {
			if err := b.Expect(want...); err != nil {
				return err
			}
		}
		m.side[name] = b.Clone()
	}
	return m.session.Run()
}

// Blob copies an output tensor, or returns a side blob of the last feed.
func (m *Model) Blob(name string) (*blob.Blob, error) {
	for _, out := range m.outputs {
		if out.name == name {
			return blob.FromData(name, out.t.GetData(), out.shape...)
		}
	}
	if b, ok := m.side[name]; ok {
		return b.Clone(), nil
	}
	return nil, errors.Wrapf(engine.ErrNoBlob, "onnx: %s", name)
}

// Names lists the outputs and the side blobs.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.outputs)+len(m.side))
	for _, out := range m.outputs {
		names = append(names, out.name)
	}
	for name := range m.side {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Device is the device the session was created for.
func (m *Model) Device() device.Info {
	return m.dev
}

// Close destroys the session and its tensors.
func (m *Model) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if m.session != nil {
		keep(m.session.Destroy())
		m.session = nil
	}
	for _, ts := range [][]tensor{m.inputs, m.outputs} {
		for _, t := range ts {
			keep(t.t.Destroy())
		}
	}
	m.inputs, m.outputs = nil, nil
	if m.staged != "" {
		keep(os.RemoveAll(m.staged))
		m.staged = ""
	}
	return first
}
