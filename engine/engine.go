package engine

import "sort"
import "sync"

import "github.com/neurlang/probe/blob"
import "github.com/neurlang/probe/device"

import "github.com/pkg/errors"

// ErrUnknownBackend is returned by Open for an unregistered backend name.
var ErrUnknownBackend = errors.New("unknown engine backend")

// ErrNoSource is returned when a model has inputs but no Source feeds them.
var ErrNoSource = errors.New("model inputs have no source")

// ErrNoBlob is returned by Model.Blob for a name the model does not produce.
var ErrNoBlob = errors.New("no such blob")

// Phase is the execution mode a model is bound to.
type Phase int

const (
	// Test runs inference only.
	Test Phase = iota
	// Train keeps stochastic layers such as dropout active.
	Train
)

func (p Phase) String() string {
	if p == Train {
		return "train"
	}
	return "test"
}

// Feed is what a Source produces for one forward pass: the tensors written
// into the model inputs, and side blobs such as ground-truth labels that
// are published next to the model outputs.
type Feed struct {
	Inputs map[string]*blob.Blob
	Side   map[string]*blob.Blob
}

// Source produces the input of consecutive forward passes.
type Source interface {
	Next(batch int) (Feed, error)
}

// Config selects a topology, its weights, a device and an execution mode.
// It is created once per process and passed explicitly to Open.
type Config struct {
	Topology string
	Weights  string
	Device   int
	Phase    Phase
	// Batch fixes symbolic leading dimensions.
	Batch int
	// Shapes lists the blobs the caller reads and the dimensions it indexes
	// them with; negative entries accept any size.
	Shapes map[string][]int
	Source Source
	Seed   int64
}

// Outputs returns the names in Shapes in sorted order.
func (c *Config) Outputs() []string {
	names := make([]string, 0, len(c.Shapes))
	for name := range c.Shapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model is a loaded network bound to one device. Forward overwrites the
// model's output buffers; Blob returns an owned copy, so a blob read after
// pass N stays valid while pass N+1 runs. A Model is not safe for
// concurrent use.
type Model interface {
	Forward() error
	Blob(name string) (*blob.Blob, error)
	Names() []string
	Device() device.Info
	Close() error
}

// Opener loads a model for a backend after the device has been probed.
type Opener func(cfg Config, dev device.Info) (Model, error)

var (
	mu       sync.Mutex
	backends = map[string]Opener{}
)

// Register makes a backend available to Open. It panics on a duplicate name.
func Register(name string, open Opener) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := backends[name]; dup {
		panic("engine: Register called twice for backend " + name)
	}
	backends[name] = open
}

// Backends lists the registered backend names.
func Backends() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open probes the device and loads the model with the named backend.
func Open(backend string, cfg Config) (Model, error) {
	mu.Lock()
	open, ok := backends[backend]
	mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "%q (have %v)", backend, Backends())
	}
	if cfg.Batch <= 0 {
		return nil, errors.Errorf("batch size must be > 0 (got %d)", cfg.Batch)
	}
	dev, err := device.Probe(cfg.Device)
	if err != nil {
		return nil, err
	}
	m, err := open(cfg, dev)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: load %s", backend, cfg.Topology)
	}
	return m, nil
}

// TotalCount sums the element counts of every blob a model exposes.
func TotalCount(m Model) (int, error) {
	total := 0
	for _, name := range m.Names() {
		b, err := m.Blob(name)
		if err != nil {
			return 0, err
		}
		total += b.Len()
	}
	return total, nil
}

// Forward runs n sequential forward passes, calling consume after each one.
// Pass i+1 does not start before consume returns for pass i.
func Forward(m Model, n int, consume func(pass int) error) error {
	for i := 0; i < n; i++ {
		if err := m.Forward(); err != nil {
			return errors.Wrapf(err, "forward pass %d", i)
		}
		if consume == nil {
			continue
		}
		if err := consume(i); err != nil {
			return err
		}
	}
	return nil
}
