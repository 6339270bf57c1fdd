package topology

import "io"
import "os"
import "path/filepath"
import "strconv"

import "github.com/pkg/errors"
import "google.golang.org/protobuf/encoding/protowire"

// ErrIncompatibleWeights is returned when a weight file does not belong to a topology.
var ErrIncompatibleWeights = errors.New("weights incompatible with topology")

// ElemFloat is the ONNX TensorProto.DataType of float32.
const ElemFloat = 1

// field numbers of onnx.proto
const (
	modelIRVersion    = 1
	modelProducerName = 2
	modelGraph        = 7

	graphNode        = 1
	graphName        = 2
	graphInitializer = 5
	graphInput       = 11
	graphOutput      = 12

	nodeOpType = 4

	valueName = 1
	valueType = 2

	typeTensor       = 1
	tensorElemType   = 1
	tensorShape      = 2
	shapeDim         = 1
	dimValue         = 1
	dimParam         = 2
	initName         = 8
	initExternalData = 13
	initDataLocation = 14
	entryKey         = 1
	entryValue       = 2

	locationExternal = 1
)

// Value describes one graph input or output. A dimension of -1 is symbolic
// (for example a batch size fixed only when the session is created).
type Value struct {
	Name     string
	ElemType int
	Dims     []int
}

// Graph is the decoded subset of an ONNX ModelProto.
type Graph struct {
	Name      string
	Producer  string
	IRVersion int
	Inputs    []Value
	Outputs   []Value
	Ops       []string
	// External maps an initializer name to the file its data lives in.
	External map[string]string

	initializers map[string]struct{}
	// extent is the file size the external offsets and lengths require.
	extent int64
}

// Load reads and decodes a topology file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read topology")
	}
	g, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse topology %s", path)
	}
	return g, nil
}

// Parse decodes a serialized ONNX ModelProto.
func Parse(data []byte) (*Graph, error) {
	g := &Graph{External: map[string]string{}, initializers: map[string]struct{}{}}
	var graph []byte
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == modelIRVersion && typ == protowire.VarintType:
			g.IRVersion = int(x)
		case num == modelProducerName && typ == protowire.BytesType:
			g.Producer = string(v)
		case num == modelGraph && typ == protowire.BytesType:
			graph = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, errors.New("model has no graph")
	}
	if err := g.parseGraph(graph); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) parseGraph(data []byte) error {
	var inputs []Value
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case graphName:
			g.Name = string(v)
		case graphNode:
			op, err := parseNode(v)
			if err != nil {
				return errors.Wrap(err, "node")
			}
			g.Ops = append(g.Ops, op)
		case graphInitializer:
			if err := g.parseInitializer(v); err != nil {
				return errors.Wrap(err, "initializer")
			}
		case graphInput:
			val, err := parseValue(v)
			if err != nil {
				return errors.Wrap(err, "input")
			}
			inputs = append(inputs, val)
		case graphOutput:
			val, err := parseValue(v)
			if err != nil {
				return errors.Wrap(err, "output")
			}
			g.Outputs = append(g.Outputs, val)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// before IR version 4 initializers are also listed as graph inputs
	for _, in := range inputs {
		if _, ok := g.initializers[in.Name]; !ok {
			g.Inputs = append(g.Inputs, in)
		}
	}
	return nil
}

func parseNode(data []byte) (op string, err error) {
	err = walk(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num == nodeOpType && typ == protowire.BytesType {
			op = string(v)
		}
		return nil
	})
	return
}

func (g *Graph) parseInitializer(data []byte) error {
	var name, location string
	var offset, length int64
	var external bool
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == initName && typ == protowire.BytesType:
			name = string(v)
		case num == initDataLocation && typ == protowire.VarintType:
			external = x == locationExternal
		case num == initExternalData && typ == protowire.BytesType:
			key, value, err := parseEntry(v)
			if err != nil {
				return err
			}
			switch key {
			case "location":
				location = value
			case "offset":
				offset, err = strconv.ParseInt(value, 10, 64)
			case "length":
				length, err = strconv.ParseInt(value, 10, 64)
			}
			if err != nil {
				return errors.Wrapf(err, "external data %s", key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	g.initializers[name] = struct{}{}
	if external && location != "" {
		g.External[name] = location
		if end := offset + length; end > g.extent {
			g.extent = end
		}
	}
	return nil
}

func parseEntry(data []byte) (key, value string, err error) {
	err = walk(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case entryKey:
			key = string(v)
		case entryValue:
			value = string(v)
		}
		return nil
	})
	return
}

func parseValue(data []byte) (Value, error) {
	var val Value
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case valueName:
			val.Name = string(v)
		case valueType:
			return walk(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if num != typeTensor || typ != protowire.BytesType {
					return nil
				}
				return parseTensorType(v, &val)
			})
		}
		return nil
	})
	return val, err
}

func parseTensorType(data []byte, val *Value) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == tensorElemType && typ == protowire.VarintType:
			val.ElemType = int(x)
		case num == tensorShape && typ == protowire.BytesType:
			val.Dims = []int{}
			return walk(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if num != shapeDim || typ != protowire.BytesType {
					return nil
				}
				d := -1
				err := walk(v, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
					if num == dimValue && typ == protowire.VarintType {
						d = int(int64(x))
					}
					return nil
				})
				val.Dims = append(val.Dims, d)
				return err
			})
		}
		return nil
	})
}

// walk calls fn for every top level field of a message. Bytes fields pass
// their payload in v, varint fields their value in x.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var v []byte
		var x uint64
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(data)
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}

// Output returns the graph output with the given name.
func (g *Graph) Output(name string) (Value, bool) {
	for _, o := range g.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return Value{}, false
}

// Stochastic reports whether any operator samples random values, which is
// what keeps a graph non-deterministic when run in training mode.
func (g *Graph) Stochastic() bool {
	for _, op := range g.Ops {
		switch op {
		case "Dropout", "RandomNormal", "RandomNormalLike", "RandomUniform",
			"RandomUniformLike", "Bernoulli", "Multinomial":
			return true
		}
	}
	return false
}

// DataFile returns the external data file all initializers refer to,
// relative to the topology.
func (g *Graph) DataFile() (string, error) {
	file := ""
	for _, loc := range g.External {
		if file != "" && loc != file {
			return "", errors.Wrapf(ErrIncompatibleWeights, "initializers spread over %s and %s", file, loc)
		}
		file = loc
	}
	if file == "" {
		return "", errors.Wrap(ErrIncompatibleWeights, "topology embeds its weights")
	}
	if !filepath.IsLocal(file) {
		return "", errors.Wrapf(ErrIncompatibleWeights, "external data %s leaves the model directory", file)
	}
	return file, nil
}

// CheckWeights verifies that a weight file can serve the graph. An empty
// path, or the topology path itself, means the weights are embedded. Any
// other file must exist, the graph must keep all its initializers in one
// external file, and the weight file must be long enough for every offset
// and length they declare.
func (g *Graph) CheckWeights(topologyPath, weightsPath string) error {
	if weightsPath == "" || filepath.Clean(weightsPath) == filepath.Clean(topologyPath) {
		if len(g.External) > 0 {
			return errors.Wrap(ErrIncompatibleWeights, "topology refers to external data but no weight file was given")
		}
		return nil
	}
	st, err := os.Stat(weightsPath)
	if err != nil {
		return errors.Wrap(err, "weights")
	}
	if _, err := g.DataFile(); err != nil {
		return errors.Wrap(err, weightsPath)
	}
	if st.Size() < g.extent {
		return errors.Wrapf(ErrIncompatibleWeights, "%s holds %d bytes, initializers need %d", weightsPath, st.Size(), g.extent)
	}
	return nil
}

// Stage arranges for the runtime to load weightsPath as the graph's data
// file. When weightsPath already is the file the graph names next to the
// topology, or the weights are embedded, model is topologyPath and dir is
// empty. Otherwise both files are linked, or copied, into a new temporary
// dir under the names the runtime resolves; the caller removes dir once the
// session is gone.
func (g *Graph) Stage(topologyPath, weightsPath string) (model, dir string, err error) {
	if len(g.External) == 0 {
		return topologyPath, "", nil
	}
	file, err := g.DataFile()
	if err != nil {
		return "", "", err
	}
	if sameFile(filepath.Join(filepath.Dir(topologyPath), file), weightsPath) {
		return topologyPath, "", nil
	}
	dir, err = os.MkdirTemp("", "probe-model-")
	if err != nil {
		return "", "", errors.Wrap(err, "stage weights")
	}
	model = filepath.Join(dir, filepath.Base(topologyPath))
	data := filepath.Join(dir, file)
	err = place(topologyPath, model)
	if err == nil {
		err = os.MkdirAll(filepath.Dir(data), 0o755)
	}
	if err == nil {
		err = place(weightsPath, data)
	}
	if err != nil {
		os.RemoveAll(dir)
		return "", "", errors.Wrap(err, "stage weights")
	}
	return model, dir, nil
}

func sameFile(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

// place hard links src to dst, copying when the link fails.
func place(src, dst string) error {
	if os.Link(src, dst) == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
