package topology

import "os"
import "path/filepath"
import "testing"

import "github.com/pkg/errors"
import "google.golang.org/protobuf/encoding/protowire"

func field(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func varint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// dims: -1 encodes a symbolic dimension
func value(name string, dims ...int) []byte {
	var shape []byte
	for _, d := range dims {
		var dim []byte
		if d < 0 {
			dim = field(dim, dimParam, []byte("N"))
		} else {
			dim = varint(dim, dimValue, uint64(d))
		}
		shape = field(shape, shapeDim, dim)
	}
	var tensor []byte
	tensor = varint(tensor, tensorElemType, ElemFloat)
	tensor = field(tensor, tensorShape, shape)
	var typ []byte
	typ = field(typ, typeTensor, tensor)
	var v []byte
	v = field(v, valueName, []byte(name))
	v = field(v, valueType, typ)
	return v
}

func entry(key, value string) []byte {
	var e []byte
	e = field(e, entryKey, []byte(key))
	e = field(e, entryValue, []byte(value))
	return e
}

// initializer stores 64 bytes at offset 0 of location, when one is given
func initializer(name, location string) []byte {
	var t []byte
	t = varint(t, 1, 10) // dims, skipped
	t = field(t, initName, []byte(name))
	if location != "" {
		t = field(t, initExternalData, entry("location", location))
		t = field(t, initExternalData, entry("offset", "0"))
		t = field(t, initExternalData, entry("length", "64"))
		t = varint(t, initDataLocation, locationExternal)
	}
	return t
}

func node(op string) []byte {
	var n []byte
	n = field(n, 1, []byte("x"))
	n = field(n, nodeOpType, []byte(op))
	return n
}

func model(location string, ops ...string) []byte {
	var g []byte
	for _, op := range ops {
		g = field(g, graphNode, node(op))
	}
	g = field(g, graphName, []byte("dram"))
	g = field(g, graphInitializer, initializer("fc.weight", location))
	g = field(g, graphInput, value("data", -1, 1, 100, 100))
	g = field(g, graphInput, value("fc.weight"))
	g = field(g, graphOutput, value("predict_output", -1, 10, 8))
	var m []byte
	m = varint(m, modelIRVersion, 3)
	m = field(m, modelProducerName, []byte("converter"))
	m = field(m, modelGraph, g)
	return m
}

func TestParse(t *testing.T) {
	g, err := Parse(model("", "Conv", "Relu"))
	if err != nil {
		t.Fatal(err)
	}
	if g.Name != "dram" || g.Producer != "converter" || g.IRVersion != 3 {
		t.Errorf("header: %+v", g)
	}
	if len(g.Inputs) != 1 || g.Inputs[0].Name != "data" {
		t.Fatalf("initializer leaked into inputs: %+v", g.Inputs)
	}
	want := []int{-1, 1, 100, 100}
	for i, d := range want {
		if g.Inputs[0].Dims[i] != d {
			t.Fatalf("input dims %v, want %v", g.Inputs[0].Dims, want)
		}
	}
	out, ok := g.Output("predict_output")
	if !ok || out.ElemType != ElemFloat || len(out.Dims) != 3 || out.Dims[1] != 10 {
		t.Fatalf("output: %+v %v", out, ok)
	}
	if _, ok := g.Output("label"); ok {
		t.Error("unknown output found")
	}
	if g.Stochastic() {
		t.Error("Conv/Relu graph reported stochastic")
	}
}

func TestStochastic(t *testing.T) {
	g, err := Parse(model("", "Gemm", "RandomNormalLike"))
	if err != nil {
		t.Fatal(err)
	}
	if !g.Stochastic() {
		t.Error("RandomNormalLike not detected")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("garbage accepted")
	}
	if _, err := Parse(varint(nil, modelIRVersion, 7)); err == nil {
		t.Error("model without graph accepted")
	}
}

func writeFiles(t *testing.T, files map[string][]byte) {
	t.Helper()
	for p, data := range files {
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCheckWeights(t *testing.T) {
	dir := t.TempDir()
	topo := filepath.Join(dir, "dram.onnx")
	weights := filepath.Join(dir, "dram_iter_300000.onnx.data")
	later := filepath.Join(t.TempDir(), "dram_iter_400000.onnx.data")
	short := filepath.Join(dir, "short.data")
	writeFiles(t, map[string][]byte{
		topo:    nil,
		weights: make([]byte, 64),
		later:   make([]byte, 128),
		short:   make([]byte, 10),
	})

	external, err := Parse(model("dram_iter_300000.onnx.data"))
	if err != nil {
		t.Fatal(err)
	}
	if external.External["fc.weight"] != "dram_iter_300000.onnx.data" {
		t.Fatalf("external map %v", external.External)
	}
	if err := external.CheckWeights(topo, weights); err != nil {
		t.Errorf("named weights rejected: %v", err)
	}
	if err := external.CheckWeights(topo, later); err != nil {
		t.Errorf("other checkpoint rejected: %v", err)
	}
	if err := external.CheckWeights(topo, short); !errors.Is(err, ErrIncompatibleWeights) {
		t.Errorf("truncated weights accepted: %v", err)
	}
	if err := external.CheckWeights(topo, ""); !errors.Is(err, ErrIncompatibleWeights) {
		t.Errorf("missing weights accepted: %v", err)
	}
	if err := external.CheckWeights(topo, filepath.Join(dir, "absent.data")); err == nil {
		t.Error("absent weight file accepted")
	}

	embedded, err := Parse(model(""))
	if err != nil {
		t.Fatal(err)
	}
	if err := embedded.CheckWeights(topo, topo); err != nil {
		t.Errorf("embedded weights rejected: %v", err)
	}
	if err := embedded.CheckWeights(topo, weights); !errors.Is(err, ErrIncompatibleWeights) {
		t.Errorf("extra weight file accepted: %v", err)
	}
}

func TestDataFile(t *testing.T) {
	g := &Graph{External: map[string]string{"a": "w.data", "b": "w.data"}}
	if f, err := g.DataFile(); err != nil || f != "w.data" {
		t.Errorf("DataFile() = %q, %v", f, err)
	}
	g.External["c"] = "v.data"
	if _, err := g.DataFile(); !errors.Is(err, ErrIncompatibleWeights) {
		t.Errorf("two data files accepted: %v", err)
	}
	g.External = map[string]string{"a": "../w.data"}
	if _, err := g.DataFile(); !errors.Is(err, ErrIncompatibleWeights) {
		t.Errorf("escaping location accepted: %v", err)
	}
}

func TestStageSelectsWeights(t *testing.T) {
	dir := t.TempDir()
	topo := filepath.Join(dir, "dram.onnx")
	named := filepath.Join(dir, "dram_iter_300000.onnx.data")
	first := filepath.Join(t.TempDir(), "run1.data")
	second := filepath.Join(t.TempDir(), "run2.data")
	desc := model("dram_iter_300000.onnx.data")
	writeFiles(t, map[string][]byte{
		topo:   desc,
		named:  []byte("named"),
		first:  []byte("first"),
		second: []byte("second"),
	})
	g, err := Parse(desc)
	if err != nil {
		t.Fatal(err)
	}

	m, staged, err := g.Stage(topo, named)
	if err != nil || m != topo || staged != "" {
		t.Fatalf("named weights staged: %q %q %v", m, staged, err)
	}

	for _, w := range []string{first, second} {
		m, staged, err := g.Stage(topo, w)
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Dir(m) != staged {
			t.Errorf("model %s outside %s", m, staged)
		}
		got, err := os.ReadFile(filepath.Join(staged, "dram_iter_300000.onnx.data"))
		if err != nil {
			t.Fatal(err)
		}
		want, _ := os.ReadFile(w)
		if string(got) != string(want) {
			t.Errorf("staged %q, want %q", got, want)
		}
		if desc2, _ := os.ReadFile(m); string(desc2) != string(desc) {
			t.Error("staged topology differs")
		}
		if err := os.RemoveAll(staged); err != nil {
			t.Fatal(err)
		}
	}

	embedded, _ := Parse(model(""))
	if m, staged, err := embedded.Stage(topo, topo); err != nil || m != topo || staged != "" {
		t.Errorf("embedded graph staged: %q %q %v", m, staged, err)
	}
}

func FuzzParse(f *testing.F) {
	f.Add(model("w.data", "Dropout"))
	f.Fuzz(func(t *testing.T, data []byte) {
		// must not panic
		_, _ = Parse(data)
	})
}
