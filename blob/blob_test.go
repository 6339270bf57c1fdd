package blob

import "testing"

import "github.com/pkg/errors"

func TestOffsetRowMajor(t *testing.T) {
	b := New("probs", 2, 3, 4)
	if b.Len() != 24 {
		t.Fatalf("len %d", b.Len())
	}
	if off := b.Offset(1, 2, 3); off != 23 {
		t.Errorf("offset(1,2,3) = %d, want 23", off)
	}
	if off := b.Offset(0, 1, 0); off != 4 {
		t.Errorf("offset(0,1,0) = %d, want 4", off)
	}
	b.Set(7, 1, 0, 2)
	if b.Data[14] != 7 || b.At(1, 0, 2) != 7 {
		t.Errorf("set/at disagree: %v", b.Data)
	}
}

func TestOffsetPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New("x", 2, 2).Offset(2, 0)
}

func TestCloneIsIndependent(t *testing.T) {
	b := New("generated", 1, 2)
	b.Data[0] = 1
	c := b.Clone()
	b.Data[0] = 5
	b.Shape[1] = 9
	if c.Data[0] != 1 || c.Shape[1] != 2 {
		t.Fatalf("clone aliases the original: %v %v", c.Data, c.Shape)
	}
}

func TestExpect(t *testing.T) {
	b := New("predict_output", 512, 10, 8)
	if err := b.Expect(-1, 10, 8); err != nil {
		t.Errorf("wildcard batch: %v", err)
	}
	if err := b.Expect(512, 10); !errors.Is(err, ErrShape) {
		t.Errorf("rank mismatch not reported: %v", err)
	}
	if err := b.Expect(512, 11, 8); !errors.Is(err, ErrShape) {
		t.Errorf("dim mismatch not reported: %v", err)
	}
}

func TestFromDataChecksCount(t *testing.T) {
	if _, err := FromData("label", []float32{1, 2, 3}, 2, 2); !errors.Is(err, ErrShape) {
		t.Fatalf("want ErrShape, got %v", err)
	}
	src := []float32{1, 2, 3, 4}
	b, err := FromData("label", src, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	src[0] = 100
	if b.At(0, 0) != 1 {
		t.Fatal("FromData must copy")
	}
}

func TestSample(t *testing.T) {
	b, _ := FromData("decoder_sample", []float32{0, 1, 2, 3, 4, 5}, 3, 2)
	s := b.Sample(2)
	if len(s) != 2 || s[0] != 4 || s[1] != 5 {
		t.Fatalf("sample 2 = %v", s)
	}
	s[0] = -1
	if b.Data[4] != 4 {
		t.Fatal("Sample must copy")
	}
}
