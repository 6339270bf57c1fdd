package composite

import "bytes"
import "image/png"
import "os"
import "path/filepath"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestPixel(t *testing.T) {
	tests := []struct {
		v    float32
		want uint8
	}{
		{0, 0},
		{1, 255},
		{0.5, 127},
		{0.999, 255},
		{-0.2, 0},
		{1.7, 255},
		{1.0 / 255, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Pixel(tt.v), "Pixel(%v)", tt.v)
	}
}

func full(v float32) []float32 {
	s := make([]float32, Tile*Tile)
	for i := range s {
		s[i] = v
	}
	return s
}

func cellSum(g *Grid, cell int) int {
	x0, y0 := (cell%g.Cols)*g.Tile, (cell/g.Cols)*g.Tile
	sum := 0
	for y := y0; y < y0+g.Tile; y++ {
		for x := x0; x < x0+g.Tile; x++ {
			sum += int(g.Image.GrayAt(x, y).Y)
		}
	}
	return sum
}

func TestSequentialPlacement(t *testing.T) {
	s := &Sequential{Grid: NewGrid(10, 10, Tile)}
	require.Equal(t, 280, s.Grid.Image.Bounds().Dx())
	require.Equal(t, 280, s.Grid.Image.Bounds().Dy())
	for batch := 0; batch < 3; batch++ {
		for n := 0; n < 2; n++ {
			ok, err := s.Add(full(1))
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}
	for cell := 0; cell < 100; cell++ {
		if cell < 6 {
			assert.Equal(t, 255*Tile*Tile, cellSum(s.Grid, cell), "cell %d", cell)
		} else {
			assert.Zero(t, cellSum(s.Grid, cell), "cell %d", cell)
		}
	}
}

func TestSequentialCap(t *testing.T) {
	s := &Sequential{Grid: NewGrid(10, 10, Tile)}
	for i := 0; i < 130; i++ {
		ok, err := s.Add(full(0.5))
		require.NoError(t, err)
		assert.Equal(t, i < 100, ok)
	}
	assert.Equal(t, 100, s.Placed())
}

func TestPlaceRowMajor(t *testing.T) {
	g := NewGrid(2, 3, 2)
	require.NoError(t, g.Place(4, []float32{1, 1, 1, 1}))
	assert.Equal(t, uint8(255), g.Image.GrayAt(2, 2).Y)
	assert.Equal(t, uint8(255), g.Image.GrayAt(3, 3).Y)
	assert.Equal(t, uint8(0), g.Image.GrayAt(1, 2).Y)
	assert.Error(t, g.Place(6, []float32{1, 1, 1, 1}))
	assert.Error(t, g.Place(0, []float32{1}))
	g.Clear()
	assert.Equal(t, uint8(0), g.Image.GrayAt(2, 2).Y)
}

func TestPairs(t *testing.T) {
	pairs := Pairs(10)
	require.Len(t, pairs, 55)
	seen := map[string]bool{}
	for _, p := range pairs {
		assert.LessOrEqual(t, p.I, p.J)
		name := filepath.Base(PairPath("debug", p))
		assert.False(t, seen[name], name)
		seen[name] = true
	}
	assert.Equal(t, Pair{0, 0}, pairs[0])
	assert.Equal(t, Pair{9, 9}, pairs[54])
	assert.Equal(t, filepath.Join("debug", "composite_vae_2_7.png"), PairPath("debug", Pair{2, 7}))
}

func TestWritePNG(t *testing.T) {
	g := NewGrid(1, 2, Tile)
	require.NoError(t, g.Place(1, full(1)))
	path := filepath.Join(t.TempDir(), "composite.png")
	require.NoError(t, g.WritePNG(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 56, img.Bounds().Dx())
	r, _, _, _ := img.At(30, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestWritePNGMissingDir(t *testing.T) {
	g := NewGrid(1, 1, Tile)
	assert.Error(t, g.WritePNG(filepath.Join(t.TempDir(), "missing", "x.png")))
}
