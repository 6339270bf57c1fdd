package composite

import "fmt"
import "image"
import "image/png"
import "io"
import "os"
import "path/filepath"

import "github.com/pkg/errors"

// Tile is the side of one MNIST-sized sample in pixels.
const Tile = 28

// Pixel maps an intensity in [0,1] to a byte by truncating v*255.999, so
// 1.0 becomes 255. Values outside the range are clamped first.
func Pixel(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(float64(v) * 255.999)
}

// Grid is a Rows x Cols arrangement of square tiles.
type Grid struct {
	Rows, Cols, Tile int
	Image            *image.Gray
}

// NewGrid allocates a black canvas of rows*tile by cols*tile pixels.
func NewGrid(rows, cols, tile int) *Grid {
	return &Grid{
		Rows:  rows,
		Cols:  cols,
		Tile:  tile,
		Image: image.NewGray(image.Rect(0, 0, cols*tile, rows*tile)),
	}
}

// Cells is the number of tile positions.
func (g *Grid) Cells() int {
	return g.Rows * g.Cols
}

// Place draws a row-major tile*tile sample at cell, counted row-major.
func (g *Grid) Place(cell int, sample []float32) error {
	if cell < 0 || cell >= g.Cells() {
		return errors.Errorf("cell %d outside %dx%d grid", cell, g.Rows, g.Cols)
	}
	if len(sample) != g.Tile*g.Tile {
		return errors.Errorf("sample of %d values does not fill a %dx%d tile", len(sample), g.Tile, g.Tile)
	}
	x0 := (cell % g.Cols) * g.Tile
	y0 := (cell / g.Cols) * g.Tile
	for y := 0; y < g.Tile; y++ {
		row := g.Image.Pix[g.Image.PixOffset(x0, y0+y):]
		for x := 0; x < g.Tile; x++ {
			row[x] = Pixel(sample[y*g.Tile+x])
		}
	}
	return nil
}

// Clear blacks out the canvas.
func (g *Grid) Clear() {
	for i := range g.Image.Pix {
		g.Image.Pix[i] = 0
	}
}

// Encode writes the canvas as PNG.
func (g *Grid) Encode(w io.Writer) error {
	return png.Encode(w, g.Image)
}

// WritePNG writes the canvas to path. The parent directory must exist.
func (g *Grid) WritePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "composite")
	}
	if err := g.Encode(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// Sequential fills a grid in arrival order and ignores samples once every
// cell is taken.
type Sequential struct {
	Grid *Grid
	next int
}

// Add places the next sample. It reports false when the grid was already full.
func (s *Sequential) Add(sample []float32) (bool, error) {
	if s.next >= s.Grid.Cells() {
		return false, nil
	}
	if err := s.Grid.Place(s.next, sample); err != nil {
		return false, err
	}
	s.next++
	return true, nil
}

// Placed is the number of cells written so far.
func (s *Sequential) Placed() int {
	return s.next
}

// Pair is an unordered pair of latent axes with I <= J.
type Pair struct {
	I, J int
}

// Pairs lists every pair over n axes in lexicographic order, n*(n+1)/2 in total.
func Pairs(n int) []Pair {
	out := make([]Pair, 0, n*(n+1)/2)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out = append(out, Pair{I: i, J: j})
		}
	}
	return out
}

// PairPath names the composite of pair p inside dir.
func PairPath(dir string, p Pair) string {
	return filepath.Join(dir, fmt.Sprintf("composite_vae_%d_%d.png", p.I, p.J))
}
