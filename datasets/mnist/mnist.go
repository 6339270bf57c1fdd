package mnist

import "bytes"
import "compress/gzip"
import "crypto/sha256"
import "encoding/binary"
import "fmt"
import "io"
import "os"
import "path/filepath"

import "github.com/pkg/errors"

// ImgSize is the side of one MNIST digit in pixels.
const ImgSize = 28

const (
	inferSetImg = "t10k-images-idx3-ubyte.gz"
	inferSetVal = "t10k-labels-idx1-ubyte.gz"
	trainSetImg = "train-images-idx3-ubyte.gz"
	trainSetVal = "train-labels-idx1-ubyte.gz"
)

// Digests of the published files; a file with another digest is rejected.
var digests = map[string]string{
	inferSetImg: "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6",
	inferSetVal: "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6",
	trainSetImg: "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609",
	trainSetVal: "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c",
}

const (
	magicImages = 0x00000803
	magicLabels = 0x00000801
)

// DefaultDirectory is searched when Load gets no directories.
const DefaultDirectory = "/tmp/mnist/"

// ErrNotFound is returned when no directory holds a complete, verified set.
var ErrNotFound = errors.New("mnist files not found")

// Image is one digit, row major, 0 = background.
type Image [ImgSize * ImgSize]byte

// Set is one split of the dataset.
type Set struct {
	Images []Image
	Labels []byte
}

// Len is the number of digits.
func (s *Set) Len() int {
	return len(s.Labels)
}

// Pixel returns pixel (x, y) of digit i scaled to [0,1].
func (s *Set) Pixel(i, x, y int) float32 {
	return float32(s.Images[i][y*ImgSize+x]) / 255
}

// LoadTest reads the 10000 digit test split from the first directory that holds it.
func LoadTest(dirs ...string) (*Set, error) {
	return load(inferSetImg, inferSetVal, dirs)
}

// LoadTrain reads the 60000 digit training split.
func LoadTrain(dirs ...string) (*Set, error) {
	return load(trainSetImg, trainSetVal, dirs)
}

func load(imgName, valName string, dirs []string) (*Set, error) {
	if len(dirs) == 0 {
		dirs = searchDirectories()
	}
	var last error = ErrNotFound
	for _, dir := range dirs {
		set, err := loadDir(dir, imgName, valName)
		if err == nil {
			return set, nil
		}
		last = err
	}
	return nil, last
}

func searchDirectories() []string {
	dirs := []string{DefaultDirectory}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".cache", "mnist"))
	}
	return dirs
}

func loadDir(dir, imgName, valName string) (*Set, error) {
	raw, err := readVerified(filepath.Join(dir, imgName), digests[imgName])
	if err != nil {
		return nil, err
	}
	images, err := parseImages(raw)
	if err != nil {
		return nil, errors.Wrap(err, imgName)
	}
	raw, err = readVerified(filepath.Join(dir, valName), digests[valName])
	if err != nil {
		return nil, err
	}
	labels, err := parseLabels(raw)
	if err != nil {
		return nil, errors.Wrap(err, valName)
	}
	if len(images) != len(labels) {
		return nil, errors.Errorf("%s: %d images but %d labels", dir, len(images), len(labels))
	}
	return &Set{Images: images, Labels: labels}, nil
}

// readVerified checks the sha256 of a gzip file and returns it uncompressed.
// An empty digest skips the check.
func readVerified(path, digest string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, path)
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if digest != "" {
		if sum := fmt.Sprintf("%x", sha256.Sum256(compressed)); sum != digest {
			return nil, errors.Errorf("file hash for file '%s' is incorrect", path)
		}
	}
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.Wrapf(err, "gunzip %s", path)
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrapf(err, "gunzip %s", path)
	}
	return data, nil
}

func parseImages(data []byte) ([]Image, error) {
	if len(data) < 16 {
		return nil, errors.New("short image header")
	}
	if m := binary.BigEndian.Uint32(data); m != magicImages {
		return nil, errors.Errorf("bad image magic %#x", m)
	}
	n := int(binary.BigEndian.Uint32(data[4:]))
	rows := binary.BigEndian.Uint32(data[8:])
	cols := binary.BigEndian.Uint32(data[12:])
	if rows != ImgSize || cols != ImgSize {
		return nil, errors.Errorf("images are %dx%d, want %dx%d", rows, cols, ImgSize, ImgSize)
	}
	data = data[16:]
	if len(data) != n*ImgSize*ImgSize {
		return nil, errors.Errorf("%d pixel bytes for %d images", len(data), n)
	}
	images := make([]Image, n)
	for i := range images {
		copy(images[i][:], data[i*ImgSize*ImgSize:])
	}
	return images, nil
}

func parseLabels(data []byte) ([]byte, error) {
	if len(data) < 8 {
		return nil, errors.New("short label header")
	}
	if m := binary.BigEndian.Uint32(data); m != magicLabels {
		return nil, errors.Errorf("bad label magic %#x", m)
	}
	n := int(binary.BigEndian.Uint32(data[4:]))
	data = data[8:]
	if len(data) != n {
		return nil, errors.Errorf("%d label bytes for %d labels", len(data), n)
	}
	return append([]byte(nil), data...), nil
}
