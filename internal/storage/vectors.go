package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/kusari/pkg/utils"
)

var npyMagic = []byte("\x93NUMPY")

var npyShape = regexp.MustCompile(`'shape':\s*\((\d+),?\)`)

// VectorFiles stores one embedding per item as <dir>/<id>.npy (NumPy format 1.0,
// little-endian float32, one dimension), so the files stay readable with numpy.load.
type VectorFiles struct {
	dir string
}

// NewVectorFiles returns a VectorFiles rooted at dir. The directory is created on first write.
func NewVectorFiles(dir string) *VectorFiles {
	return &VectorFiles{dir: dir}
}

// Dir returns the root directory.
func (v *VectorFiles) Dir() string {
	return v.dir
}

// Path returns the file path for id.
func (v *VectorFiles) Path(id int) string {
	return filepath.Join(v.dir, strconv.Itoa(id)+".npy")
}

// Write stores vec for id, replacing any existing file.
func (v *VectorFiles) Write(id int, vec []float32) error {
	if err := utils.WriteFileAtomic(v.Path(id), encodeNPY(vec)); err != nil {
		return fmt.Errorf("failed to write vector %d: %w", id, err)
	}
	return nil
}

// Read loads the vector for id. A missing file yields an error wrapping fs.ErrNotExist.
func (v *VectorFiles) Read(id int) ([]float32, error) {
	data, err := os.ReadFile(v.Path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read vector %d: %w", id, err)
	}
	vec, err := decodeNPY(data)
	if err != nil {
		return nil, fmt.Errorf("vector %d: %w", id, err)
	}
	return vec, nil
}

// Remove deletes the file for id. Removing a missing file is not an error.
func (v *VectorFiles) Remove(id int) error {
	if err := os.Remove(v.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove vector %d: %w", id, err)
	}
	return nil
}

func encodeNPY(vec []float32) []byte {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d,), }", len(vec))
	// magic(6) + version(2) + header length(2) + header + '\n' must be a multiple of 64.
	pad := 64 - (10+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	var buf bytes.Buffer
	buf.Grow(10 + len(header) + len(vec)*4)
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	for _, f := range vec {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(f))
	}
	return buf.Bytes()
}

func decodeNPY(data []byte) ([]float32, error) {
	if len(data) < 10 || !bytes.Equal(data[:6], npyMagic) {
		return nil, errors.New("not an npy file")
	}
	var headerLen, off int
	switch data[6] {
	case 1:
		headerLen, off = int(binary.LittleEndian.Uint16(data[8:10])), 10
	case 2, 3:
		if len(data) < 12 {
			return nil, errors.New("truncated npy header")
		}
		headerLen, off = int(binary.LittleEndian.Uint32(data[8:12])), 12
	default:
		return nil, fmt.Errorf("unsupported npy version %d", data[6])
	}
	if len(data) < off+headerLen {
		return nil, errors.New("truncated npy header")
	}
	header := string(data[off : off+headerLen])
	body := data[off+headerLen:]

	m := npyShape.FindStringSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("unsupported npy shape in header %q", strings.TrimSpace(header))
	}
	n, _ := strconv.Atoi(m[1])
	if strings.Contains(header, "'fortran_order': True") && n > 1 {
		return nil, errors.New("fortran order is not supported")
	}

	out := make([]float32, n)
	switch {
	case strings.Contains(header, "'<f4'"):
		if len(body) != n*4 {
			return nil, fmt.Errorf("npy body is %d bytes, want %d", len(body), n*4)
		}
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
		}
	case strings.Contains(header, "'<f8'"):
		if len(body) != n*8 {
			return nil, fmt.Errorf("npy body is %d bytes, want %d", len(body), n*8)
		}
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:])))
		}
	default:
		return nil, fmt.Errorf("unsupported npy dtype in header %q", strings.TrimSpace(header))
	}
	return out, nil
}
