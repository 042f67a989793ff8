package volume

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NumPy .npy format, version 1.0 for writing; 1.0 and 2.0 for reading.
const (
	npyMagic     = "\x93NUMPY"
	npyAlignment = 64
	npyDescr     = "<f4"
)

var (
	descrPattern   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranPattern = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapePattern   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// WriteNPY encodes v as a little-endian float32 C-order .npy array.
func WriteNPY(w io.Writer, v *Volume) error {
	if err := v.validate(); err != nil {
		return err
	}

	dims := make([]string, len(v.Shape))
	for i, n := range v.Shape {
		dims[i] = strconv.Itoa(n)
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }",
		npyDescr, strings.Join(dims, ", "))

	// magic(6) + version(2) + header length(2) + header + '\n' is padded
	// with spaces to a multiple of the alignment.
	prefix := len(npyMagic) + 4
	total := prefix + len(header) + 1
	if rem := total % npyAlignment; rem != 0 {
		header += strings.Repeat(" ", npyAlignment-rem)
	}
	header += "\n"

	bw := bufio.NewWriter(w)
	bw.WriteString(npyMagic)
	bw.Write([]byte{1, 0})
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(header))); err != nil {
		return errors.Wrap(err, "write npy header length")
	}
	bw.WriteString(header)
	if err := binary.Write(bw, binary.LittleEndian, v.Data); err != nil {
		return errors.Wrap(err, "write npy data")
	}
	return errors.Wrap(bw.Flush(), "flush npy")
}

// ReadNPY decodes a little-endian float32 C-order rank-4 .npy array.
func ReadNPY(r io.Reader) (*Volume, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, errors.Wrap(err, "read npy magic")
	}
	if !bytes.Equal(magic[:len(npyMagic)], []byte(npyMagic)) {
		return nil, errors.New("not an npy file")
	}

	var headerLen int
	switch major := magic[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, errors.Wrap(err, "read npy header length")
		}
		headerLen = int(n)
	case 2:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, errors.Wrap(err, "read npy header length")
		}
		headerLen = int(n)
	default:
		return nil, errors.Errorf("unsupported npy version %d", major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, errors.Wrap(err, "read npy header")
	}
	shape, err := parseHeader(string(header))
	if err != nil {
		return nil, err
	}

	v := New(shape[0], shape[1], shape[2], shape[3])
	if err := binary.Read(br, binary.LittleEndian, v.Data); err != nil {
		return nil, errors.Wrap(err, "read npy data")
	}
	return v, nil
}

func parseHeader(header string) ([4]int, error) {
	var shape [4]int

	m := descrPattern.FindStringSubmatch(header)
	if m == nil {
		return shape, errors.New("npy header has no descr")
	}
	if m[1] != npyDescr {
		return shape, errors.Errorf("unsupported npy dtype %q", m[1])
	}
	if m := fortranPattern.FindStringSubmatch(header); m == nil || m[1] != "False" {
		return shape, errors.New("npy array is not in C order")
	}

	m = shapePattern.FindStringSubmatch(header)
	if m == nil {
		return shape, errors.New("npy header has no shape")
	}
	var dims []int
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return shape, errors.Wrapf(err, "parse npy shape %q", m[1])
		}
		if n <= 0 {
			return shape, errors.Errorf("npy shape %q has an empty axis", m[1])
		}
		dims = append(dims, n)
	}
	if len(dims) != len(shape) {
		return shape, errors.Errorf("npy array has rank %d, want %d", len(dims), len(shape))
	}
	copy(shape[:], dims)
	return shape, nil
}

// Save writes v to path as .npy.
func Save(path string, v *Volume) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create volume file")
	}
	if err := WriteNPY(file, v); err != nil {
		file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "close volume file")
}

// Load reads a .npy volume from path.
func Load(path string) (*Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open volume file")
	}
	defer file.Close()

	v, err := ReadNPY(file)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return v, nil
}
