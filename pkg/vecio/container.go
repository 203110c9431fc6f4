package vecio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"golang.org/x/exp/mmap"
)

// Container format: a preprocessed, mmap-friendly artifact layout.
//
// Layout (all integers little-endian):
//
//	magic    [4]byte  "WVEC"
//	version  uint32   currently 1
//	words    uint64   W
//	dims     uint32   D
//	vocab    W x { len uint16, bytes [len]byte }
//	matrix   W x D float32
//
// The matrix block is what dominates file size, so the reader memory-maps
// the file and copies rows out of the mapping instead of streaming
// through a buffered reader.
var containerMagic = [4]byte{'W', 'V', 'E', 'C'}

const (
	containerVersion  = uint32(1)
	containerMaxWords = uint64(maxWord2VecWords)
	containerMaxDims  = uint32(maxWord2VecDims)
)

// ReadContainer decodes a wordvec container file via memory mapping.
func ReadContainer(path string) (*Model, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer ra.Close()

	size := ra.Len()
	if size < 20 {
		return nil, fmt.Errorf("%w: container file too small (%d bytes)", ErrFormat, size)
	}

	data := make([]byte, size)
	if _, err := ra.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("%w: read mapping: %v", ErrMalformed, err)
	}

	offset := 0
	if [4]byte(data[0:4]) != containerMagic {
		return nil, fmt.Errorf("%w: bad container magic", ErrFormat)
	}
	offset += 4

	version := binary.LittleEndian.Uint32(data[offset:])
	offset += 4
	if version != containerVersion {
		return nil, fmt.Errorf("%w: unsupported container version %d", ErrFormat, version)
	}

	rows := binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	cols := binary.LittleEndian.Uint32(data[offset:])
	offset += 4

	if rows == 0 || rows > containerMaxWords || cols == 0 || cols > containerMaxDims {
		return nil, fmt.Errorf("%w: implausible container shape %dx%d", ErrMalformed, rows, cols)
	}

	w := int(rows)
	d := int(cols)

	words := make([]string, 0, w)
	for i := 0; i < w; i++ {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("%w: vocab truncated at entry %d", ErrMalformed, i)
		}
		n := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+n > len(data) {
			return nil, fmt.Errorf("%w: vocab entry %d truncated", ErrMalformed, i)
		}
		words = append(words, string(data[offset:offset+n]))
		offset += n
	}

	need := w * d * 4
	if offset+need > len(data) {
		return nil, fmt.Errorf("%w: matrix truncated (need %d bytes, have %d)", ErrMalformed, need, len(data)-offset)
	}

	vecs := make([]float32, w*d)
	for i := range vecs {
		vecs[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[offset+i*4:]))
	}

	return &Model{words: words, data: vecs, rows: w, cols: d}, nil
}

// WriteContainer writes words and their flat row-major vectors in the
// container format. Used by preprocessing tooling and tests.
func WriteContainer(path string, words []string, vectors []float32, dims int) error {
	if dims <= 0 || len(words)*dims != len(vectors) {
		return fmt.Errorf("container write: %d words x %d dims != %d values", len(words), dims, len(vectors))
	}
	for i, word := range words {
		if len(word) > math.MaxUint16 {
			return fmt.Errorf("container write: word %d is %d bytes, exceeds %d", i, len(word), math.MaxUint16)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(f, 1<<20)

	write := func(v any) {
		if err == nil {
			err = binary.Write(w, binary.LittleEndian, v)
		}
	}

	write(containerMagic)
	write(containerVersion)
	write(uint64(len(words)))
	write(uint32(dims))
	for _, word := range words {
		write(uint16(len(word)))
		write([]byte(word))
	}
	write(vectors)

	if err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
