package vecio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Limits that keep a garbage header from allocating absurd amounts of
// memory before the payload read fails.
const (
	maxWord2VecWords = 10_000_000
	maxWord2VecDims  = 16_384
	maxTokenBytes    = 1024
)

// ReadWord2Vec decodes a word2vec binary file.
//
// Layout: an ASCII header line "<words> <dims>\n", then for each word the
// UTF-8 word bytes terminated by a space, followed by dims little-endian
// float32 values, optionally followed by a newline.
func ReadWord2Vec(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)

	rows, err := readASCIIInt(r, ' ')
	if err != nil {
		return nil, fmt.Errorf("%w: word2vec header: %v", ErrFormat, err)
	}
	cols, err := readASCIIInt(r, '\n')
	if err != nil {
		return nil, fmt.Errorf("%w: word2vec header: %v", ErrFormat, err)
	}
	if rows <= 0 || rows > maxWord2VecWords || cols <= 0 || cols > maxWord2VecDims {
		return nil, fmt.Errorf("%w: implausible word2vec shape %dx%d", ErrFormat, rows, cols)
	}

	// The header alone must not size the allocation: a file claiming
	// W x D rows has to actually carry W*(word + space + D*4) payload
	// bytes, so cap the claimed shape by the file size before
	// preallocating the matrix.
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	need := int64(rows) * (1 + int64(cols)*4)
	if need > info.Size() {
		return nil, fmt.Errorf("%w: header claims %dx%d (%d payload bytes) but file has %d bytes",
			ErrFormat, rows, cols, need, info.Size())
	}

	m := &Model{
		words: make([]string, 0, rows),
		data:  make([]float32, 0, rows*cols),
		rows:  rows,
		cols:  cols,
	}

	vecBuf := make([]byte, cols*4)
	for i := 0; i < rows; i++ {
		word, err := readWordToken(r)
		if err != nil {
			return nil, fmt.Errorf("%w: word %d: %v", ErrMalformed, i, err)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return nil, fmt.Errorf("%w: vector %d: %v", ErrMalformed, i, err)
		}

		m.words = append(m.words, word)
		for off := 0; off < len(vecBuf); off += 4 {
			bits := binary.LittleEndian.Uint32(vecBuf[off:])
			m.data = append(m.data, math.Float32frombits(bits))
		}
	}

	return m, nil
}

// readASCIIInt reads a non-negative decimal integer terminated by sep.
func readASCIIInt(r *bufio.Reader, sep byte) (int, error) {
	var n int
	var digits int
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b == sep || (sep == '\n' && b == '\r') {
			if b == '\r' {
				// Consume the \n of a \r\n pair.
				if nb, err := r.ReadByte(); err == nil && nb != '\n' {
					_ = r.UnreadByte()
				}
			}
			if digits == 0 {
				return 0, fmt.Errorf("empty integer field")
			}
			return n, nil
		}
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("unexpected byte 0x%02x in integer field", b)
		}
		n = n*10 + int(b-'0')
		digits++
		if digits > 10 {
			return 0, fmt.Errorf("integer field too long")
		}
	}
}

// readWordToken reads bytes up to the next space, skipping any leading
// newlines left over from the previous record.
func readWordToken(r *bufio.Reader) (string, error) {
	buf := make([]byte, 0, 32)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' || b == '\r' {
			if len(buf) == 0 {
				continue
			}
			return "", fmt.Errorf("newline inside word")
		}
		if b == ' ' {
			return string(buf), nil
		}
		buf = append(buf, b)
		if len(buf) > maxTokenBytes {
			return "", fmt.Errorf("word token exceeds %d bytes", maxTokenBytes)
		}
	}
}
