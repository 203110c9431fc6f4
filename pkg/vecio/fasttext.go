package vecio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// fastText binary format constants, from the reference implementation.
const (
	fasttextMagic   = int32(793712314)
	fasttextVersion = int32(12)

	// Vocab entry types.
	fasttextEntryWord = 0
)

// ReadFastText decodes a fastText .bin model, exposing only in-vocabulary
// words and their input-matrix rows. Label entries and subword bucket
// rows are skipped; quantized models return ErrQuantized.
func ReadFastText(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)

	var magic, version int32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("%w: fasttext magic: %v", ErrFormat, err)
	}
	if magic != fasttextMagic {
		return nil, fmt.Errorf("%w: not a fasttext file (magic %d)", ErrFormat, magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: fasttext version: %v", ErrMalformed, err)
	}
	if version > fasttextVersion {
		return nil, fmt.Errorf("%w: fasttext version %d newer than supported %d", ErrFormat, version, fasttextVersion)
	}

	args, err := readFastTextArgs(r)
	if err != nil {
		return nil, err
	}

	words, nwords, err := readFastTextVocab(r)
	if err != nil {
		return nil, err
	}

	// Input matrix: quant flag, then rows x cols float32.
	var quant byte
	if err := binary.Read(r, binary.LittleEndian, &quant); err != nil {
		return nil, fmt.Errorf("%w: quant flag: %v", ErrMalformed, err)
	}
	if quant != 0 {
		return nil, ErrQuantized
	}

	var mrows, mcols int64
	if err := binary.Read(r, binary.LittleEndian, &mrows); err != nil {
		return nil, fmt.Errorf("%w: matrix rows: %v", ErrMalformed, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &mcols); err != nil {
		return nil, fmt.Errorf("%w: matrix cols: %v", ErrMalformed, err)
	}
	if mcols != int64(args.dim) {
		return nil, fmt.Errorf("%w: matrix cols %d != dim %d", ErrMalformed, mcols, args.dim)
	}
	if mrows < int64(nwords) {
		return nil, fmt.Errorf("%w: matrix rows %d < vocabulary words %d", ErrMalformed, mrows, nwords)
	}

	// Only the first nwords rows are word vectors; the remainder are
	// subword buckets used for OOV lookup, which this engine does not
	// serve.
	m := &Model{
		words: words,
		data:  make([]float32, 0, nwords*args.dim),
		rows:  nwords,
		cols:  args.dim,
	}

	rowBuf := make([]byte, args.dim*4)
	for i := 0; i < nwords; i++ {
		if _, err := io.ReadFull(r, rowBuf); err != nil {
			return nil, fmt.Errorf("%w: matrix row %d: %v", ErrMalformed, i, err)
		}
		for off := 0; off < len(rowBuf); off += 4 {
			bits := binary.LittleEndian.Uint32(rowBuf[off:])
			m.data = append(m.data, math.Float32frombits(bits))
		}
	}

	return m, nil
}

type fasttextArgs struct {
	dim int
}

// readFastTextArgs consumes the serialized Args block: twelve int32
// hyperparameters followed by the sampling threshold double. Only dim is
// of interest here.
func readFastTextArgs(r io.Reader) (fasttextArgs, error) {
	var ints [12]int32
	for i := range ints {
		if err := binary.Read(r, binary.LittleEndian, &ints[i]); err != nil {
			return fasttextArgs{}, fmt.Errorf("%w: args field %d: %v", ErrMalformed, i, err)
		}
	}
	var t float64
	if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
		return fasttextArgs{}, fmt.Errorf("%w: args threshold: %v", ErrMalformed, err)
	}

	dim := int(ints[0])
	if dim <= 0 || dim > maxWord2VecDims {
		return fasttextArgs{}, fmt.Errorf("%w: implausible fasttext dim %d", ErrMalformed, dim)
	}
	return fasttextArgs{dim: dim}, nil
}

// readFastTextVocab consumes the serialized Dictionary and returns the
// word entries in order, skipping labels.
func readFastTextVocab(r *bufio.Reader) ([]string, int, error) {
	var size, nwords, nlabels int32
	var ntokens, pruneidxSize int64

	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, 0, fmt.Errorf("%w: vocab size: %v", ErrMalformed, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &nwords); err != nil {
		return nil, 0, fmt.Errorf("%w: vocab nwords: %v", ErrMalformed, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &nlabels); err != nil {
		return nil, 0, fmt.Errorf("%w: vocab nlabels: %v", ErrMalformed, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &ntokens); err != nil {
		return nil, 0, fmt.Errorf("%w: vocab ntokens: %v", ErrMalformed, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &pruneidxSize); err != nil {
		return nil, 0, fmt.Errorf("%w: vocab pruneidx size: %v", ErrMalformed, err)
	}

	if size < 0 || size > maxWord2VecWords || nwords < 0 || nwords > size {
		return nil, 0, fmt.Errorf("%w: implausible vocab sizes %d/%d", ErrMalformed, size, nwords)
	}

	words := make([]string, 0, nwords)
	for i := int32(0); i < size; i++ {
		word, err := readNulTerminated(r)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: vocab entry %d: %v", ErrMalformed, i, err)
		}
		var count int64
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, 0, fmt.Errorf("%w: vocab count %d: %v", ErrMalformed, i, err)
		}
		entryType, err := r.ReadByte()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: vocab type %d: %v", ErrMalformed, i, err)
		}
		if entryType == fasttextEntryWord {
			words = append(words, word)
		}
	}
	if len(words) != int(nwords) {
		return nil, 0, fmt.Errorf("%w: vocab declared %d words, found %d", ErrMalformed, nwords, len(words))
	}

	// Pruned-index pairs are only present for pruned models; skip them.
	for i := int64(0); i < pruneidxSize; i++ {
		var pair [2]int32
		if err := binary.Read(r, binary.LittleEndian, &pair); err != nil {
			return nil, 0, fmt.Errorf("%w: pruneidx %d: %v", ErrMalformed, i, err)
		}
	}

	return words, int(nwords), nil
}

func readNulTerminated(r *bufio.Reader) (string, error) {
	b, err := r.ReadBytes(0)
	if err != nil {
		return "", err
	}
	if len(b) > maxTokenBytes {
		return "", fmt.Errorf("vocab entry exceeds %d bytes", maxTokenBytes)
	}
	return string(b[:len(b)-1]), nil
}
