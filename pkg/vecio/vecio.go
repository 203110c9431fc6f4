// Package vecio decodes binary word-vector file formats.
//
// Three formats are supported:
//   - word2vec binary (.bin produced by the original word2vec tool and
//     by gensim's save_word2vec_format(binary=True))
//   - fastText binary (.bin produced by fastText; supervised labels and
//     subword/bucket rows are skipped, quantized models are rejected)
//   - the wordvec container format (a flat mmap-friendly vocabulary +
//     matrix layout used for preprocessed artifacts)
//
// Each reader produces a Model: an ordered vocabulary plus a storage
// view exposing the matrix shape and per-word row access. Readers never
// return a partially decoded model - any truncation or structural error
// fails the whole read with a typed error so the caller can fall through
// to the next format.
package vecio

import "errors"

var (
	// ErrFormat means the file is not in the expected format (bad magic,
	// implausible header). Callers typically try the next format.
	ErrFormat = errors.New("unrecognized vector file format")

	// ErrMalformed means the format was recognized but the payload is
	// truncated or structurally invalid.
	ErrMalformed = errors.New("malformed vector file")

	// ErrQuantized means a fastText model uses product quantization,
	// which this reader does not decode.
	ErrQuantized = errors.New("quantized fasttext models are not supported")
)

// Model is a decoded vocabulary and its vector storage.
//
// Words are in file order. The matrix is stored flat; Row returns a view
// into it, valid for the life of the Model.
type Model struct {
	words []string
	data  []float32
	rows  int
	cols  int
}

// Shape returns (word count, dimension).
func (m *Model) Shape() (int, int) { return m.rows, m.cols }

// Words returns the vocabulary in file order.
func (m *Model) Words() []string { return m.words }

// Row returns the vector for the word at index i as a slice into the
// model's storage.
func (m *Model) Row(i int) []float32 {
	return m.data[i*m.cols : (i+1)*m.cols]
}
