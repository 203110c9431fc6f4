// Package loader parses word-embedding files into immutable artifacts.
//
// Supported formats:
//   - plain text (.txt/.vec): whitespace-separated word + floats per line
//   - word2vec binary
//   - fastText binary
//   - wordvec container (preprocessed binary layout)
//
// Format dispatch: a .txt or .vec suffix forces the text loader; any
// other suffix tries the binary readers in order (word2vec, fastText,
// container) and falls back to text if none of them produce a non-empty
// artifact.
//
// The loader never partially inserts: a call returns either a complete
// artifact with load statistics or a classified error. Parser panics are
// trapped and reported as malformed records.
//
// Example:
//
//	artifact, stats, err := loader.Load("glove.300d.txt", loader.Config{
//		NormalizeOnLoad:    true,
//		ValidateDimensions: true,
//		SkipInvalidWords:   true,
//	})
//	if err != nil {
//		return err
//	}
//	slog.Info("loaded embeddings",
//		"words", stats.WordCount, "dims", stats.Dimensions,
//		"format", stats.Format, "took", stats.LoadDuration)
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/diachrony/wordvec/pkg/embedding"
	"github.com/diachrony/wordvec/pkg/vecio"
)

var (
	// ErrFileNotFound means the embedding file does not exist.
	ErrFileNotFound = errors.New("embedding file not found")

	// ErrUnreadable means the file exists but could not be opened or read.
	ErrUnreadable = errors.New("embedding file unreadable")

	// ErrUnsupportedFormat means no loader could parse the file.
	ErrUnsupportedFormat = errors.New("unsupported embedding format")

	// ErrMalformedRecord means a record was structurally invalid and the
	// configuration did not permit skipping it.
	ErrMalformedRecord = errors.New("malformed embedding record")

	// ErrDimensionMismatch means a row's dimension differed from the
	// first observed dimension and dimension validation was disabled, so
	// the row could neither be validated away nor stored.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Format tags recorded in load statistics.
const (
	FormatText      = "text"
	FormatWord2Vec  = "word2vec"
	FormatFastText  = "fasttext"
	FormatContainer = "container"
)

// Config controls how an embedding file is parsed.
type Config struct {
	// MaxWords caps the artifact's vocabulary. 0 = unbounded.
	MaxWords int

	// NormalizeOnLoad L2-normalizes each vector in place; cosine
	// similarity then reduces to a dot product.
	NormalizeOnLoad bool

	// ValidateDimensions drops rows whose dimension differs from the
	// first observed row. When false, such a row aborts the load with
	// ErrDimensionMismatch.
	ValidateDimensions bool

	// SkipInvalidWords drops words failing the validity predicate
	// (embedding.ValidWord) instead of failing the load.
	SkipInvalidWords bool

	// TextEncoding is an informational tag recorded in the stats.
	// The parsers always treat input as UTF-8.
	TextEncoding string
}

// Stats describes a completed load.
type Stats struct {
	WordCount     int           `json:"word_count"`
	Dimensions    int           `json:"dimensions"`
	Format        string        `json:"format"`
	FileSizeBytes int64         `json:"file_size_bytes"`
	LoadDuration  time.Duration `json:"load_duration"`
	MemoryBytes   int64         `json:"memory_bytes"`
	Normalized    bool          `json:"normalized"`
	Encoding      string        `json:"encoding"`
}

// Load parses the file at path into an artifact.
func Load(path string, cfg Config) (*embedding.Artifact, Stats, error) {
	start := time.Now()

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Stats{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, Stats{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if info.IsDir() {
		return nil, Stats{}, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}

	artifact, err := dispatch(path, cfg)
	if err != nil {
		return nil, Stats{}, err
	}

	encoding := cfg.TextEncoding
	if encoding == "" {
		encoding = "utf-8"
	}
	stats := Stats{
		WordCount:     artifact.Len(),
		Dimensions:    artifact.Dimensions(),
		Format:        artifact.Format(),
		FileSizeBytes: info.Size(),
		LoadDuration:  time.Since(start),
		MemoryBytes:   artifact.ByteCost(),
		Normalized:    artifact.Normalized(),
		Encoding:      encoding,
	}
	return artifact, stats, nil
}

// dispatch picks the loader by suffix, trying binary formats in order for
// non-text suffixes.
func dispatch(path string, cfg Config) (*embedding.Artifact, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".vec":
		return loadText(path, cfg)
	}

	type binaryReader struct {
		format string
		read   func(string) (*vecio.Model, error)
	}
	readers := []binaryReader{
		{FormatWord2Vec, vecio.ReadWord2Vec},
		{FormatFastText, vecio.ReadFastText},
		{FormatContainer, vecio.ReadContainer},
	}

	for _, br := range readers {
		artifact, err := loadBinary(path, cfg, br.format, br.read)
		if err == nil {
			return artifact, nil
		}
		if abortsDispatch(err) {
			return nil, err
		}
	}

	artifact, err := loadText(path, cfg)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrUnreadable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: no loader produced a non-empty artifact", ErrUnsupportedFormat, path)
	}
	return artifact, nil
}

// abortsDispatch reports errors that should stop the format probe rather
// than fall through: I/O failures, and policy violations (invalid word
// with skipping disabled) that would recur for every format.
func abortsDispatch(err error) bool {
	return errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrUnreadable) ||
		errors.Is(err, ErrMalformedRecord) ||
		errors.Is(err, ErrDimensionMismatch)
}

// loadBinary materializes a decoded vecio model into an artifact.
func loadBinary(path string, cfg Config, format string, read func(string) (*vecio.Model, error)) (artifact *embedding.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			artifact = nil
			err = fmt.Errorf("%w: %s: parser panic: %v", ErrMalformedRecord, path, r)
		}
	}()

	model, err := read(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
		}
		return nil, err
	}

	b := embedding.NewBuilder(embedding.BuilderOptions{
		MaxWords:   cfg.MaxWords,
		Normalize:  cfg.NormalizeOnLoad,
		Format:     format,
		SourcePath: path,
	})

	words := model.Words()
	for i := range words {
		if b.Full() {
			break
		}
		if !embedding.ValidWord(words[i]) {
			if cfg.SkipInvalidWords {
				continue
			}
			return nil, fmt.Errorf("%w: %s: invalid word at index %d", ErrMalformedRecord, path, i)
		}
		if err := b.Add(words[i], model.Row(i)); err != nil {
			return nil, fmt.Errorf("%w: %s: word %d: %v", ErrMalformedRecord, path, i, err)
		}
	}

	built, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%s produced no words: %w", format, err)
	}
	return built, nil
}
