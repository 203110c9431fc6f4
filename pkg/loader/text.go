package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/diachrony/wordvec/pkg/embedding"
)

// Text lines can be long: 2048 dims of "-0.123456" is ~20KB. 4MB leaves
// generous headroom for exotic files.
const maxTextLineBytes = 4 << 20

// loadText parses a whitespace-separated text embedding file.
//
// The first line is consumed as a (count, dim) header iff it has exactly
// two tokens and both parse as unsigned integers. Blank lines and lines
// beginning with '#' are skipped. On each data line the first token is
// the word and the remaining tokens are floats; tokens that fail to
// parse are skipped within the line. The first accepted row fixes the
// dimension.
func loadText(path string, cfg Config) (artifact *embedding.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			artifact = nil
			err = fmt.Errorf("%w: %s: parser panic: %v", ErrMalformedRecord, path, r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	defer f.Close()

	b := embedding.NewBuilder(embedding.BuilderOptions{
		MaxWords:   cfg.MaxWords,
		Normalize:  cfg.NormalizeOnLoad,
		Format:     FormatText,
		SourcePath: path,
	})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxTextLineBytes)

	first := true
	lineNo := 0
	vec := make([]float32, 0, 300)

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		fields := strings.Fields(trimmed)

		if first {
			first = false
			if isHeaderLine(fields) {
				continue
			}
		}

		if b.Full() {
			break
		}

		word := fields[0]
		if !embedding.ValidWord(word) {
			if cfg.SkipInvalidWords {
				continue
			}
			return nil, fmt.Errorf("%w: %s:%d: invalid word", ErrMalformedRecord, path, lineNo)
		}

		vec = vec[:0]
		for _, tok := range fields[1:] {
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				continue
			}
			vec = append(vec, float32(v))
		}
		if len(vec) == 0 {
			continue
		}

		if dim := b.Dimensions(); dim != 0 && len(vec) != dim {
			if cfg.ValidateDimensions {
				continue
			}
			return nil, fmt.Errorf("%w: %s:%d: row has %d values, expected %d",
				ErrDimensionMismatch, path, lineNo, len(vec), dim)
		}

		if err := b.Add(word, vec); err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrMalformedRecord, path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	built, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: no valid rows", ErrUnsupportedFormat, path)
	}
	return built, nil
}

// isHeaderLine reports whether the first line of a text file is a
// (count, dim) header: exactly two tokens, both unsigned integers.
func isHeaderLine(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	for _, f := range fields {
		if _, err := strconv.ParseUint(f, 10, 64); err != nil {
			return false
		}
	}
	return true
}
