// Package chunker splits document text into overlapping, sentence and
// line aware windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultSize      = 1000
	DefaultOverlap   = 200
	DefaultMinLength = 50
)

var (
	// ErrInvalidOptions is returned for sizes that cannot make progress.
	ErrInvalidOptions = errors.New("invalid chunker options")
	// ErrNoProgress is returned when a break point would not advance the window.
	ErrNoProgress = errors.New("chunk window did not advance")
)

// Options configures window size, overlap and the noise threshold.
// Lengths are counted in characters (runes).
type Options struct {
	Size      int `koanf:"size"`
	Overlap   int `koanf:"overlap"`
	MinLength int `koanf:"min_length"`
}

// DefaultOptions returns 1000/200 windows that drop chunks of 50 chars or less.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap, MinLength: DefaultMinLength}
}

// Validate rejects options that cannot guarantee forward progress.
func (o Options) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("%w: size must be > 0, got %d", ErrInvalidOptions, o.Size)
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		return fmt.Errorf("%w: overlap must be in [0, size), got %d", ErrInvalidOptions, o.Overlap)
	}
	if o.MinLength < 0 {
		return fmt.Errorf("%w: min_length must be >= 0, got %d", ErrInvalidOptions, o.MinLength)
	}
	return nil
}

// Chunker splits text with fixed options.
type Chunker struct {
	opts Options
}

// New validates opts and returns a Chunker.
func New(opts Options) (*Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{opts: opts}, nil
}

// Options returns the chunker configuration.
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk splits content with the given size and overlap and the default
// noise threshold.
func Chunk(content string, size, overlap int) ([]string, error) {
	c, err := New(Options{Size: size, Overlap: overlap, MinLength: DefaultMinLength})
	if err != nil {
		return nil, err
	}
	return c.Split(content)
}

// Split walks content in windows of Size characters. A window that does
// not reach the end is cut after its last '.' or '\n' when that break lies
// more than Size/2 characters in; the next window then starts Overlap
// characters before the cut. Otherwise the next window starts Overlap
// characters before the raw window end. Chunks are trimmed and only those
// longer than MinLength are kept.
func (c *Chunker) Split(content string) ([]string, error) {
	text := []rune(content)
	size, overlap := c.opts.Size, c.opts.Overlap

	var out []string
	start := 0
	for start < len(text) {
		end := min(start+size, len(text))
		window := text[start:end]

		next := end
		if end < len(text) {
			bp := lastBreak(window)
			if float64(bp) > float64(size)*0.5 {
				window = text[start : start+bp+1]
				next = start + bp + 1 - overlap
			} else {
				next = end - overlap
			}
			if next <= start {
				return nil, fmt.Errorf("%w: start %d, next %d", ErrNoProgress, start, next)
			}
		}

		if chunk := strings.TrimSpace(string(window)); utf8.RuneCountInString(chunk) > c.opts.MinLength {
			out = append(out, chunk)
		}
		start = next
	}
	return out, nil
}

// lastBreak returns the index of the last '.' or '\n' in w, or -1.
func lastBreak(w []rune) int {
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] == '.' || w[i] == '\n' {
			return i
		}
	}
	return -1
}
