// Package chunker splits raw resource text into fixed-size overlapping windows.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

const (
	// DefaultSize is the default window length in characters.
	DefaultSize = 1000

	// DefaultOverlap is the default number of characters shared by consecutive windows.
	DefaultOverlap = 200
)

// ErrInvalidWindow is returned when size and overlap cannot make progress.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Chunker holds a window configuration.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the window length in characters.
func WithSize(size int) Option {
	return func(c *Chunker) {
		c.size = size
	}
}

// WithOverlap sets the overlap between consecutive windows in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New creates a chunker with the given options applied over the defaults.
// It returns ErrInvalidWindow if the resulting window would never advance.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := validate(c.size, c.overlap); err != nil {
		return nil, err
	}
	return c, nil
}

// Size returns the configured window length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text using the configured window.
func (c *Chunker) Chunk(text string) []string {
	return collect(All(text, c.size, c.overlap))
}

// Split splits text into trimmed windows of size characters, advancing by
// size-overlap each step. Windows that trim to empty are dropped.
func Split(text string, size, overlap int) ([]string, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return collect(All(text, size, overlap)), nil
}

// All returns the windows of text as a lazy sequence. Each range over the
// sequence starts again from the beginning of text. An invalid window yields
// nothing.
func All(text string, size, overlap int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if validate(size, overlap) != nil {
			return
		}
		runes := []rune(text)
		step := size - overlap
		for cursor := 0; cursor < len(runes); cursor += step {
			end := min(cursor+size, len(runes))
			piece := strings.TrimSpace(string(runes[cursor:end]))
			if piece == "" {
				continue
			}
			if !yield(piece) {
				return
			}
		}
	}
}

func collect(seq iter.Seq[string]) []string {
	var out []string
	for piece := range seq {
		out = append(out, piece)
	}
	return out
}

func validate(size, overlap int) error {
	if size <= 0 || overlap < 0 || size <= overlap {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	return nil
}
