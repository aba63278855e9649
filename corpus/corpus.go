// Package corpus holds the roast lines the bot picks from.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"strings"
	"sync/atomic"
)

// Corpus is an ordered, never-empty set of roast lines that can be reloaded
// while readers pick from it.
type Corpus struct {
	source   Source
	fallback string
	lines    atomic.Pointer[[]string]
	intn     func(n int) int
}

// CorpusOption configures a Corpus.
type CorpusOption func(*Corpus)

// WithRandom replaces the random index function used by Pick.
func WithRandom(intn func(n int) int) CorpusOption {
	return func(c *Corpus) {
		c.intn = intn
	}
}

// New creates a corpus reading from source. fallback is installed whenever the
// source is missing or has no usable lines.
func New(source Source, fallback string, opts ...CorpusOption) *Corpus {
	c := &Corpus{
		source:   source,
		fallback: fallback,
		intn:     rand.IntN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the corpus with the trimmed, non-blank lines of the source and
// returns how many lines are now loaded. A missing source installs the
// fallback line; any other failure keeps the previous corpus and returns the
// error.
func (c *Corpus) Load(ctx context.Context) (int, error) {
	raw, err := c.source.ReadLines(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.store([]string{c.fallback})
			return 1, nil
		}
		if c.lines.Load() == nil {
			c.store([]string{c.fallback})
		}
		return c.Len(), fmt.Errorf("load roasts from %s: %w", c.source, err)
	}

	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		lines = []string{c.fallback}
	}

	c.store(lines)
	return len(lines), nil
}

func (c *Corpus) store(lines []string) {
	c.lines.Store(&lines)
}

// Pick returns a uniformly random line. It reports false only when nothing
// has been loaded yet.
func (c *Corpus) Pick() (string, bool) {
	lines := c.snapshot()
	if len(lines) == 0 {
		return "", false
	}
	return lines[c.intn(len(lines))], true
}

// Len returns the number of loaded lines.
func (c *Corpus) Len() int {
	return len(c.snapshot())
}

// Lines returns a copy of the loaded lines.
func (c *Corpus) Lines() []string {
	return append([]string(nil), c.snapshot()...)
}

func (c *Corpus) snapshot() []string {
	p := c.lines.Load()
	if p == nil {
		return nil
	}
	return *p
}
