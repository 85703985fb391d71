// Package keys mints license keys and binds them to orders.
package keys

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

// Alphabet omits 0, O, 1 and I so keys survive being read aloud or retyped.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultSegments      = 4
	DefaultSegmentLength = 5
)

// Generator produces random keys such as "K7QRM-2HXZP-NB4TW-9CDEA".
type Generator struct {
	segments int
	length   int
	rand     io.Reader
}

type GeneratorOption func(*Generator)

func WithSegments(n int) GeneratorOption {
	return func(g *Generator) { g.segments = n }
}

func WithSegmentLength(n int) GeneratorOption {
	return func(g *Generator) { g.length = n }
}

// WithRandReader replaces crypto/rand, for deterministic tests.
func WithRandReader(r io.Reader) GeneratorOption {
	return func(g *Generator) { g.rand = r }
}

func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{segments: DefaultSegments, length: DefaultSegmentLength, rand: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	if g.segments < 1 {
		g.segments = DefaultSegments
	}
	if g.length < 1 {
		g.length = DefaultSegmentLength
	}
	return g
}

// Generate returns a new key. The alphabet has 32 symbols, so masking a
// random byte to five bits selects uniformly.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.segments*g.length)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	var sb strings.Builder
	sb.Grow(len(buf) + g.segments - 1)
	for i, b := range buf {
		if i > 0 && i%g.length == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(Alphabet[b&0x1f])
	}
	return sb.String(), nil
}
