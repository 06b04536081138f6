package shortcode

import (
	crand "crypto/rand"
	"errors"
	"math/rand/v2"
	"sync"
)

// Alphabet excludes ambiguous characters: 0, O, I, l, 1
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const DefaultLength = 8

// Config controls the shape of generated codes. Each code is between
// MinLength and MaxLength characters, inclusive.
type Config struct {
	Alphabet  string
	MinLength int
	MaxLength int
}

// DefaultConfig returns fixed-length codes over Alphabet.
func DefaultConfig() Config {
	return Config{Alphabet: Alphabet, MinLength: DefaultLength, MaxLength: DefaultLength}
}

// Generator generates random short codes.
type Generator struct {
	alphabet  string
	minLength int
	maxLength int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator creates a generator with the default config, seeded from
// crypto/rand.
func NewGenerator() *Generator {
	g, err := New(DefaultConfig(), nil)
	if err != nil {
		panic(err)
	}
	return g
}

// New creates a generator drawing from src. A nil src is replaced with a
// ChaCha8 source seeded from crypto/rand. Reversed length bounds are
// swapped.
func New(cfg Config, src rand.Source) (*Generator, error) {
	if cfg.Alphabet == "" {
		return nil, errors.New("shortcode: alphabet cannot be empty")
	}
	if cfg.MinLength <= 0 || cfg.MaxLength <= 0 {
		return nil, errors.New("shortcode: lengths must be greater than 0")
	}
	if cfg.MinLength > cfg.MaxLength {
		cfg.MinLength, cfg.MaxLength = cfg.MaxLength, cfg.MinLength
	}
	if src == nil {
		var seed [32]byte
		if _, err := crand.Read(seed[:]); err != nil {
			return nil, err
		}
		src = rand.NewChaCha8(seed)
	}

	return &Generator{
		alphabet:  cfg.Alphabet,
		minLength: cfg.MinLength,
		maxLength: cfg.MaxLength,
		rnd:       rand.New(src),
	}, nil
}

// Generate creates a new random short code.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	length := g.minLength
	if g.maxLength > g.minLength {
		length += g.rnd.IntN(g.maxLength - g.minLength + 1)
	}

	b := make([]byte, length)
	for i := range b {
		b[i] = g.alphabet[g.rnd.IntN(len(g.alphabet))]
	}
	return string(b)
}
