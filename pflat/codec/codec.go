// Package codec turns a relative path into a single flat file name and back.
//
// The transformation is an ordered list of token substitutions. Encoding
// walks the input once and, at every position, applies the first rule whose
// literal side matches. Decoding walks the flat name once and applies the
// first rule whose escaped side matches. Because both directions read the
// same rule list, the rules are ordered from the most to the least specific
// escaped token, which keeps the pair mutually inverse on the paths the codec
// accepts (see Reversible).
package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DefaultPathSep    = "__"
	DefaultPathSepEsc = "___"
	DefaultEscSeq     = "___UNDERSCORE___"

	// EscMarker follows EscSeq when the original path already contained EscSeq.
	EscMarker = "_ESC"

	// sentinel can never be part of a path handed to the codec.
	sentinel = "\x00"
)

// ErrInvalidConfig is returned when a Config cannot produce a reversible rule list.
var ErrInvalidConfig = errors.New("invalid codec config")

// Config holds the three tokens used by the codec.
type Config struct {
	PathSep    string `mapstructure:"pathSep" json:"path_sep"`
	PathSepEsc string `mapstructure:"pathSepEsc" json:"path_sep_esc"`
	EscSeq     string `mapstructure:"escSeq" json:"esc_seq"`
}

// DefaultConfig returns the "__" / "___" / "___UNDERSCORE___" token set.
func DefaultConfig() Config {
	return Config{
		PathSep:    DefaultPathSep,
		PathSepEsc: DefaultPathSepEsc,
		EscSeq:     DefaultEscSeq,
	}
}

// WithDefaults fills empty tokens from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.PathSep == "" {
		c.PathSep = d.PathSep
	}
	if c.PathSepEsc == "" {
		c.PathSepEsc = d.PathSepEsc
	}
	if c.EscSeq == "" {
		c.EscSeq = d.EscSeq
	}
	return c
}

// Validate checks the token invariants.
func (c Config) Validate() error {
	tokens := map[string]string{
		"pathSep":    c.PathSep,
		"pathSepEsc": c.PathSepEsc,
		"escSeq":     c.EscSeq,
	}
	for name, tok := range tokens {
		if tok == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, name)
		}
		if strings.ContainsAny(tok, `/\`+sentinel) {
			return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidConfig, name, tok)
		}
	}
	if c.PathSep == c.PathSepEsc || c.PathSep == c.EscSeq || c.PathSepEsc == c.EscSeq {
		return fmt.Errorf("%w: tokens must be distinct", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.PathSepEsc, c.PathSep) {
		return fmt.Errorf("%w: pathSepEsc %q must extend pathSep %q", ErrInvalidConfig, c.PathSepEsc, c.PathSep)
	}
	return nil
}

// rule maps a literal found in a path to its escaped form in a flat name.
type rule struct {
	literal   string
	escaped   string
	separator bool
}

// Codec encodes relative paths into flat names and decodes them back.
type Codec struct {
	cfg   Config
	rules []rule
}

// New builds a Codec for cfg. Empty tokens take their default value.
func New(cfg Config) (*Codec, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Codec{
		cfg: cfg,
		rules: []rule{
			{literal: cfg.EscSeq, escaped: cfg.EscSeq + EscMarker},
			{literal: cfg.PathSepEsc, escaped: cfg.EscSeq},
			{literal: cfg.PathSep, escaped: cfg.PathSepEsc},
			{literal: string(filepath.Separator), escaped: cfg.PathSep, separator: true},
		},
	}, nil
}

// Default returns a Codec using DefaultConfig.
func Default() *Codec {
	c, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return c
}

// Config returns the tokens in use.
func (c *Codec) Config() Config {
	return c.cfg
}

// Encode flattens relpath. Both '/' and '\' are treated as separators.
func (c *Codec) Encode(relpath string) string {
	var b strings.Builder
	b.Grow(len(relpath) + 8)

	for i := 0; i < len(relpath); {
		matched := false
		for _, r := range c.rules {
			if r.separator {
				if relpath[i] == '/' || relpath[i] == '\\' {
					b.WriteString(r.escaped)
					i++
					matched = true
					break
				}
				continue
			}
			if strings.HasPrefix(relpath[i:], r.literal) {
				b.WriteString(r.escaped)
				i += len(r.literal)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(relpath[i])
			i++
		}
	}
	return b.String()
}

// Decode restores the relative path encoded in flatName using native separators.
func (c *Codec) Decode(flatName string) string {
	var b strings.Builder
	b.Grow(len(flatName))

	for i := 0; i < len(flatName); {
		matched := false
		for _, r := range c.rules {
			if strings.HasPrefix(flatName[i:], r.escaped) {
				b.WriteString(r.literal)
				i += len(r.escaped)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(flatName[i])
			i++
		}
	}
	return b.String()
}

// Reversible reports whether relpath survives an Encode/Decode round trip.
//
// For the default tokens, components that start or end with '_' next to a
// separator, and paths that already contain EscSeq+EscMarker, fall outside
// the reversible set. Such paths still flatten; restoring them needs the
// manifest.
func (c *Codec) Reversible(relpath string) bool {
	if strings.Contains(relpath, sentinel) {
		return false
	}
	return c.Decode(c.Encode(relpath)) == Normalize(relpath)
}

// Normalize rewrites every '/' and '\' in p to the native separator.
func Normalize(p string) string {
	if filepath.Separator == '/' {
		return strings.ReplaceAll(p, `\`, "/")
	}
	return strings.ReplaceAll(p, "/", string(filepath.Separator))
}
