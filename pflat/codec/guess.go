package codec

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrEmptyGuess is returned when a flat name decodes to no path at all.
var ErrEmptyGuess = errors.New("name decodes to an empty path")

// GuessDecode reverses the legacy underscore/percent-encoding scheme: the
// name is split on '_' and every segment is percent-decoded on its own.
// The scheme is lossy, so names produced by Codec.Encode may come back wrong.
// Segments with malformed escapes are kept as they are.
func GuessDecode(name string) (string, error) {
	parts := strings.Split(name, "_")
	decoded := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		s, err := url.PathUnescape(p)
		if err != nil {
			s = p
		}
		decoded = append(decoded, s)
	}

	joined := filepath.Join(decoded...)
	if joined == "" || joined == "." {
		return "", ErrEmptyGuess
	}
	return joined, nil
}
