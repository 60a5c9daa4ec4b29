// Package codec encodes shard requests and responses for transports.
//
// A codec is identified by a stable name. Compressing codecs wrap another
// codec and are named "<inner>+<compression>", e.g. "go-json+zstd".
package codec

import (
	"fmt"
	"strings"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	base, comp, wrapped := strings.Cut(name, "+")
	var inner Codec
	switch base {
	case "json":
		inner = JSON{}
	case "go-json":
		inner = GoJSON{}
	default:
		return nil, false
	}
	if !wrapped {
		return inner, true
	}
	switch comp {
	case "zstd":
		return Zstd(inner), true
	case "lz4":
		return LZ4(inner), true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests/benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
