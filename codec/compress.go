package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrCorrupt is returned when a compressed frame cannot be decoded.
var ErrCorrupt = errors.New("codec: corrupt compressed frame")

// Compression is a block compression algorithm.
type Compression uint8

const (
	// CompressionLZ4 is fast and suits small payloads.
	CompressionLZ4 Compression = iota + 1
	// CompressionZstd compresses better and suits large bucket lists.
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// frame layout: [uncompressed size uint32][compressed size uint32][data].
// A compressed size of 0 means the data is stored as is.
const frameHeaderSize = 8

// Compressed wraps a codec and compresses its output.
type Compressed struct {
	inner Codec
	comp  Compression
}

// Zstd returns inner with zstd compression.
func Zstd(inner Codec) *Compressed { return &Compressed{inner: inner, comp: CompressionZstd} }

// LZ4 returns inner with lz4 block compression.
func LZ4(inner Codec) *Compressed { return &Compressed{inner: inner, comp: CompressionLZ4} }

// Name returns "<inner>+<compression>".
func (c *Compressed) Name() string { return c.inner.Name() + "+" + c.comp.String() }

// Marshal encodes v with the inner codec and compresses the result.
// Payloads that do not shrink by at least 10% are stored uncompressed.
func (c *Compressed) Marshal(v any) ([]byte, error) {
	data, err := c.inner.Marshal(v)
	if err != nil {
		return nil, err
	}

	var packed []byte
	switch c.comp {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n]
	case CompressionZstd:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("codec: unknown %s", c.comp)
	}

	if len(packed) == 0 || len(packed)*10 > len(data)*9 {
		out := make([]byte, frameHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[frameHeaderSize:], data)
		return out, nil
	}
	out := make([]byte, frameHeaderSize+len(packed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(packed)))
	copy(out[frameHeaderSize:], packed)
	return out, nil
}

// Unmarshal decompresses data and decodes it with the inner codec.
func (c *Compressed) Unmarshal(data []byte, v any) error {
	raw, err := c.decompress(data)
	if err != nil {
		return err
	}
	return c.inner.Unmarshal(raw, v)
}

func (c *Compressed) decompress(data []byte) ([]byte, error) {
	if len(data) < frameHeaderSize {
		return nil, fmt.Errorf("%w: frame too small for header", ErrCorrupt)
	}
	size := int(binary.LittleEndian.Uint32(data[0:]))
	packedSize := int(binary.LittleEndian.Uint32(data[4:]))
	body := data[frameHeaderSize:]

	if packedSize == 0 {
		if len(body) < size {
			return nil, fmt.Errorf("%w: truncated data", ErrCorrupt)
		}
		return body[:size], nil
	}
	if len(body) < packedSize {
		return nil, fmt.Errorf("%w: truncated compressed data", ErrCorrupt)
	}
	body = body[:packedSize]

	switch c.comp {
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if n != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("codec: unknown %s", c.comp)
	}
}
