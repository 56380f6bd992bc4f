package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/telemetry"
)

// Codec identifies how a segment payload is compressed.
type Codec byte

const (
	CodecRaw  Codec = 0
	CodecZstd Codec = 1
	CodecLZ4  Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	}
	return fmt.Sprintf("codec(%d)", byte(c))
}

var errIncompressible = errors.New("incompressible")

// Encoders are safe for concurrent use and expensive to build.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

// DroppedBits returns how many low mantissa bits of a float32 can be zeroed
// while keeping every value within the bound. Truncating k of 23 bits bounds
// the relative error by 2^(k-23).
func DroppedBits(b registry.ErrorBound) uint {
	if b.Lossless() {
		return 0
	}
	k := 23 + math.Floor(math.Log2(b.Relative()))
	if k <= 0 {
		return 0
	}
	return uint(min(k, 23))
}

// Quantize zeroes the low bits of v's mantissa.
func Quantize(v float32, bits uint) float32 {
	if bits == 0 {
		return v
	}
	mask := ^uint32(0) << bits
	return math.Float32frombits(math.Float32bits(v) & mask)
}

// EncodeRows appends rows in the on-disk layout: an 8-byte millisecond
// timestamp followed by every field as a float32. Tags are not stored.
func EncodeRows(dst []byte, rows []telemetry.Row, bits uint) []byte {
	for _, r := range rows {
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.Timestamp.UnixMilli()))
		for _, f := range r.Fields {
			dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(Quantize(f, bits)))
		}
	}
	return dst
}

// Compress builds a segment: a codec tag, the raw length as uvarint, then the
// payload. Data that does not shrink is stored raw.
func Compress(c Codec, data []byte) ([]byte, error) {
	var payload []byte
	var err error
	switch c {
	case CodecZstd:
		payload = zstdEncoder.EncodeAll(data, nil)
		if len(payload) >= len(data) {
			err = errIncompressible
		}
	case CodecLZ4:
		payload, err = compressLZ4(data)
	case CodecRaw:
		err = errIncompressible
	default:
		return nil, fmt.Errorf("compress: unsupported %s", c)
	}
	if errors.Is(err, errIncompressible) {
		c, payload, err = CodecRaw, data, nil
	}
	if err != nil {
		return nil, err
	}
	seg := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	seg = append(seg, byte(c))
	seg = binary.AppendUvarint(seg, uint64(len(data)))
	return append(seg, payload...), nil
}

// Decompress reverses Compress.
func Decompress(seg []byte) ([]byte, error) {
	if len(seg) == 0 {
		return nil, errors.New("decompress: empty segment")
	}
	c := Codec(seg[0])
	size, n := binary.Uvarint(seg[1:])
	if n <= 0 {
		return nil, errors.New("decompress: bad length header")
	}
	payload := seg[1+n:]
	switch c {
	case CodecRaw:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("decompress: got %d raw bytes, expected %d", len(payload), size)
		}
		return payload, nil
	case CodecZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(out)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	case CodecLZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return out, nil
	}
	return nil, fmt.Errorf("decompress: unsupported %s", c)
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// 0 means the block is incompressible.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return dst[:written], nil
}
