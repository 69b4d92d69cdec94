// Package tinycompress writes zlib streams made of stored (uncompressed)
// DEFLATE blocks. Any zlib reader accepts the output, and the encoder needs
// no tables, so it fits firmware built with TinyGo.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

// maxBlock is the largest payload of one stored block
const maxBlock = 0xFFFF

var (
	// ErrHeader is returned for data that does not start with a zlib header
	ErrHeader = errors.New("tinycompress: invalid zlib header")

	// ErrCorrupt is returned for truncated or mismatching streams, and for
	// compressed (non-stored) blocks, which Decompress does not inflate
	ErrCorrupt = errors.New("tinycompress: corrupt or compressed stream")
)

// Compress wraps data in a zlib stream of stored blocks
func Compress(data []byte) []byte {
	blocks := (len(data) + maxBlock - 1) / maxBlock
	if blocks == 0 {
		blocks = 1
	}
	out := make([]byte, 0, 2+blocks*5+len(data)+4)

	out = append(out, 0x78, 0x01) // deflate, 32K window, no compression hint
	rest := data
	for {
		n := len(rest)
		if n > maxBlock {
			n = maxBlock
		}
		final := byte(0)
		if n == len(rest) {
			final = 1
		}
		length := uint16(n)
		out = append(out, final,
			byte(length), byte(length>>8),
			byte(^length), byte(^length>>8))
		out = append(out, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(data)
	return append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}

// Decompress reverses Compress. It only understands stored blocks.
func Decompress(stream []byte) ([]byte, error) {
	if len(stream) < 2 || stream[0]&0x0F != 8 || (uint16(stream[0])<<8|uint16(stream[1]))%31 != 0 {
		return nil, ErrHeader
	}
	pos := 2
	var out []byte
	for {
		if pos+5 > len(stream) {
			return nil, ErrCorrupt
		}
		header := stream[pos]
		if (header>>1)&0x03 != 0 {
			return nil, ErrCorrupt
		}
		length := int(stream[pos+1]) | int(stream[pos+2])<<8
		nlength := int(stream[pos+3]) | int(stream[pos+4])<<8
		pos += 5
		if length != ^nlength&0xFFFF || pos+length > len(stream) {
			return nil, ErrCorrupt
		}
		out = append(out, stream[pos:pos+length]...)
		pos += length
		if header&0x01 != 0 {
			break
		}
	}

	if pos+4 != len(stream) {
		return nil, ErrCorrupt
	}
	want := uint32(stream[pos])<<24 | uint32(stream[pos+1])<<16 | uint32(stream[pos+2])<<8 | uint32(stream[pos+3])
	if adler32.Checksum(out) != want {
		return nil, ErrCorrupt
	}
	return out, nil
}

// Writer buffers everything written and emits the stream on Close
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter returns a Writer producing a zlib stream on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (z *Writer) Write(p []byte) (int, error) {
	z.buf = append(z.buf, p...)
	return len(p), nil
}

// Close writes the stream. The Writer must not be used afterwards.
func (z *Writer) Close() error {
	_, err := z.w.Write(Compress(z.buf))
	z.buf = nil
	return err
}
