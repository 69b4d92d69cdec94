package tinycompress

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"testing"
)

func TestCompressReadableByZlib(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 100},
		{"one block", maxBlock},
		{"three blocks", 2*maxBlock + 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i * 7)
			}
			stream := Compress(data)

			r, err := zlib.NewReader(bytes.NewReader(stream))
			if err != nil {
				t.Fatal(err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, data) {
				t.Error("zlib reader returned different data")
			}

			back, err := Decompress(stream)
			if err != nil || !bytes.Equal(back, data) {
				t.Errorf("Decompress = %d bytes, %v", len(back), err)
			}
		})
	}
}

func TestDecompressRejects(t *testing.T) {
	good := Compress([]byte(`{"version":"x"}`))

	badSum := append([]byte(nil), good...)
	badSum[len(badSum)-1] ^= 0xFF

	var deflated bytes.Buffer
	w := zlib.NewWriter(&deflated)
	w.Write(bytes.Repeat([]byte("abc"), 100))
	w.Close()

	tests := []struct {
		name   string
		stream []byte
		want   error
	}{
		{"json", []byte(`{"a":1}`), ErrHeader},
		{"truncated", good[:len(good)-6], ErrCorrupt},
		{"checksum", badSum, ErrCorrupt},
		{"deflated", deflated.Bytes(), ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decompress(tt.stream); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Write([]byte("hello "))
	w.Write([]byte("world"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := Decompress(buf.Bytes())
	if err != nil || string(got) != "hello world" {
		t.Errorf("Decompress = %q, %v", got, err)
	}
}
