package lib

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Compress gzips cell payloads before they hit a persistent backend.
func Compress(data []byte) ([]byte, error) {
	var compressed bytes.Buffer
	compressor := gzip.NewWriter(&compressed)
	if _, err := compressor.Write(data); err != nil {
		return nil, err
	}
	if err := compressor.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	d, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return d, r.Close()
}
