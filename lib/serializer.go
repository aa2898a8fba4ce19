package lib

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Serialize encodes the given value into MessagePack bytes. The
// encoding is deterministic for a given value, which is what lets two
// replicas derive identical cell contents from identical operations.
func Serialize[T any](value T) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseArrayEncodedStructs(true)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize decodes the given MessagePack bytes into a value.
func Deserialize[T any](data []byte) (T, error) {
	var value T
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&value); err != nil {
		return value, err
	}
	return value, nil
}
