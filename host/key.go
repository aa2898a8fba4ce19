package host

import (
	"encoding/binary"
	"encoding/hex"
)

// KeySize is the width of a storage cell address in bytes.
const KeySize = 32

// Key addresses a single cell of the host key-value store. Keys are
// big-endian 256-bit integers for the purpose of arithmetic: offsets
// wrap silently at the 2^256 boundary and never fail.
type Key [KeySize]byte

// KeyDiff is the wrapping difference between two keys. It converts to a
// fixed-width integer only when the difference actually fits.
type KeyDiff [KeySize]byte

// Uint128 carries a 128-bit key difference as two 64-bit halves.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// NewKey builds a key from a 64-bit seed placed in the low bytes.
func NewKey(seed uint64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[KeySize-8:], seed)
	return k
}

// String renders the key as hex. Used as the map key of in-process
// backends and in log lines.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Add returns the key advanced by n, wrapping at the key-space boundary.
func (k Key) Add(n uint64) Key {
	var rhs [KeySize]byte
	binary.BigEndian.PutUint64(rhs[KeySize-8:], n)
	return addBytes(k, rhs)
}

// Sub returns the key moved back by n, wrapping below zero.
func (k Key) Sub(n uint64) Key {
	var rhs [KeySize]byte
	binary.BigEndian.PutUint64(rhs[KeySize-8:], n)
	return addBytes(k, negBytes(rhs))
}

// Diff returns k - other as a KeyDiff, consistent with the wrapping
// behavior of Add and Sub: (k.Add(n)).Diff(k) always converts back to n.
func (k Key) Diff(other Key) KeyDiff {
	return KeyDiff(addBytes(k, negBytes(other)))
}

// addBytes adds two 32-byte big-endian values with carry propagation.
func addBytes(lhs, rhs [KeySize]byte) [KeySize]byte {
	var out [KeySize]byte
	var carry uint16
	for i := KeySize - 1; i >= 0; i-- {
		sum := uint16(lhs[i]) + uint16(rhs[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}

// negBytes returns the two's complement of a 32-byte value.
func negBytes(v [KeySize]byte) [KeySize]byte {
	var out [KeySize]byte
	var carry uint16 = 1
	for i := KeySize - 1; i >= 0; i-- {
		sum := uint16(^v[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}

// fitsIn reports whether all bytes outside the low n bytes are zero.
func (d KeyDiff) fitsIn(n int) bool {
	for _, b := range d[:KeySize-n] {
		if b != 0 {
			return false
		}
	}
	return true
}

// TryToUint32 converts the difference to a uint32 if it fits.
func (d KeyDiff) TryToUint32() (uint32, bool) {
	if !d.fitsIn(4) {
		return 0, false
	}
	return binary.BigEndian.Uint32(d[KeySize-4:]), true
}

// TryToUint64 converts the difference to a uint64 if it fits.
func (d KeyDiff) TryToUint64() (uint64, bool) {
	if !d.fitsIn(8) {
		return 0, false
	}
	return binary.BigEndian.Uint64(d[KeySize-8:]), true
}

// TryToUint128 converts the difference to a 128-bit value if it fits.
func (d KeyDiff) TryToUint128() (Uint128, bool) {
	if !d.fitsIn(16) {
		return Uint128{}, false
	}
	return Uint128{
		Hi: binary.BigEndian.Uint64(d[KeySize-16 : KeySize-8]),
		Lo: binary.BigEndian.Uint64(d[KeySize-8:]),
	}, true
}
