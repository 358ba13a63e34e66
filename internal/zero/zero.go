// Package zero provides the codec utilities shared across the package:
// fixed-width integer packing, constant-time buffer comparison, and secure
// zeroisation of key material.
//
// ⚠️ SECURITY NOTE: Due to Go's garbage collector and potential compiler
// optimizations, Bytes cannot guarantee complete erasure of every copy the
// runtime may have made. It significantly reduces the window during which
// key material is recoverable from memory, which is what every exit path in
// this module (normal completion, error, cancellation) relies on.
package zero

import "crypto/subtle"

// Bytes overwrites b with zeros in a way the compiler cannot optimise away,
// by routing the write through subtle.ConstantTimeCopy.
func Bytes(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// Multiple zeros every slice given to it. Useful for cleaning up a batch of
// related keys in a single defer.
func Multiple(slices ...[]byte) {
	for _, s := range slices {
		Bytes(s)
	}
}

// ConstantTimeEqual reports whether a and b hold the same bytes, in time
// independent of where they first differ. Unequal lengths are rejected
// without touching b's contents.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// PutUint32LE writes v into b[:4] in little-endian order. It panics if b is
// shorter than 4 bytes, matching the behaviour of encoding/binary.
func PutUint32LE(b []byte, v uint32) {
	_ = b[3]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Uint32LE reads a little-endian uint32 from b[:4].
func Uint32LE(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// PutUint64BE writes v into b[:8] in big-endian order, used for lengths that
// must sort and compare as plain byte sequences.
func PutUint64BE(b []byte, v uint64) {
	_ = b[7]
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}

// Uint64BE reads a big-endian uint64 from b[:8].
func Uint64BE(b []byte) uint64 {
	_ = b[7]
	return uint64(b[7]) | uint64(b[6])<<8 | uint64(b[5])<<16 | uint64(b[4])<<24 |
		uint64(b[3])<<32 | uint64(b[2])<<40 | uint64(b[1])<<48 | uint64(b[0])<<56
}

// XOR writes dst[i] = a[i] ^ b[i] for the shorter of a and b's length. It is
// used to de-obfuscate the manifest length prefix with the derived MAC key.
func XOR(dst, a, b []byte) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = a[i] ^ b[i]
	}
}

// Material wraps sensitive byte data with automatic zeroing on Close. It
// takes an internal copy so callers may still hand it a slice they mutate or
// reuse afterwards.
type Material struct {
	data   []byte
	closed bool
}

// NewMaterial copies data into a new Material that owns its storage.
func NewMaterial(data []byte) *Material {
	if data == nil {
		return &Material{}
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return &Material{data: copied}
}

// Bytes returns the wrapped data, or nil once Close has run.
func (m *Material) Bytes() []byte {
	if m.closed {
		return nil
	}
	return m.data
}

// Len reports the length of the wrapped data, or 0 once closed.
func (m *Material) Len() int {
	if m.closed || m.data == nil {
		return 0
	}
	return len(m.data)
}

// Close zeroes the wrapped data and marks the Material closed. Idempotent.
func (m *Material) Close() {
	if m.closed || m.data == nil {
		return
	}
	Bytes(m.data)
	m.data = nil
	m.closed = true
}

// IsClosed reports whether Close has already run.
func (m *Material) IsClosed() bool {
	return m.closed
}
