// Package csprng provides the seeded pseudo-random generator the payload
// multiplexer uses for scheduling, chunk sizing, and padding fill. It must
// be deterministic given the same seed so that a reader and a writer agree
// on the same schedule from the same manifest.payload_configuration, per
// the package format's design note that "the multiplexer's CSPRNG must be
// seeded deterministically from the manifest's payload_configuration."
package csprng

import (
	"encoding/binary"
	"io"

	"golang.org/x/crypto/salsa20/salsa"

	obscurerr "obscurcore/internal/errors"
)

// Stream is a seeded, deterministic byte generator. The same seed always
// produces the same byte sequence, regardless of process or platform.
type Stream interface {
	// Read fills p with the next len(p) pseudo-random bytes. It never
	// returns a short read or an error.
	Read(p []byte) (int, error)

	// Uint32n draws a uniform value in [0, n) from the stream via rejection
	// sampling, or returns an error for n == 0.
	Uint32n(n uint32) (uint32, error)
}

// salsaStream implements Stream with Salsa20 run as a keystream generator
// keyed by the 32-byte seed. Each refill produces one 64-byte block, with
// the refill count written into the nonce half of Salsa20's 16-byte input
// and the block-counter half left at zero. This is the registry's
// "Salsa20Csprng" backing.
type salsaStream struct {
	key     [32]byte
	counter uint64
	buf     [64]byte
	pos     int
}

// NewSalsa20 creates a deterministic CSPRNG seeded by a 32-byte seed.
func NewSalsa20(seed []byte) (Stream, error) {
	if len(seed) != 32 {
		return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "salsa20 csprng seed must be 32 bytes")
	}
	s := &salsaStream{pos: 64}
	copy(s.key[:], seed)
	return s, nil
}

func (s *salsaStream) refill() {
	var nonce [16]byte
	binary.LittleEndian.PutUint64(nonce[:8], s.counter)
	salsa.XORKeyStream(s.buf[:], zeroes64[:], &nonce, &s.key)
	s.counter++
	s.pos = 0
}

var zeroes64 [64]byte

func (s *salsaStream) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if s.pos == 64 {
			s.refill()
		}
		c := copy(p[n:], s.buf[s.pos:])
		s.pos += c
		n += c
	}
	return n, nil
}

func (s *salsaStream) Uint32n(n uint32) (uint32, error) {
	if n == 0 {
		return 0, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "csprng range must be positive")
	}
	// Rejection sampling against the largest multiple of n that fits in
	// uint32, so the result is exactly uniform over [0, n).
	limit := uint32(0xFFFFFFFF) - uint32(0xFFFFFFFF)%n
	for {
		var b [4]byte
		_, _ = s.Read(b[:])
		v := binary.LittleEndian.Uint32(b[:])
		if v < limit {
			return v % n, nil
		}
	}
}

// RangeInclusive draws a uniform value in [min, max], min <= max.
func RangeInclusive(s Stream, min, max int) (int, error) {
	if min > max {
		return 0, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "csprng range min > max")
	}
	span := uint32(max-min) + 1
	v, err := s.Uint32n(span)
	if err != nil {
		return 0, err
	}
	return min + int(v), nil
}

// Permutation returns a CSPRNG-driven permutation of [0, n) via a
// Fisher-Yates shuffle driven by s.
func Permutation(s Stream, n int) ([]int, error) {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j, err := s.Uint32n(uint32(i + 1))
		if err != nil {
			return nil, err
		}
		perm[i], perm[int(j)] = perm[int(j)], perm[i]
	}
	return perm, nil
}

// Fill writes exactly len(p) pseudo-random bytes from s into p. It exists
// as a readability wrapper around Stream.Read for padding-fill call sites.
func Fill(s Stream, p []byte) error {
	_, err := io.ReadFull(streamReader{s}, p)
	return err
}

type streamReader struct{ s Stream }

func (r streamReader) Read(p []byte) (int, error) { return r.s.Read(p) }
