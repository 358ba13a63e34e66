// Package streamcrypto provides the two stackable stream decorators the
// manifest crypto engine and payload multiplexer build their encrypt-then-
// MAC / decrypt-then-verify pipelines from: a MAC-observing passthrough
// stream and a cipher stream. Stacking order when writing is inner =
// output stream, then MAC stream, then cipher stream; reading mirrors it.
package streamcrypto

import (
	"hash"
	"io"

	"obscurcore/internal/ringbuf"
	"obscurcore/internal/zero"
)

// MACStream wraps an inner io.Reader or io.Writer and a keyed hash.Hash,
// updating the authenticator with every byte it forwards. Finalize returns
// the authenticator output; VerifyAndClose compares it in constant time
// against an expected tag.
//
// CRITICAL: Update must be called in identical order by writer and reader
// for associated data — see Update.
type MACStream struct {
	*ringbuf.Base
	inner io.Reader
	out   io.Writer
	mac   hash.Hash
}

// NewMACReader wraps inner for reading, updating mac with every byte
// delivered to the caller.
func NewMACReader(inner io.Reader, mac hash.Hash) *MACStream {
	return &MACStream{
		Base:  ringbuf.NewBase(ringbuf.ReadDirection, 0, 0),
		inner: inner,
		mac:   mac,
	}
}

// NewMACWriter wraps out for writing, updating mac with every byte written
// to the destination.
func NewMACWriter(out io.Writer, mac hash.Hash) *MACStream {
	return &MACStream{
		Base: ringbuf.NewBase(ringbuf.WriteDirection, 0, 0),
		out:  out,
		mac:  mac,
	}
}

// Read implements io.Reader, authenticating bytes as they pass through.
func (m *MACStream) Read(p []byte) (int, error) {
	if err := m.CheckDirection(ringbuf.ReadDirection); err != nil {
		return 0, err
	}
	n, err := m.inner.Read(p)
	if n > 0 {
		m.mac.Write(p[:n])
		m.AddOut(n)
	}
	return n, err
}

// Write implements io.Writer, authenticating bytes as they pass through.
func (m *MACStream) Write(p []byte) (int, error) {
	if err := m.CheckDirection(ringbuf.WriteDirection); err != nil {
		return 0, err
	}
	n, err := m.out.Write(p)
	if n > 0 {
		m.mac.Write(p[:n])
		m.AddIn(n)
	}
	return n, err
}

// Update feeds extra associated-data bytes into the authenticator without
// passing them through the wrapped stream. Used to bind additional
// authenticated data before the MAC is finalised: the manifest crypto
// engine feeds its length prefix and config clone after the ciphertext,
// and the multiplexer feeds an item's identifier/type/path/length before
// the item's ciphertext. The same sequence of Update calls, in the same
// order, MUST occur on both the write and the read side.
func (m *MACStream) Update(extra []byte) {
	m.mac.Write(extra)
}

// Finalize computes the authenticator over everything observed so far
// (plus any Update calls) and returns it. It does not reset the
// underlying hash.Hash; callers should discard the MACStream afterwards.
func (m *MACStream) Finalize() []byte {
	return m.mac.Sum(nil)
}

// VerifyAndClose finalises the authenticator and compares it in constant
// time against expected, zeroising the computed tag afterwards regardless
// of outcome.
func (m *MACStream) VerifyAndClose(expected []byte) bool {
	got := m.Finalize()
	ok := zero.ConstantTimeEqual(got, expected)
	zero.Bytes(got)
	return ok
}
