package multiplex

import (
	"bytes"
	"crypto/cipher"
	"hash"
	"io"

	"obscurcore/internal/registry"
	"obscurcore/internal/ringbuf"
	"obscurcore/internal/streamcrypto"
	"obscurcore/internal/wire"

	obscurerr "obscurcore/internal/errors"
)

// internalLength computes one item's internal_length (ciphertext-plus-
// nothing-yet length, before the MAC tag is appended) from its plaintext
// length and cipher configuration, without encrypting a single byte. This
// is the only thing §4.7 actually requires up front — the manifest records
// lengths before the payload region is written, but nothing requires the
// ciphertext itself to already exist at that point.
func internalLength(cfg wire.CipherConfig, key []byte, plaintextLen int) (uint64, error) {
	if cfg.ModeName != "Cbc" {
		return uint64(plaintextLen), nil
	}
	_, blockSize, err := registry.NewBlockMode(cfg.CipherName, key, cfg.IV, true)
	if err != nil {
		return 0, err
	}
	pad := blockSize - plaintextLen%blockSize
	return uint64(plaintextLen + pad), nil
}

// ringWriter adapts a ringbuf.Buffer to io.Writer so a streamcrypto
// decorator can stage its output into it.
type ringWriter struct{ buf *ringbuf.Buffer }

func (r *ringWriter) Write(p []byte) (int, error) { return r.buf.Put(p) }

// writeItemStream produces one item's ciphertext-plus-tag incrementally,
// exactly sizeBytes at a time on each call to supply, genuinely streaming
// plaintext through the streamcrypto decorator stack rather than
// precomputing the whole item before scheduling runs.
//
// Stream-cipher items need no buffering beyond the current call: a stream
// cipher's keystream position lives entirely in the external cipher.Stream,
// so a fresh CipherStream/MACStream pair can be built per call. CBC items
// cannot do this — CipherStream's block-mode writer buffers a genuinely
// stateful partial block inside itself — so a CBC item holds one persistent
// CipherStream over one persistent MACStream over a ringbuf.Buffer sized to
// the item's full internal length plus its tag, and supply drains that
// buffer, topping it up by feeding more plaintext through the persistent
// writer whenever it runs dry.
type writeItemStream struct {
	plaintext []byte
	ptOffset  int
	mac       hash.Hash
	aad       []byte
	aadFed    bool

	stream cipher.Stream // stream-cipher path

	ring    *ringbuf.Buffer // Cbc path
	ringMAC *streamcrypto.MACStream
	block   *streamcrypto.CipherStream
	closed  bool

	tag    []byte
	tagPos int
}

func newWriteItemStream(it WriteItem, mac hash.Hash, internalLen uint64, aad []byte) (*writeItemStream, error) {
	s := &writeItemStream{plaintext: it.Plaintext, mac: mac, aad: aad}

	if it.CipherCfg.ModeName == "Cbc" {
		mode, blockSize, err := registry.NewBlockMode(it.CipherCfg.CipherName, it.CipherKey, it.CipherCfg.IV, true)
		if err != nil {
			return nil, err
		}
		s.ring = ringbuf.New(int(internalLen) + mac.Size())
		s.ringMAC = streamcrypto.NewMACWriter(&ringWriter{s.ring}, mac)
		s.block = streamcrypto.NewBlockCipherWriter(s.ringMAC, mode, blockSize)
		return s, nil
	}

	stream, err := registry.NewCipherStream(it.CipherCfg.CipherName, it.CipherCfg.ModeName, it.CipherKey, it.CipherCfg.IV)
	if err != nil {
		return nil, err
	}
	s.stream = stream
	return s, nil
}

func (s *writeItemStream) supply(n int) ([]byte, error) {
	if !s.aadFed {
		s.aadFed = true
		if s.ring != nil {
			s.ringMAC.Update(s.aad)
		} else {
			streamcrypto.NewMACWriter(io.Discard, s.mac).Update(s.aad)
		}
	}
	if s.ring != nil {
		return s.supplyBlockMode(n)
	}
	return s.supplyStreamCipher(n)
}

func (s *writeItemStream) supplyStreamCipher(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		if s.ptOffset < len(s.plaintext) {
			want := n - len(out)
			if remain := len(s.plaintext) - s.ptOffset; want > remain {
				want = remain
			}
			chunk := s.plaintext[s.ptOffset : s.ptOffset+want]
			var buf bytes.Buffer
			mw := streamcrypto.NewMACWriter(&buf, s.mac)
			cw := streamcrypto.NewStreamCipherWriter(mw, s.stream)
			if _, err := cw.Write(chunk); err != nil {
				return nil, err
			}
			out = append(out, buf.Bytes()...)
			s.ptOffset += want
			continue
		}
		if s.tag == nil {
			s.tag = s.mac.Sum(nil)
		}
		want := n - len(out)
		if remain := len(s.tag) - s.tagPos; want > remain {
			want = remain
		}
		if want <= 0 {
			return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "item ciphertext exhausted before schedule satisfied")
		}
		out = append(out, s.tag[s.tagPos:s.tagPos+want]...)
		s.tagPos += want
	}
	return out, nil
}

func (s *writeItemStream) supplyBlockMode(n int) ([]byte, error) {
	for s.ring.Len() < n {
		switch {
		case s.ptOffset < len(s.plaintext):
			want := n
			if remain := len(s.plaintext) - s.ptOffset; want > remain {
				want = remain
			}
			chunk := s.plaintext[s.ptOffset : s.ptOffset+want]
			if _, err := s.block.Write(chunk); err != nil {
				return nil, err
			}
			s.ptOffset += want
		case !s.closed:
			s.closed = true
			if err := s.block.Close(); err != nil {
				return nil, err
			}
		case s.tag == nil:
			s.tag = s.mac.Sum(nil)
			if _, err := s.ring.Put(s.tag); err != nil {
				return nil, err
			}
		default:
			return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "item ciphertext exhausted before schedule satisfied")
		}
	}
	out := make([]byte, n)
	if _, err := s.ring.Take(out); err != nil {
		return nil, err
	}
	return out, nil
}

// readItemStream is the read-side mirror: it absorbs whatever slice of an
// item's ciphertext-plus-tag the schedule hands it next, authenticating and
// speculatively decrypting ciphertext bytes as they arrive but never
// exposing anything to the caller until the whole item's tag has verified.
type readItemStream struct {
	internalLen uint64
	seenCipher  uint64
	mac         hash.Hash
	macAuth     *streamcrypto.MACStream
	aad         []byte
	aadFed      bool

	stream    cipher.Stream // stream-cipher path
	plaintext bytes.Buffer

	cipherCfg wire.CipherConfig // Cbc path
	cipherKey []byte
	rawCipher bytes.Buffer

	tagBuf []byte
}

func newReadItemStream(it ReadItem, mac hash.Hash, aad []byte) (*readItemStream, error) {
	s := &readItemStream{internalLen: it.InternalLength, mac: mac, aad: aad}
	s.macAuth = streamcrypto.NewMACWriter(io.Discard, mac)

	if it.CipherCfg.ModeName == "Cbc" {
		s.cipherCfg = it.CipherCfg
		s.cipherKey = it.CipherKey
		return s, nil
	}
	stream, err := registry.NewCipherStream(it.CipherCfg.CipherName, it.CipherCfg.ModeName, it.CipherKey, it.CipherCfg.IV)
	if err != nil {
		return nil, err
	}
	s.stream = stream
	return s, nil
}

func (s *readItemStream) consume(chunk []byte) error {
	if !s.aadFed {
		s.aadFed = true
		s.macAuth.Update(s.aad)
	}
	offset := 0
	for offset < len(chunk) {
		if s.seenCipher < s.internalLen {
			remain := s.internalLen - s.seenCipher
			want := len(chunk) - offset
			if uint64(want) > remain {
				want = int(remain)
			}
			ctChunk := chunk[offset : offset+want]
			if _, err := s.macAuth.Write(ctChunk); err != nil {
				return err
			}
			if s.stream != nil {
				cw := streamcrypto.NewStreamCipherWriter(&s.plaintext, s.stream)
				if _, err := cw.Write(ctChunk); err != nil {
					return err
				}
			} else {
				s.rawCipher.Write(ctChunk)
			}
			s.seenCipher += uint64(want)
			offset += want
			continue
		}
		s.tagBuf = append(s.tagBuf, chunk[offset:]...)
		offset = len(chunk)
	}
	return nil
}

// verifyAndDecrypt finalises the item's authenticator against every byte
// consume has seen and, only once that passes, returns the recovered
// plaintext. CBC items are decrypted here rather than incrementally,
// because ReadAllBlockMode needs the whole ciphertext in hand to strip
// PKCS7 padding — the same whole-body constraint manifestcrypto's own
// CBC read path already lives with.
func (s *readItemStream) verifyAndDecrypt() ([]byte, bool, error) {
	if !s.macAuth.VerifyAndClose(s.tagBuf) {
		return nil, false, nil
	}
	if s.stream != nil {
		return s.plaintext.Bytes(), true, nil
	}
	mode, blockSize, err := registry.NewBlockMode(s.cipherCfg.CipherName, s.cipherKey, s.cipherCfg.IV, false)
	if err != nil {
		return nil, false, err
	}
	cr := streamcrypto.NewBlockCipherReader(bytes.NewReader(s.rawCipher.Bytes()), mode, blockSize)
	plaintext, err := cr.ReadAllBlockMode(int(s.internalLen))
	if err != nil {
		return nil, false, err
	}
	return plaintext, true, nil
}
