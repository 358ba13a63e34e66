package streamcrypto

import (
	"crypto/cipher"
	"io"

	"obscurcore/internal/encoding"
	"obscurcore/internal/ringbuf"

	obscurerr "obscurcore/internal/errors"
)

// CipherStream wraps an inner io.Reader or io.Writer with an initialised
// stream cipher or block-mode cipher. Writes encrypt caller bytes into
// inner; reads decrypt inner bytes into the caller buffer. Stream ciphers
// are exact byte-for-byte; block ciphers in CBC require buffering a
// partial block and finalising PKCS7 padding on Close.
type CipherStream struct {
	*ringbuf.Base
	inner     io.Reader
	out       io.Writer
	stream    cipher.Stream // set for stream ciphers and CTR/CFB/OFB modes
	block     cipher.BlockMode
	blockSize int // 0 for pure stream ciphers
	pending   []byte
	closed    bool
}

// NewStreamCipherReader wraps inner for reading through a cipher.Stream
// (a stream cipher, or a block cipher in CTR/CFB/OFB mode — all of which
// Go's crypto/cipher exposes as cipher.Stream).
func NewStreamCipherReader(inner io.Reader, stream cipher.Stream) *CipherStream {
	return &CipherStream{
		Base:   ringbuf.NewBase(ringbuf.ReadDirection, 0, 0),
		inner:  inner,
		stream: stream,
	}
}

// NewStreamCipherWriter wraps out for writing through a cipher.Stream.
func NewStreamCipherWriter(out io.Writer, stream cipher.Stream) *CipherStream {
	return &CipherStream{
		Base:   ringbuf.NewBase(ringbuf.WriteDirection, 0, 0),
		out:    out,
		stream: stream,
	}
}

// NewBlockCipherReader wraps inner for reading through a padded block mode
// (CBC). blockSize is the cipher's block size, used to buffer and strip
// the trailing PKCS7 padding once inner is exhausted.
func NewBlockCipherReader(inner io.Reader, mode cipher.BlockMode, blockSize int) *CipherStream {
	return &CipherStream{
		Base:      ringbuf.NewBase(ringbuf.ReadDirection, blockSize, 0),
		inner:     inner,
		block:     mode,
		blockSize: blockSize,
	}
}

// NewBlockCipherWriter wraps out for writing through a padded block mode.
func NewBlockCipherWriter(out io.Writer, mode cipher.BlockMode, blockSize int) *CipherStream {
	return &CipherStream{
		Base:      ringbuf.NewBase(ringbuf.WriteDirection, blockSize, 0),
		out:       out,
		block:     mode,
		blockSize: blockSize,
		pending:   make([]byte, 0, blockSize),
	}
}

// Read implements io.Reader. For stream ciphers it decrypts byte-for-byte;
// block-mode reading is only supported via ReadAllBlockMode (CBC requires knowing
// where the stream ends before padding can be stripped).
func (c *CipherStream) Read(p []byte) (int, error) {
	if err := c.CheckDirection(ringbuf.ReadDirection); err != nil {
		return 0, err
	}
	if c.stream != nil {
		n, err := c.inner.Read(p)
		if n > 0 {
			c.stream.XORKeyStream(p[:n], p[:n])
			c.AddOut(n)
		}
		return n, err
	}
	return 0, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "block-mode CipherStream requires ReadAllBlockMode")
}

// ReadAllBlockMode decrypts the entirety of the remaining inner stream
// (exactly ciphertextLen bytes, a multiple of blockSize) and strips PKCS7
// padding, returning the plaintext.
func (c *CipherStream) ReadAllBlockMode(ciphertextLen int) ([]byte, error) {
	if c.block == nil {
		return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "ReadAllBlockMode requires a block-mode CipherStream")
	}
	if ciphertextLen%c.blockSize != 0 {
		return nil, obscurerr.Wrap(obscurerr.ErrMalformedStructure, "ciphertext length not a multiple of block size")
	}
	ciphertext := make([]byte, ciphertextLen)
	if _, err := io.ReadFull(c.inner, ciphertext); err != nil {
		return nil, obscurerr.NewIoError("read", err)
	}
	c.AddOut(ciphertextLen)
	plaintext := make([]byte, ciphertextLen)
	c.block.CryptBlocks(plaintext, ciphertext)
	return encoding.Unpad(plaintext, c.blockSize), nil
}

// Write implements io.Writer. For stream ciphers it encrypts byte-for-byte
// and forwards immediately. For block modes it buffers a partial final
// block internally and only emits whole blocks; call Close to flush the
// final padded block.
func (c *CipherStream) Write(p []byte) (int, error) {
	if err := c.CheckDirection(ringbuf.WriteDirection); err != nil {
		return 0, err
	}
	if c.stream != nil {
		buf := make([]byte, len(p))
		c.stream.XORKeyStream(buf, p)
		n, err := c.out.Write(buf)
		if n > 0 {
			c.AddIn(n)
		}
		return n, err
	}

	c.pending = append(c.pending, p...)
	for len(c.pending) >= c.blockSize {
		block := c.pending[:c.blockSize]
		out := make([]byte, c.blockSize)
		c.block.CryptBlocks(out, block)
		if _, err := c.out.Write(out); err != nil {
			return 0, obscurerr.NewIoError("write", err)
		}
		c.pending = c.pending[c.blockSize:]
	}
	return len(p), nil
}

// Close finalises a block-mode writer: pads the trailing partial block
// with PKCS7 and encrypts it. It is a no-op for stream ciphers.
func (c *CipherStream) Close() error {
	if c.closed || c.block == nil || c.out == nil {
		c.closed = true
		return nil
	}
	c.closed = true
	padded := encoding.Pad(c.pending, c.blockSize)
	out := make([]byte, len(padded))
	c.block.CryptBlocks(out, padded)
	if _, err := c.out.Write(out); err != nil {
		return obscurerr.NewIoError("write", err)
	}
	c.AddIn(len(padded))
	return nil
}
