package registry

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/Picocrypt/serpent"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20/salsa"
	"golang.org/x/crypto/sha3"

	obscurerr "obscurcore/internal/errors"
)

// NewCipherStream instantiates a cipher.Stream for one of the registry's
// Backed stream-cipher or CTR-mode block-cipher entries, keyed by key and
// initialised with iv. Unbacked registry entries return CryptoInternal,
// consistent with §6's "the core consumes these by name and parameter; it
// does not implement them" for entries with no concrete adapter.
func NewCipherStream(cipherName, modeName string, key, iv []byte) (cipher.Stream, error) {
	if modeName == "Cbc" {
		return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "Cbc is a block mode, not a cipher.Stream — use NewBlockMode")
	}
	if modeName == "Cfb" || modeName == "Ofb" {
		return nil, obscurerr.NewCryptoError("cipher-stream", obscurerr.Wrap(obscurerr.ErrCryptoInternal, "no concrete adapter for mode "+modeName))
	}
	switch cipherName {
	case "ChaCha":
		return chacha20.NewUnauthenticatedCipher(key, iv)
	case "XSalsa20":
		return newXSalsa20(key, iv)
	case "Salsa20":
		return newSalsa20Stream(key, iv)
	case "Aes":
		return newBlockCTR(func(k []byte) (cipher.Block, error) { return aes.NewCipher(k) }, key, iv)
	case "Serpent":
		return newBlockCTR(func(k []byte) (cipher.Block, error) { return serpent.NewCipher(k) }, key, iv)
	default:
		return nil, obscurerr.NewCryptoError("cipher-stream", obscurerr.Wrap(obscurerr.ErrCryptoInternal, "no concrete adapter for "+cipherName))
	}
}

func newBlockCTR(newBlock func([]byte) (cipher.Block, error), key, iv []byte) (cipher.Stream, error) {
	b, err := newBlock(key)
	if err != nil {
		return nil, obscurerr.NewCryptoError("block-cipher", err)
	}
	if len(iv) != b.BlockSize() {
		return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "iv size does not match block size")
	}
	return cipher.NewCTR(b, iv), nil
}

// NewBlockMode instantiates a cipher.BlockMode (CBC) for a registry block
// cipher. encrypt selects encrypter vs decrypter.
func NewBlockMode(cipherName string, key, iv []byte, encrypt bool) (cipher.BlockMode, int, error) {
	var block cipher.Block
	var err error
	switch cipherName {
	case "Aes":
		block, err = aes.NewCipher(key)
	case "Serpent":
		block, err = serpent.NewCipher(key)
	default:
		return nil, 0, obscurerr.NewCryptoError("block-mode", obscurerr.Wrap(obscurerr.ErrCryptoInternal, "no concrete block-mode adapter for "+cipherName))
	}
	if err != nil {
		return nil, 0, obscurerr.NewCryptoError("block-cipher", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, 0, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "iv size does not match block size")
	}
	if encrypt {
		return cipher.NewCBCEncrypter(block, iv), block.BlockSize(), nil
	}
	return cipher.NewCBCDecrypter(block, iv), block.BlockSize(), nil
}

func newSalsa20Stream(key, iv []byte) (cipher.Stream, error) {
	if len(key) != 32 || len(iv) != 8 {
		return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "salsa20 key/iv size")
	}
	return &salsaCipher{key: [32]byte(key), nonce: [8]byte(iv)}, nil
}

func newXSalsa20(key, iv []byte) (cipher.Stream, error) {
	if len(key) != 32 || len(iv) != 24 {
		return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "xsalsa20 key/iv size")
	}
	var subKey [32]byte
	var hNonce [16]byte
	copy(hNonce[:], iv[:16])
	salsa.HSalsa20(&subKey, &hNonce, (*[32]byte)(key), &salsa.Sigma)
	var subNonce [8]byte
	copy(subNonce[:], iv[16:24])
	return &salsaCipher{key: subKey, nonce: subNonce}, nil
}

// salsaCipher adapts golang.org/x/crypto/salsa20/salsa's block function to
// a streaming cipher.Stream with internal keystream buffering, the same
// block-at-a-time approach internal/csprng uses to turn Salsa20 into a
// seedable generator.
type salsaCipher struct {
	key     [32]byte
	nonce   [8]byte
	counter uint64
	buf     [64]byte
	pos     int
}

func (s *salsaCipher) XORKeyStream(dst, src []byte) {
	for i := 0; i < len(src); i++ {
		if s.pos == 64 {
			var fullNonce [16]byte
			copy(fullNonce[:8], s.nonce[:])
			putUint64LE(fullNonce[8:], s.counter)
			salsa.XORKeyStream(s.buf[:], zeroes[:], &fullNonce, &s.key)
			s.counter++
			s.pos = 0
		}
		dst[i] = src[i] ^ s.buf[s.pos]
		s.pos++
	}
}

var zeroes [64]byte

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// NewMAC instantiates a keyed hash.Hash for one of the registry's Backed
// MAC entries.
func NewMAC(name string, key []byte) (hash.Hash, error) {
	switch name {
	case "Hmac-Sha256":
		return hmac.New(sha256.New, key), nil
	case "Hmac-Sha512":
		return hmac.New(sha512.New, key), nil
	case "Blake2B-256":
		h, err := blake2b.New256(key)
		if err != nil {
			return nil, obscurerr.NewCryptoError("mac", err)
		}
		return h, nil
	case "Blake2B-512":
		h, err := blake2b.New512(key)
		if err != nil {
			return nil, obscurerr.NewCryptoError("mac", err)
		}
		return h, nil
	case "Keccak-256":
		return hmac.New(sha3.NewLegacyKeccak256, key), nil
	default:
		return nil, obscurerr.NewCryptoError("mac", obscurerr.Wrap(obscurerr.ErrCryptoInternal, "no concrete MAC adapter for "+name))
	}
}
