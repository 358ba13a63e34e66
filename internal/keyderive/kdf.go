package keyderive

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	obscurerr "obscurcore/internal/errors"
)

func pbkdf2HashFunc(hashSize int) (func() hash.Hash, error) {
	switch hashSize {
	case 32:
		return sha256.New, nil
	case 64:
		return sha512.New, nil
	default:
		return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "pbkdf2 hash size")
	}
}

// ScryptParams carries the exact numeric parameters an implementation must
// respect for decoding, per §4.3: "implementations must respect the exact
// numeric parameters in the DTO."
type ScryptParams struct {
	N, R, P int
}

// DefaultScryptForPassphrase are scrypt parameters appropriate for a
// low-entropy passphrase pre-key.
var DefaultScryptForPassphrase = ScryptParams{N: 1 << 17, R: 8, P: 1}

// DefaultScryptForKey are scrypt parameters appropriate for a high-entropy
// pre-key (already 256 bits of entropy, so weaker stretching suffices).
var DefaultScryptForKey = ScryptParams{N: 1 << 14, R: 8, P: 1}

// PBKDF2Params carries the PBKDF2 iteration count and hash choice.
type PBKDF2Params struct {
	Iterations int
	HashSize   int // selects SHA-256 (32) or SHA-512 (64) internally
}

// DefaultPBKDF2 is a conservative PBKDF2-HMAC-SHA256 parameter set.
var DefaultPBKDF2 = PBKDF2Params{Iterations: 600000, HashSize: 32}

// WorkingKeys holds a derived (cipher key, MAC key) pair. Callers must
// call Close to zeroise both once the keys are no longer needed.
type WorkingKeys struct {
	Cipher []byte
	MAC    []byte
}

// Close zeroises the cipher and MAC key material.
func (w *WorkingKeys) Close() {
	if w == nil {
		return
	}
	zeroBytes(w.Cipher)
	zeroBytes(w.MAC)
	w.Cipher = nil
	w.MAC = nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// DeriveScrypt stretches preKey into a (cipherKeyLen + macKeyLen)-byte
// block via scrypt with salt and params, then splits it deterministically:
// the first cipherKeyLen bytes become the cipher key, the remainder the
// MAC key.
func DeriveScrypt(preKey, salt []byte, cipherKeyLen, macKeyLen int, params ScryptParams) (*WorkingKeys, error) {
	total := cipherKeyLen + macKeyLen
	block, err := scrypt.Key(preKey, salt, params.N, params.R, params.P, total)
	if err != nil {
		return nil, obscurerr.NewCryptoError("scrypt", err)
	}
	return split(block, cipherKeyLen, macKeyLen), nil
}

// DerivePBKDF2 stretches preKey the same way DeriveScrypt does, using
// PBKDF2-HMAC-SHA256 or PBKDF2-HMAC-SHA512 depending on params.HashSize.
func DerivePBKDF2(preKey, salt []byte, cipherKeyLen, macKeyLen int, params PBKDF2Params) (*WorkingKeys, error) {
	total := cipherKeyLen + macKeyLen
	hashFn, err := pbkdf2HashFunc(params.HashSize)
	if err != nil {
		return nil, err
	}
	block := pbkdf2.Key(preKey, salt, params.Iterations, total, hashFn)
	return split(block, cipherKeyLen, macKeyLen), nil
}

func split(block []byte, cipherKeyLen, macKeyLen int) *WorkingKeys {
	wk := &WorkingKeys{
		Cipher: make([]byte, cipherKeyLen),
		MAC:    make([]byte, macKeyLen),
	}
	copy(wk.Cipher, block[:cipherKeyLen])
	copy(wk.MAC, block[cipherKeyLen:cipherKeyLen+macKeyLen])
	zeroBytes(block)
	return wk
}
