// Package manifestcrypto implements the manifest crypto engine of §4.4: the
// state machine that reads and writes the package header, chooses a
// pre-key (symmetric or UM1), derives working keys, and encrypts-then-MACs
// (or decrypts-then-verifies) the manifest with length-prefix obfuscation
// and associated-data binding.
//
// Grounded on the teacher's phase-function pipeline shape (each numbered
// step in §4.4 is one marked phase of Read, with helpers for key
// resolution, key derivation, decryption and decompression), and on its
// pattern of zeroising key material on every exit path via defer.
package manifestcrypto

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"

	obscurerr "obscurcore/internal/errors"
	"obscurcore/internal/keyderive"
	"obscurcore/internal/manifest"
	"obscurcore/internal/registry"
	"obscurcore/internal/streamcrypto"
	"obscurcore/internal/um1"
	"obscurcore/internal/wire"
	"obscurcore/internal/zero"
)

// KeyProvider enumerates a reader's candidate key material, per §6's "Key
// provider interface (consumed by reader)".
type KeyProvider interface {
	// SymmetricCandidates returns candidate symmetric pre-keys, in no
	// particular order.
	SymmetricCandidates() [][]byte

	// LocalKeypairs returns the reader's own long-term EC keypairs,
	// tried as UM1 recipients.
	LocalKeypairs() []*um1.PrivateKey

	// ForeignPublicKeys returns candidate senders' long-term EC public
	// keys, tried as UM1 senders.
	ForeignPublicKeys() []*um1.PublicKey
}

// ReadResult carries the deserialised manifest and the absolute stream
// offset immediately following the ciphertext manifest, i.e.
// payload_offset_absolute before any payload_offset padding is skipped.
type ReadResult struct {
	Manifest             *wire.Manifest
	PayloadOffsetAbsolute int64
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Read runs the §4.4 read path against r, starting at the header tag.
func Read(r io.Reader, kp KeyProvider) (*ReadResult, error) {
	cr := &countingReader{r: r}

	// Step 1: header tag.
	if err := manifest.ReadTag(cr, manifest.HeaderTag, "header_tag"); err != nil {
		return nil, err
	}

	// Step 2: ManifestHeaderDTO, self-delimited by its own varint length.
	headerLen, err := manifest.ReadVarint(byteReader{cr})
	if err != nil {
		return nil, err
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(cr, headerBytes); err != nil {
		return nil, obscurerr.NewStructureError("header_dto", obscurerr.ErrTruncatedInput)
	}
	var header wire.ManifestHeaderDTO
	if err := wire.Decode(headerBytes, &header); err != nil {
		return nil, err
	}
	if err := manifest.ValidateFormatVersion(header.FormatVersion); err != nil {
		return nil, err
	}
	if err := manifest.ValidateSchemeName(header.SchemeName); err != nil {
		return nil, err
	}

	// Step 3: scheme-specific manifest-crypto-config.
	var cfg wire.ManifestCryptoConfig
	if err := wire.Decode(header.SchemeConfig, &cfg); err != nil {
		return nil, err
	}

	// Step 4: determine the pre-key.
	preKey, err := resolvePreKeyForRead(header.SchemeName, cfg, kp)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(preKey)

	// Step 5: derive working keys, zeroise pre-key on every exit.
	wk, err := deriveWorkingKeys(preKey, cfg)
	if err != nil {
		return nil, err
	}
	defer wk.Close()

	// Step 6: obfuscated length prefix.
	var obf [4]byte
	if _, err := io.ReadFull(cr, obf[:]); err != nil {
		return nil, obscurerr.NewStructureError("manifest_length_prefix", obscurerr.ErrTruncatedInput)
	}
	var manifestLen [4]byte
	zero.XOR(manifestLen[:], obf[:], wk.MAC[:4])
	length := zero.Uint32LE(manifestLen[:])

	// Step 7: authenticator + decryptor over the ciphertext manifest.
	mac, err := registry.NewMAC(cfg.AuthenticationCfg.MACName, wk.MAC)
	if err != nil {
		return nil, err
	}
	macReader := streamcrypto.NewMACReader(cr, mac)
	plaintext, err := decryptManifestBody(macReader, wk.Cipher, cfg.SymmetricCipherCfg, int(length))
	if err != nil {
		return nil, err
	}

	// Step 8: additional authenticated data.
	macReader.Update(obf[:])
	canonicalBytes, err := wire.Encode(cfg.Canonical())
	if err != nil {
		return nil, err
	}
	macReader.Update(canonicalBytes)

	// Step 9: finalise and verify.
	if !macReader.VerifyAndClose(cfg.AuthenticationVerifiedOutput) {
		return nil, obscurerr.Wrap(obscurerr.ErrCiphertextAuthenticationFailed, "manifest")
	}

	// Step 10: optional decompression, then manifest deserialisation.
	if header.UseCompression {
		decompressed, err := decompressLZ4(plaintext)
		if err != nil {
			return nil, err
		}
		plaintext = decompressed
	}
	var m wire.Manifest
	if err := wire.Decode(plaintext, &m); err != nil {
		return nil, obscurerr.Wrap(obscurerr.ErrMalformedStructure, "manifest")
	}

	// Step 11: record payload_offset_absolute.
	return &ReadResult{Manifest: &m, PayloadOffsetAbsolute: cr.n}, nil
}

type byteReader struct{ io.Reader }

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.Reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func decryptManifestBody(macReader *streamcrypto.MACStream, cipherKey []byte, cipherCfg wire.CipherConfig, length int) ([]byte, error) {
	if cipherCfg.ModeName == "Cbc" {
		mode, blockSize, err := registry.NewBlockMode(cipherCfg.CipherName, cipherKey, cipherCfg.IV, false)
		if err != nil {
			return nil, err
		}
		cs := streamcrypto.NewBlockCipherReader(macReader, mode, blockSize)
		return cs.ReadAllBlockMode(length)
	}
	stream, err := registry.NewCipherStream(cipherCfg.CipherName, cipherCfg.ModeName, cipherKey, cipherCfg.IV)
	if err != nil {
		return nil, err
	}
	cs := streamcrypto.NewStreamCipherReader(macReader, stream)
	plaintext := make([]byte, length)
	if _, err := io.ReadFull(cs, plaintext); err != nil {
		return nil, obscurerr.NewIoError("read", err)
	}
	return plaintext, nil
}

func decompressLZ4(compressed []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, obscurerr.Wrap(obscurerr.ErrMalformedStructure, "lz4 decompress: "+err.Error())
	}
	return out, nil
}

func resolvePreKeyForRead(schemeName string, cfg wire.ManifestCryptoConfig, kp KeyProvider) ([]byte, error) {
	switch schemeName {
	case manifest.SchemeSymmetricOnly:
		if cfg.KeyConfirmationCfg.Present() {
			fn, err := keyderive.NewConfirmationFunc(cfg.KeyConfirmationCfg.ConfirmationName)
			if err != nil {
				return nil, err
			}
			candidates := kp.SymmetricCandidates()
			idx, err := keyderive.Confirm(candidates, cfg.KeyConfirmationVerifiedOutput, fn)
			if err != nil {
				return nil, err
			}
			if idx < 0 {
				return nil, obscurerr.Wrap(obscurerr.ErrKeyNotFound, "manifest key confirmation")
			}
			out := make([]byte, len(candidates[idx]))
			copy(out, candidates[idx])
			return out, nil
		}
		candidates := kp.SymmetricCandidates()
		if len(candidates) != 1 {
			return nil, obscurerr.Wrap(obscurerr.ErrKeyNotFound, "manifest requires exactly one candidate symmetric key")
		}
		out := make([]byte, len(candidates[0]))
		copy(out, candidates[0])
		return out, nil

	case manifest.SchemeUm1Hybrid:
		ephemeralPub, err := um1.DecodePublicKey(cfg.EphemeralECPublicKey)
		if err != nil {
			return nil, err
		}
		locals := kp.LocalKeypairs()
		foreigns := kp.ForeignPublicKeys()
		if cfg.KeyConfirmationCfg.Present() {
			type pair struct {
				local   *um1.PrivateKey
				foreign *um1.PublicKey
			}
			var pairs []pair
			for _, l := range locals {
				for _, f := range foreigns {
					pairs = append(pairs, pair{local: l, foreign: f})
				}
			}
			candidates := make([][]byte, len(pairs))
			for i, p := range pairs {
				candidates[i] = um1.Candidate{SenderPub: p.foreign, RecipientPriv: p.local}.PreKey(ephemeralPub)
			}
			fn, err := keyderive.NewConfirmationFunc(cfg.KeyConfirmationCfg.ConfirmationName)
			if err != nil {
				return nil, err
			}
			idx, err := keyderive.Confirm(candidates, cfg.KeyConfirmationVerifiedOutput, fn)
			if err != nil {
				return nil, err
			}
			if idx < 0 {
				return nil, obscurerr.Wrap(obscurerr.ErrKeyNotFound, "manifest UM1 key confirmation")
			}
			winner := candidates[idx]
			for i, c := range candidates {
				if i != idx {
					zero.Bytes(c)
				}
			}
			return winner, nil
		}
		if len(locals) != 1 || len(foreigns) != 1 {
			return nil, obscurerr.Wrap(obscurerr.ErrKeyNotFound, "UM1 requires exactly one local keypair and one foreign public key")
		}
		return um1.Candidate{SenderPub: foreigns[0], RecipientPriv: locals[0]}.PreKey(ephemeralPub), nil

	default:
		return nil, obscurerr.Wrap(obscurerr.ErrUnknownScheme, schemeName)
	}
}

func deriveWorkingKeys(preKey []byte, cfg wire.ManifestCryptoConfig) (*keyderive.WorkingKeys, error) {
	cipherKeyLen := int(cfg.SymmetricCipherCfg.KeySizeBits / 8)
	macKeyLen := int(cfg.AuthenticationCfg.KeySizeBits / 8)
	kdf := cfg.KeyDerivationCfg
	switch kdf.KDFName {
	case "Scrypt":
		params := keyderive.ScryptParams{N: int(kdf.ScryptN), R: int(kdf.ScryptR), P: int(kdf.ScryptP)}
		return keyderive.DeriveScrypt(preKey, kdf.Salt, cipherKeyLen, macKeyLen, params)
	case "Pbkdf2":
		params := keyderive.PBKDF2Params{Iterations: int(kdf.Pbkdf2Iters), HashSize: int(kdf.Pbkdf2HashSize)}
		return keyderive.DerivePBKDF2(preKey, kdf.Salt, cipherKeyLen, macKeyLen, params)
	default:
		return nil, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "kdf "+kdf.KDFName)
	}
}
