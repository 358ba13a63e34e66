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

// Um1WriteParams carries the sender-side key material for a UM1-hybrid
// write: an ephemeral keypair generated fresh for this package, the
// sender's own long-term private key, and the recipient's long-term public
// key.
type Um1WriteParams struct {
	EphemeralPriv *um1.PrivateKey
	SenderPriv    *um1.PrivateKey
	RecipientPub  *um1.PublicKey
}

// WriteOptions configures one manifest-crypto-engine write.
type WriteOptions struct {
	SchemeName      string
	CipherCfg       wire.CipherConfig
	AuthCfg         wire.AuthenticationConfig
	KDFCfg          wire.KeyDerivationConfig
	ConfirmationCfg wire.KeyConfirmationConfig // zero value: no key confirmation
	UseCompression  bool

	// SymmetricPreKey is used when SchemeName is SymmetricOnly.
	SymmetricPreKey []byte

	// Um1 is used when SchemeName is Um1Hybrid.
	Um1 *Um1WriteParams
}

// Write runs the §4.4 write path: the mirror image of Read, encrypt-then-
// MAC, ending with authentication_verified_output filled in before the
// header DTO is serialised.
func Write(w io.Writer, m *wire.Manifest, opts WriteOptions) error {
	preKey, err := resolvePreKeyForWrite(opts)
	if err != nil {
		return err
	}
	defer zero.Bytes(preKey)

	cfg := wire.ManifestCryptoConfig{
		SymmetricCipherCfg: opts.CipherCfg,
		AuthenticationCfg:  opts.AuthCfg,
		KeyDerivationCfg:   opts.KDFCfg,
		KeyConfirmationCfg: opts.ConfirmationCfg,
	}
	if opts.SchemeName == manifest.SchemeUm1Hybrid {
		cfg.EphemeralECPublicKey = opts.Um1.EphemeralPriv.Public().Bytes()
		cfg.EphemeralECCurveName = "Ristretto255"
	}

	if opts.ConfirmationCfg.Present() {
		fn, err := keyderive.NewConfirmationFunc(opts.ConfirmationCfg.ConfirmationName)
		if err != nil {
			return err
		}
		out, err := fn(preKey)
		if err != nil {
			return err
		}
		cfg.KeyConfirmationVerifiedOutput = out
	}

	wk, err := deriveWorkingKeys(preKey, cfg)
	if err != nil {
		return err
	}
	defer wk.Close()

	plaintext, err := wire.Encode(m)
	if err != nil {
		return err
	}
	if opts.UseCompression {
		plaintext, err = compressLZ4(plaintext)
		if err != nil {
			return err
		}
	}

	ciphertext, err := encryptManifestBody(plaintext, wk.Cipher, opts.CipherCfg)
	if err != nil {
		return err
	}

	var manifestLen [4]byte
	zero.PutUint32LE(manifestLen[:], uint32(len(ciphertext)))
	var obf [4]byte
	zero.XOR(obf[:], manifestLen[:], wk.MAC[:4])

	mac, err := registry.NewMAC(opts.AuthCfg.MACName, wk.MAC)
	if err != nil {
		return err
	}
	// The authenticatible clone's AuthenticationVerifiedOutput field must be
	// the same length on both sides of the wire: pre-fill it with a
	// zero-valued placeholder of the tag's final size before computing the
	// canonical AAD bytes, mirroring the length the reader will see once it
	// has decoded the real tag and zeroed it via Canonical.
	cfg.AuthenticationVerifiedOutput = make([]byte, mac.Size())

	macBuf := &bytes.Buffer{}
	macWriter := streamcrypto.NewMACWriter(macBuf, mac)
	if _, err := macWriter.Write(ciphertext); err != nil {
		return err
	}
	macWriter.Update(obf[:])
	canonicalBytes, err := wire.Encode(cfg.Canonical())
	if err != nil {
		return err
	}
	macWriter.Update(canonicalBytes)
	cfg.AuthenticationVerifiedOutput = macWriter.Finalize()

	schemeConfigBytes, err := wire.Encode(cfg)
	if err != nil {
		return err
	}
	header := wire.ManifestHeaderDTO{
		FormatVersion:  manifest.CurrentFormatVersion,
		SchemeName:     opts.SchemeName,
		UseCompression: opts.UseCompression,
		SchemeConfig:   schemeConfigBytes,
	}
	headerBytes, err := wire.Encode(header)
	if err != nil {
		return err
	}

	if _, err := w.Write(manifest.HeaderTag); err != nil {
		return obscurerr.NewIoError("write", err)
	}
	if err := manifest.WriteVarint(w, uint64(len(headerBytes))); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return obscurerr.NewIoError("write", err)
	}
	if _, err := w.Write(obf[:]); err != nil {
		return obscurerr.NewIoError("write", err)
	}
	if _, err := w.Write(ciphertext); err != nil {
		return obscurerr.NewIoError("write", err)
	}
	return nil
}

func resolvePreKeyForWrite(opts WriteOptions) ([]byte, error) {
	switch opts.SchemeName {
	case manifest.SchemeSymmetricOnly:
		if len(opts.SymmetricPreKey) == 0 {
			return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "symmetric pre-key required")
		}
		out := make([]byte, len(opts.SymmetricPreKey))
		copy(out, opts.SymmetricPreKey)
		return out, nil
	case manifest.SchemeUm1Hybrid:
		if opts.Um1 == nil {
			return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "um1 parameters required")
		}
		secret := um1.Initiate(opts.Um1.EphemeralPriv, opts.Um1.SenderPriv, opts.Um1.RecipientPub)
		out := make([]byte, len(secret))
		copy(out, secret[:])
		return out, nil
	default:
		return nil, obscurerr.Wrap(obscurerr.ErrUnknownScheme, opts.SchemeName)
	}
}

func encryptManifestBody(plaintext []byte, cipherKey []byte, cipherCfg wire.CipherConfig) ([]byte, error) {
	buf := &bytes.Buffer{}
	if cipherCfg.ModeName == "Cbc" {
		mode, blockSize, err := registry.NewBlockMode(cipherCfg.CipherName, cipherKey, cipherCfg.IV, true)
		if err != nil {
			return nil, err
		}
		cs := streamcrypto.NewBlockCipherWriter(buf, mode, blockSize)
		if _, err := cs.Write(plaintext); err != nil {
			return nil, err
		}
		if err := cs.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	stream, err := registry.NewCipherStream(cipherCfg.CipherName, cipherCfg.ModeName, cipherKey, cipherCfg.IV)
	if err != nil {
		return nil, err
	}
	cs := streamcrypto.NewStreamCipherWriter(buf, stream)
	if _, err := cs.Write(plaintext); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compressLZ4(plaintext []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := lz4.NewWriter(buf)
	if _, err := zw.Write(plaintext); err != nil {
		return nil, obscurerr.Wrap(obscurerr.ErrMalformedStructure, "lz4 compress: "+err.Error())
	}
	if err := zw.Close(); err != nil {
		return nil, obscurerr.Wrap(obscurerr.ErrMalformedStructure, "lz4 compress: "+err.Error())
	}
	return buf.Bytes(), nil
}
