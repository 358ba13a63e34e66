// Package wire defines the schema-tagged DTOs carried on the package wire
// format and their RLP encoding, grounded on go-ethereum's rlp package —
// the external serialiser collaborator named but not specified by §6
// ("the wire form is a varint-tag-prefixed record encoding; the specific
// encoding is provided by the external serialiser collaborator"). Field
// order in each struct IS the wire order and is part of the compatibility
// surface, per §6's "field orders and default values are part of the
// compatibility surface."
package wire

import (
	"github.com/ethereum/go-ethereum/rlp"

	obscurerr "obscurcore/internal/errors"
)

// CipherConfig names a symmetric cipher, its mode/padding (block ciphers
// only), and the IV/nonce to use.
type CipherConfig struct {
	CipherName  string
	ModeName    string // empty for stream ciphers
	PaddingName string // empty unless ModeName is padded (e.g. Cbc)
	KeySizeBits uint32
	IV          []byte
}

// AuthenticationConfig names the MAC function protecting a manifest or
// payload item.
type AuthenticationConfig struct {
	MACName     string
	KeySizeBits uint32
}

// KeyDerivationConfig names the KDF and carries its exact numeric
// parameters, which must be respected verbatim for decoding per §4.3.
type KeyDerivationConfig struct {
	KDFName        string // "Scrypt" or "Pbkdf2"
	Salt           []byte
	CipherKeyBytes uint32
	MacKeyBytes    uint32
	ScryptN        uint32
	ScryptR        uint32
	ScryptP        uint32
	Pbkdf2Iters    uint32
	Pbkdf2HashSize uint32
}

// Present reports whether a KeyDerivationConfig is populated (vs. the
// zero value standing in for "absent" on the wire).
func (c KeyDerivationConfig) Present() bool { return c.KDFName != "" }

// KeyConfirmationConfig names the keyed confirmation function. The target
// output a candidate key must reproduce travels in the enclosing DTO's
// KeyConfirmationVerifiedOutput field.
type KeyConfirmationConfig struct {
	ConfirmationName string // "Blake2B-256" or "Hmac-Sha256"
}

// Present reports whether a KeyConfirmationConfig is populated.
func (c KeyConfirmationConfig) Present() bool { return c.ConfirmationName != "" }

// ManifestCryptoConfig is the scheme-specific manifest-crypto-config DTO.
// EphemeralECPublicKey is empty for the symmetric-only scheme and
// populated for Um1Hybrid, per §3.
type ManifestCryptoConfig struct {
	SymmetricCipherCfg             CipherConfig
	AuthenticationCfg              AuthenticationConfig
	KeyDerivationCfg               KeyDerivationConfig
	KeyConfirmationCfg             KeyConfirmationConfig
	KeyConfirmationVerifiedOutput  []byte
	AuthenticationVerifiedOutput   []byte
	EphemeralECPublicKey           []byte // Um1Hybrid only
	EphemeralECCurveName           string // Um1Hybrid only
}

// Canonical returns a copy of c with AuthenticationVerifiedOutput zeroed,
// the "authenticatible clone" used as additional authenticated data per
// §4.4 step 8 — the open canonicalisation question is resolved here by
// zeroing the field rather than omitting it. The zeroed copy keeps the
// field's length, so a writer that pre-sizes the field to the MAC output
// size and a reader holding the real tag encode the same bytes.
func (c ManifestCryptoConfig) Canonical() ManifestCryptoConfig {
	clone := c
	clone.AuthenticationVerifiedOutput = make([]byte, len(c.AuthenticationVerifiedOutput))
	return clone
}

// ManifestHeaderDTO is the DTO immediately following the 10-byte package
// header tag, length-prefixed by a Base128 varint on the wire.
type ManifestHeaderDTO struct {
	FormatVersion   uint32
	SchemeName      string // "SymmetricOnly" or "Um1Hybrid"
	UseCompression  bool
	SchemeConfig    []byte // encoded ManifestCryptoConfig
}

// PayloadConfiguration describes the multiplexer layout scheme and its
// seeded CSPRNGs.
type PayloadConfiguration struct {
	SchemeName           string // "Simple", "Frameshift", "Fabric"
	PrimaryPRNGName      string
	PrimaryPRNGConfig    []byte // seed material
	SecondaryPRNGName    string // empty unless Frameshift/Fabric
	SecondaryPRNGConfig  []byte
	PayloadOffset        uint64
	SchemeSpecificConfig []byte // encoded FrameshiftConfig for Frameshift/Fabric
}

// FrameshiftConfig carries the chunk-size and padding-shift ranges shared
// by the Frameshift and Fabric layout schemes.
type FrameshiftConfig struct {
	ChunkMin uint32
	ChunkMax uint32
	ShiftMin uint32
	ShiftMax uint32
}

// PayloadItem describes one multiplexed item.
type PayloadItem struct {
	Identifier                    []byte // 16-byte UUID
	Type                          string // "Message", "File", "KeyAction"
	Path                          string
	ExternalLength                uint64
	InternalLength                uint64
	SymmetricCipherCfg            CipherConfig
	AuthenticationCfg             AuthenticationConfig
	SymmetricCipherKey            []byte // empty if key-derived at read
	AuthenticationKey             []byte // empty if key-derived at read
	KeyDerivationCfg              KeyDerivationConfig
	KeyConfirmationCfg            KeyConfirmationConfig
	KeyConfirmationVerifiedOutput []byte
}

// Manifest is the plaintext structure encrypted-then-MACed into the
// package's ciphertext manifest region.
type Manifest struct {
	PayloadConfiguration PayloadConfiguration
	PayloadItems         []PayloadItem
}

// Encode serialises v using RLP, matching the struct field order as the
// wire order.
func Encode(v interface{}) ([]byte, error) {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, obscurerr.Wrap(obscurerr.ErrMalformedStructure, "rlp encode: "+err.Error())
	}
	return b, nil
}

// Decode deserialises b into v using RLP.
func Decode(b []byte, v interface{}) error {
	if err := rlp.DecodeBytes(b, v); err != nil {
		return obscurerr.NewStructureError("rlp-dto", obscurerr.ErrMalformedStructure)
	}
	return nil
}
