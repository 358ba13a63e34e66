// Package um1 implements the one-pass hybrid elliptic-curve key agreement
// the UM1 manifest crypto scheme uses: the sender combines an ephemeral
// keypair with the recipient's long-term public key; the recipient
// combines its own long-term private key with the sender's long-term
// public key and the sender's ephemeral public key. Both sides land on the
// same shared secret without a second round trip.
//
// Grounded on the two-term ECDH combiner shape used for OPAQUE-style key
// exchange in the retrieved pack (sha3-hashed concatenation of scalar-mult
// results), generalised to ristretto255 keys and UM1's one-pass shape.
package um1

import (
	ristretto "github.com/gtank/ristretto255"
	"golang.org/x/crypto/sha3"

	obscurerr "obscurcore/internal/errors"
)

// PrivateKey is a long-term or ephemeral Ristretto255 scalar.
type PrivateKey struct {
	scalar *ristretto.Scalar
}

// PublicKey is a Ristretto255 group element.
type PublicKey struct {
	element *ristretto.Element
}

// NewPrivateKey wraps 64 bytes of uniform randomness into a scalar, the
// same FromUniformBytes construction the pack's ristretto255 usage relies
// on for unbiased scalar sampling.
func NewPrivateKey(uniform []byte) (*PrivateKey, error) {
	if len(uniform) != 64 {
		return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "um1 private key seed must be 64 bytes")
	}
	return &PrivateKey{scalar: new(ristretto.Scalar).FromUniformBytes(uniform)}, nil
}

// Public derives the public key Pk = k*G for private scalar k.
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{element: new(ristretto.Element).ScalarBaseMult(k.scalar)}
}

// Bytes returns the canonical 32-byte scalar encoding.
func (k *PrivateKey) Bytes() []byte {
	return k.scalar.Encode(nil)
}

// Bytes returns the canonical 32-byte compressed element encoding.
func (p *PublicKey) Bytes() []byte {
	return p.element.Encode(nil)
}

// DecodePublicKey parses a 32-byte compressed Ristretto255 element.
func DecodePublicKey(b []byte) (*PublicKey, error) {
	el := new(ristretto.Element)
	if err := el.Decode(b); err != nil {
		return nil, obscurerr.Wrap(obscurerr.ErrMalformedStructure, "um1 public key")
	}
	return &PublicKey{element: el}, nil
}

// combine hashes the concatenation of two scalar-mult results into a
// 32-byte shared secret, mirroring the sha3-based ECDH combiner pattern.
func combine(a, b *ristretto.Element) [32]byte {
	buf := append(a.Encode(nil), b.Encode(nil)...)
	return sha3.Sum256(buf)
}

// Initiate runs the sender side of UM1: given the sender's ephemeral
// private key, the sender's long-term private key, and the recipient's
// long-term public key, compute the shared secret
//
//	H( ephemeral_priv * recipient_pub || sender_priv * recipient_pub )
func Initiate(ephemeralPriv, senderPriv *PrivateKey, recipientPub *PublicKey) [32]byte {
	t1 := new(ristretto.Element).ScalarMult(ephemeralPriv.scalar, recipientPub.element)
	t2 := new(ristretto.Element).ScalarMult(senderPriv.scalar, recipientPub.element)
	return combine(t1, t2)
}

// Respond runs the recipient side of UM1: given the recipient's long-term
// private key, the sender's ephemeral public key (carried in the
// manifest), and the sender's long-term public key (a confirmation
// candidate), compute the same shared secret as Initiate.
//
//	H( recipient_priv * ephemeral_pub || recipient_priv * sender_pub )
func Respond(recipientPriv *PrivateKey, ephemeralPub, senderPub *PublicKey) [32]byte {
	t1 := new(ristretto.Element).ScalarMult(recipientPriv.scalar, ephemeralPub.element)
	t2 := new(ristretto.Element).ScalarMult(recipientPriv.scalar, senderPub.element)
	return combine(t1, t2)
}

// Candidate is one (foreign public key, local keypair) pairing the reader
// tries as part of the UM1 pairwise key-confirmation search described in
// §4.4 step 4.
type Candidate struct {
	SenderPub     *PublicKey
	RecipientPriv *PrivateKey
}

// PreKey runs Respond for this candidate against the manifest's ephemeral
// public key, returning the derived pre-key bytes ready for key
// confirmation or direct KDF use.
func (c Candidate) PreKey(ephemeralPub *PublicKey) []byte {
	secret := Respond(c.RecipientPriv, ephemeralPub, c.SenderPub)
	out := make([]byte, len(secret))
	copy(out, secret[:])
	return out
}
