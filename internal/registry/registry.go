// Package registry holds the metadata tables for the crypto primitive
// registry described by the package format: ciphers, modes, paddings,
// hashes, MAC functions, KDFs, CSPRNGs, and EC curves. The core consumes
// these by name and parameter; concrete backing is wired per-entry in
// this package's factory.go (ciphers, block modes, MACs),
// internal/keyderive (KDFs), internal/csprng, and internal/um1 — entries without a concrete adapter still validate sizes
// and round-trip their name on the wire, matching §6's "the core consumes
// these by name and parameter; it does not implement them."
package registry

import obscurerr "obscurcore/internal/errors"

// BlockCipher names a block cipher registry entry and its allowed sizes.
type BlockCipher struct {
	Name      string
	KeySizes  []int
	BlockSize int
	Backed    bool // true if factory.go has a concrete adapter
}

// StreamCipher names a stream cipher registry entry and its allowed sizes.
type StreamCipher struct {
	Name     string
	KeySizes []int
	IVSize   int
	Backed   bool
}

// Mode names a block cipher mode of operation.
type Mode struct {
	Name    string
	Padded  bool // CBC requires padding; CFB/CTR/OFB do not
	Backed  bool
}

// Padding names a padding scheme.
type Padding struct {
	Name   string
	Backed bool
}

// Hash names a hash function and its digest size.
type Hash struct {
	Name       string
	DigestSize int
	Backed     bool
}

// MAC names a MAC function, its key size constraints, and output size.
type MAC struct {
	Name      string
	KeySize   int // 0 means variable/unkeyed-hash-derived
	TagSize   int
	Backed    bool
}

// KDF names a key derivation function.
type KDF struct {
	Name   string
	Backed bool
}

// CSPRNG names a seeded pseudo-random generator usable for scheduling or
// padding fill.
type CSPRNG struct {
	Name     string
	SeedSize int
	Backed   bool
}

// Curve names an EC curve usable for the UM1 hybrid scheme.
type Curve struct {
	Name   string
	Backed bool
}

// BlockCiphers is the registry of named block ciphers.
var BlockCiphers = map[string]BlockCipher{
	"Aes":       {Name: "Aes", KeySizes: []int{16, 24, 32}, BlockSize: 16, Backed: true},
	"Serpent":   {Name: "Serpent", KeySizes: []int{16, 24, 32}, BlockSize: 16, Backed: true},
	"Blowfish":  {Name: "Blowfish", KeySizes: []int{4, 8, 16, 32, 56}, BlockSize: 8, Backed: false},
	"Camellia":  {Name: "Camellia", KeySizes: []int{16, 24, 32}, BlockSize: 16, Backed: false},
	"Cast5":     {Name: "Cast5", KeySizes: []int{5, 8, 16}, BlockSize: 8, Backed: false},
	"Cast6":     {Name: "Cast6", KeySizes: []int{16, 24, 32}, BlockSize: 16, Backed: false},
	"Idea":      {Name: "Idea", KeySizes: []int{16}, BlockSize: 8, Backed: false},
	"Noekeon":   {Name: "Noekeon", KeySizes: []int{16}, BlockSize: 16, Backed: false},
	"Rc6":       {Name: "Rc6", KeySizes: []int{16, 24, 32}, BlockSize: 16, Backed: false},
	"Threefish": {Name: "Threefish", KeySizes: []int{32, 64, 128}, BlockSize: 32, Backed: false},
	"Twofish":   {Name: "Twofish", KeySizes: []int{16, 24, 32}, BlockSize: 16, Backed: false},
}

// StreamCiphers is the registry of named stream ciphers.
var StreamCiphers = map[string]StreamCipher{
	"Salsa20":  {Name: "Salsa20", KeySizes: []int{32}, IVSize: 8, Backed: true},
	"XSalsa20": {Name: "XSalsa20", KeySizes: []int{32}, IVSize: 24, Backed: true},
	"ChaCha":   {Name: "ChaCha", KeySizes: []int{32}, IVSize: 12, Backed: true},
	"Hc128":    {Name: "Hc128", KeySizes: []int{16}, IVSize: 16, Backed: false},
	"Hc256":    {Name: "Hc256", KeySizes: []int{32}, IVSize: 32, Backed: false},
	"Rabbit":   {Name: "Rabbit", KeySizes: []int{16}, IVSize: 8, Backed: false},
	"Sosemanuk": {Name: "Sosemanuk", KeySizes: []int{16, 32}, IVSize: 16, Backed: false},
}

// Modes is the registry of named block cipher modes.
var Modes = map[string]Mode{
	"Cbc": {Name: "Cbc", Padded: true, Backed: true},
	"Cfb": {Name: "Cfb", Padded: false, Backed: false},
	"Ctr": {Name: "Ctr", Padded: false, Backed: true},
	"Ofb": {Name: "Ofb", Padded: false, Backed: false},
}

// Paddings is the registry of named block padding schemes.
var Paddings = map[string]Padding{
	"Pkcs7":     {Name: "Pkcs7", Backed: true},
	"Iso10126D2": {Name: "Iso10126D2", Backed: false},
	"Iso7816D4": {Name: "Iso7816D4", Backed: false},
	"Tbc":       {Name: "Tbc", Backed: false},
	"X923":      {Name: "X923", Backed: false},
}

// Hashes is the registry of named hash functions.
var Hashes = map[string]Hash{
	"Blake2B-256": {Name: "Blake2B-256", DigestSize: 32, Backed: true},
	"Blake2B-384": {Name: "Blake2B-384", DigestSize: 48, Backed: true},
	"Blake2B-512": {Name: "Blake2B-512", DigestSize: 64, Backed: true},
	"Keccak-224":  {Name: "Keccak-224", DigestSize: 28, Backed: true},
	"Keccak-256":  {Name: "Keccak-256", DigestSize: 32, Backed: true},
	"Keccak-384":  {Name: "Keccak-384", DigestSize: 48, Backed: true},
	"Keccak-512":  {Name: "Keccak-512", DigestSize: 64, Backed: true},
	"Sha256":      {Name: "Sha256", DigestSize: 32, Backed: true},
	"Sha512":      {Name: "Sha512", DigestSize: 64, Backed: true},
	"RipeMD160":   {Name: "RipeMD160", DigestSize: 20, Backed: false},
	"Tiger":       {Name: "Tiger", DigestSize: 24, Backed: false},
}

// MACs is the registry of named MAC functions.
var MACs = map[string]MAC{
	"Hmac-Sha256":   {Name: "Hmac-Sha256", KeySize: 0, TagSize: 32, Backed: true},
	"Hmac-Sha512":   {Name: "Hmac-Sha512", KeySize: 0, TagSize: 64, Backed: true},
	"Blake2B-256":   {Name: "Blake2B-256", KeySize: 32, TagSize: 32, Backed: true},
	"Blake2B-512":   {Name: "Blake2B-512", KeySize: 64, TagSize: 64, Backed: true},
	"Poly1305":      {Name: "Poly1305", KeySize: 32, TagSize: 16, Backed: false},
	"Keccak-256":    {Name: "Keccak-256", KeySize: 0, TagSize: 32, Backed: true},
	"Cmac":          {Name: "Cmac", KeySize: 0, TagSize: 16, Backed: false},
}

// KDFs is the registry of named key derivation functions.
var KDFs = map[string]KDF{
	"Scrypt": {Name: "Scrypt", Backed: true},
	"Pbkdf2": {Name: "Pbkdf2", Backed: true},
}

// CSPRNGs is the registry of named seeded pseudo-random generators.
var CSPRNGs = map[string]CSPRNG{
	"Salsa20Csprng":   {Name: "Salsa20Csprng", SeedSize: 32, Backed: true},
	"SosemanukCsprng": {Name: "SosemanukCsprng", SeedSize: 32, Backed: false},
}

// Curves is the registry of named EC curves.
var Curves = map[string]Curve{
	"Ristretto255": {Name: "Ristretto255", Backed: true},
	"Secp256k1":    {Name: "Secp256k1", Backed: false},
	"Secp256r1":    {Name: "Secp256r1", Backed: false},
	"Sect283k1":    {Name: "Sect283k1", Backed: false},
	"BrainpoolP256r1": {Name: "BrainpoolP256r1", Backed: false},
}

// LookupBlockCipher resolves name, failing with ErrUnknownScheme if absent
// and ErrConfigurationInvalid if keySize is not among the cipher's allowed
// sizes.
func LookupBlockCipher(name string, keySize int) (BlockCipher, error) {
	c, ok := BlockCiphers[name]
	if !ok {
		return BlockCipher{}, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "block cipher "+name)
	}
	if keySize > 0 {
		ok := false
		for _, s := range c.KeySizes {
			if s == keySize {
				ok = true
				break
			}
		}
		if !ok {
			return BlockCipher{}, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "block cipher "+name+" key size")
		}
	}
	return c, nil
}

// LookupStreamCipher resolves name the same way LookupBlockCipher does.
func LookupStreamCipher(name string, keySize int) (StreamCipher, error) {
	c, ok := StreamCiphers[name]
	if !ok {
		return StreamCipher{}, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "stream cipher "+name)
	}
	if keySize > 0 {
		ok := false
		for _, s := range c.KeySizes {
			if s == keySize {
				ok = true
				break
			}
		}
		if !ok {
			return StreamCipher{}, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "stream cipher "+name+" key size")
		}
	}
	return c, nil
}

// LookupMode resolves a cipher mode by name.
func LookupMode(name string) (Mode, error) {
	m, ok := Modes[name]
	if !ok {
		return Mode{}, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "mode "+name)
	}
	return m, nil
}

// LookupPadding resolves a padding scheme by name.
func LookupPadding(name string) (Padding, error) {
	p, ok := Paddings[name]
	if !ok {
		return Padding{}, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "padding "+name)
	}
	return p, nil
}

// LookupHash resolves a hash function by name.
func LookupHash(name string) (Hash, error) {
	h, ok := Hashes[name]
	if !ok {
		return Hash{}, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "hash "+name)
	}
	return h, nil
}

// LookupMAC resolves a MAC function by name.
func LookupMAC(name string) (MAC, error) {
	m, ok := MACs[name]
	if !ok {
		return MAC{}, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "mac "+name)
	}
	return m, nil
}

// LookupKDF resolves a KDF by name.
func LookupKDF(name string) (KDF, error) {
	k, ok := KDFs[name]
	if !ok {
		return KDF{}, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "kdf "+name)
	}
	return k, nil
}

// LookupCSPRNG resolves a CSPRNG by name.
func LookupCSPRNG(name string) (CSPRNG, error) {
	c, ok := CSPRNGs[name]
	if !ok {
		return CSPRNG{}, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "csprng "+name)
	}
	return c, nil
}

// LookupCurve resolves an EC curve by name.
func LookupCurve(name string) (Curve, error) {
	c, ok := Curves[name]
	if !ok {
		return Curve{}, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "curve "+name)
	}
	return c, nil
}
