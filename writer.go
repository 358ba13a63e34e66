// Package obscurcore implements the package reader/writer orchestration of
// §4.7: draining item sources, running the manifest crypto engine and the
// payload multiplexer in the correct order, and enforcing the writer's
// single-shot and the reader's authenticate-before-expose guarantees.
//
// Grounded on the teacher's top-level orchestration style: a small,
// sequential pipeline of named steps, with every derived key zeroised on
// every exit path.
package obscurcore

import (
	"bytes"
	"io"
	"sync/atomic"

	"obscurcore/internal/keyderive"
	"obscurcore/internal/log"
	"obscurcore/internal/manifest"
	"obscurcore/internal/manifestcrypto"
	"obscurcore/internal/multiplex"
	"obscurcore/internal/wire"
	"obscurcore/internal/zero"

	obscurerr "obscurcore/internal/errors"
)

// ItemSpec describes one payload item to be written: its identifier,
// metadata, and plaintext source. Per §4.7, "all item source streams are
// drained before the manifest is written out" — every item's plaintext
// must be fully in memory before Write schedules anything — but per §5's
// resource model, sources are still opened one at a time rather than all
// at once. Set either Plaintext directly (already-in-memory content) or
// Open (a lazy source, e.g. an *os.File opened on demand); Write calls
// Open, drains it, and closes it before moving on to the next item's
// source. If both are set, Open takes precedence.
//
// Two key-carrying modes are supported, mirroring §4.5/§4.6:
//   - Carried keys: set CipherKey/MACKey directly; they are recorded in
//     the manifest's payload item and used as-is by a reader.
//   - Key-derived at read: leave CipherKey/MACKey empty, set PreKey and
//     KeyDerivationCfg (and, to enable key confirmation, also
//     KeyConfirmationCfg); the writer derives working keys itself but the
//     manifest records only the derivation/confirmation configuration, so
//     a reader must confirm PreKey from its own candidate pool.
type ItemSpec struct {
	Identifier         []byte
	Type               string
	Path               string
	Plaintext          []byte
	Open               func() (io.Reader, error)
	CipherCfg          wire.CipherConfig
	AuthCfg            wire.AuthenticationConfig
	CipherKey          []byte
	MACKey             []byte
	PreKey             []byte
	KeyDerivationCfg   wire.KeyDerivationConfig
	KeyConfirmationCfg wire.KeyConfirmationConfig
}

// resolvePlaintext drains it's source into memory. When Open is set, the
// source is opened, fully read, and closed here — never earlier — so a
// caller iterating items sequentially (as Write does) never has more than
// one item's underlying resource open at a time.
func resolvePlaintext(it ItemSpec) ([]byte, error) {
	if it.Open == nil {
		return it.Plaintext, nil
	}
	src, err := it.Open()
	if err != nil {
		return nil, err
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}
	plaintext, err := io.ReadAll(src)
	if err != nil {
		return nil, obscurerr.NewIoError("read", err)
	}
	return plaintext, nil
}

// WriterConfig bundles everything a Writer needs beyond the item list:
// the manifest-crypto-engine options and the payload layout.
type WriterConfig struct {
	ManifestCrypto       manifestcrypto.WriteOptions
	PayloadConfiguration wire.PayloadConfiguration
	// PayloadOffsetFillSeed seeds the CSPRNG used to fill the
	// payload_offset padding region between the ciphertext manifest and
	// the payload. Required whenever PayloadConfiguration.PayloadOffset
	// is nonzero.
	PayloadOffsetFillSeed []byte
}

// Writer produces one ObscurCore package. A Writer is single-shot: after
// one successful Write call it refuses further writes, preserving the
// nonce-reuse invariants of its per-item and manifest cipher
// configurations.
type Writer struct {
	cfg  WriterConfig
	used atomic.Bool
}

// NewWriter creates a Writer bound to cfg.
func NewWriter(cfg WriterConfig) *Writer {
	return &Writer{cfg: cfg}
}

// Write encrypts items and writes a complete package to out, in the wire
// order {header-tag, header-DTO, ciphertext-manifest-length, ciphertext-
// manifest, payload-offset-padding, multiplexed-payload, trailer-tag}.
func (w *Writer) Write(out io.Writer, items []ItemSpec) error {
	if !w.used.CompareAndSwap(false, true) {
		return obscurerr.ErrWriterAlreadyUsed
	}

	ordered := make([]ItemSpec, len(items))
	copy(ordered, items)
	sortItemSpecsByIdentifier(ordered)

	multItems := make([]multiplex.WriteItem, len(ordered))
	for i, it := range ordered {
		plaintext, err := resolvePlaintext(it)
		if err != nil {
			return err
		}
		mi := multiplex.WriteItem{
			Identifier: it.Identifier,
			Type:       it.Type,
			Path:       it.Path,
			Plaintext:  plaintext,
			CipherCfg:  it.CipherCfg,
			AuthCfg:    it.AuthCfg,
		}
		if len(it.CipherKey) > 0 {
			mi.CarryKeysInManifest = true
			mi.CipherKey = it.CipherKey
			mi.MACKey = it.MACKey
		} else {
			cipherKey, macKey, confirmed, err := deriveItemWorkingKeys(it)
			if err != nil {
				return err
			}
			defer zero.Multiple(cipherKey, macKey)
			mi.CipherKey = cipherKey
			mi.MACKey = macKey
			mi.KeyDerivationCfg = it.KeyDerivationCfg
			mi.KeyConfirmationCfg = it.KeyConfirmationCfg
			mi.KeyConfirmationVerified = confirmed
		}
		multItems[i] = mi
	}

	var payloadBuf bytes.Buffer
	payloadItems, err := multiplex.Write(&payloadBuf, multItems, w.cfg.PayloadConfiguration)
	if err != nil {
		return err
	}

	m := &wire.Manifest{
		PayloadConfiguration: w.cfg.PayloadConfiguration,
		PayloadItems:         payloadItems,
	}

	if err := manifestcrypto.Write(out, m, w.cfg.ManifestCrypto); err != nil {
		return err
	}

	if w.cfg.PayloadConfiguration.PayloadOffset > 0 {
		if err := writePayloadOffsetPadding(out, w.cfg.PayloadConfiguration.PayloadOffset, w.cfg.PayloadOffsetFillSeed); err != nil {
			return err
		}
	}

	if _, err := out.Write(payloadBuf.Bytes()); err != nil {
		return obscurerr.NewIoError("write", err)
	}

	if _, err := out.Write(manifest.TrailerTag); err != nil {
		return obscurerr.NewIoError("write", err)
	}
	log.Info("package write complete", log.Int("items", len(items)), log.String("scheme", w.cfg.PayloadConfiguration.SchemeName))
	return nil
}

// deriveItemWorkingKeys derives an item's (cipher key, mac key) pair from
// it.PreKey via it.KeyDerivationCfg, and, when it.KeyConfirmationCfg is
// present, computes the confirmation output to record in the manifest so a
// reader can confirm the same pre-key from its own candidate pool.
func deriveItemWorkingKeys(it ItemSpec) (cipherKey, macKey, confirmed []byte, err error) {
	cipherKeyLen := int(it.CipherCfg.KeySizeBits / 8)
	macKeyLen := int(it.AuthCfg.KeySizeBits / 8)
	kdf := it.KeyDerivationCfg

	switch kdf.KDFName {
	case "Scrypt":
		params := keyderive.ScryptParams{N: int(kdf.ScryptN), R: int(kdf.ScryptR), P: int(kdf.ScryptP)}
		wk, derr := keyderive.DeriveScrypt(it.PreKey, kdf.Salt, cipherKeyLen, macKeyLen, params)
		if derr != nil {
			return nil, nil, nil, derr
		}
		cipherKey, macKey = wk.Cipher, wk.MAC
	case "Pbkdf2":
		params := keyderive.PBKDF2Params{Iterations: int(kdf.Pbkdf2Iters), HashSize: int(kdf.Pbkdf2HashSize)}
		wk, derr := keyderive.DerivePBKDF2(it.PreKey, kdf.Salt, cipherKeyLen, macKeyLen, params)
		if derr != nil {
			return nil, nil, nil, derr
		}
		cipherKey, macKey = wk.Cipher, wk.MAC
	default:
		return nil, nil, nil, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "item kdf "+kdf.KDFName)
	}

	if it.KeyConfirmationCfg.Present() {
		fn, cerr := keyderive.NewConfirmationFunc(it.KeyConfirmationCfg.ConfirmationName)
		if cerr != nil {
			return nil, nil, nil, cerr
		}
		confirmed, cerr = fn(it.PreKey)
		if cerr != nil {
			return nil, nil, nil, cerr
		}
	}
	return cipherKey, macKey, confirmed, nil
}

func sortItemSpecsByIdentifier(items []ItemSpec) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && bytes.Compare(items[j-1].Identifier, items[j].Identifier) > 0; j-- {
			items[j-1], items[j] = items[j], items[j-1]
		}
	}
}

func writePayloadOffsetPadding(out io.Writer, n uint64, seed []byte) error {
	fill, err := deterministicFill(seed, int(n))
	if err != nil {
		return err
	}
	if _, err := out.Write(fill); err != nil {
		return obscurerr.NewIoError("write", err)
	}
	return nil
}
