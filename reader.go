package obscurcore

import (
	"io"

	"obscurcore/internal/keyderive"
	"obscurcore/internal/log"
	"obscurcore/internal/manifest"
	"obscurcore/internal/manifestcrypto"
	"obscurcore/internal/multiplex"
	"obscurcore/internal/wire"
	"obscurcore/internal/zero"

	obscurerr "obscurcore/internal/errors"
)

// KeyProvider is the reader's source of candidate key material, per §6's
// "Key provider interface (consumed by reader)".
type KeyProvider = manifestcrypto.KeyProvider

// SinkFunc opens the destination for one payload item's recovered
// plaintext. Sinks are opened lazily: Read does not call SinkFunc up
// front; multiplex.Read calls it the first time the multiplex schedule
// references the item. An opened sink stays open until multiplex.Read has
// finished with every item, so under every layout scheme the number of
// open sinks grows to the number of items the schedule has reached; it is
// not limited to one at a time.
type SinkFunc func(item wire.PayloadItem) (io.WriteCloser, error)

// ReadSummary is returned by a successful Read. TrailerError is non-nil
// when the trailer tag was missing or malformed — a soft error per §4.7:
// items already authenticated were still delivered to their sinks.
type ReadSummary struct {
	Manifest     *wire.Manifest
	TrailerError error
}

// Reader reads one ObscurCore package.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader { return &Reader{} }

// Read authenticates the manifest, resolves every payload item's working
// keys, and runs the multiplexer to deliver each item's plaintext to the
// sink openSink provides. No sink receives any bytes until its item's MAC
// has been verified.
func (rd *Reader) Read(in io.Reader, kp KeyProvider, openSink SinkFunc) (*ReadSummary, error) {
	result, err := manifestcrypto.Read(in, kp)
	if err != nil {
		return nil, err
	}
	m := result.Manifest

	validated, err := manifest.ValidateItems(m.PayloadItems)
	if err != nil {
		return nil, err
	}
	m.PayloadItems = validated

	if m.PayloadConfiguration.PayloadOffset > 0 {
		if _, err := io.CopyN(io.Discard, in, int64(m.PayloadConfiguration.PayloadOffset)); err != nil {
			return nil, obscurerr.NewStructureError("payload_offset_padding", obscurerr.ErrTruncatedInput)
		}
	}

	preKeys, err := resolveItemPreKeys(m.PayloadItems, kp)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, pk := range preKeys {
			zero.Bytes(pk)
		}
	}()

	readItems := make([]multiplex.ReadItem, len(m.PayloadItems))
	for i, item := range m.PayloadItems {
		item := item // each closure captures its own item, not the loop variable
		cipherKey, macKey, err := itemWorkingKeys(item, preKeys)
		if err != nil {
			return nil, err
		}
		if len(item.SymmetricCipherKey) == 0 {
			defer zero.Multiple(cipherKey, macKey)
		}

		readItems[i] = multiplex.ReadItem{
			Identifier:     item.Identifier,
			Type:           item.Type,
			Path:           item.Path,
			InternalLength: item.InternalLength,
			CipherCfg:      item.SymmetricCipherCfg,
			AuthCfg:        item.AuthenticationCfg,
			CipherKey:      cipherKey,
			MACKey:         macKey,
			OpenSink:       func() (io.WriteCloser, error) { return openSink(item) },
		}
	}

	if err := multiplex.Read(in, readItems, m.PayloadConfiguration); err != nil {
		return nil, err
	}

	trailerErr := manifest.ReadTag(in, manifest.TrailerTag, "trailer_tag")
	log.Info("package read complete", log.Int("items", len(m.PayloadItems)), log.Err(trailerErr))
	return &ReadSummary{Manifest: m, TrailerError: trailerErr}, nil
}

// resolveItemPreKeys runs §4.6: for every item whose carried keys are
// empty, confirms its pre-key against the caller's symmetric candidate
// pool, and returns an identifier→pre-key map. Items that carry keys
// directly are skipped. Any item whose pre-key cannot be confirmed is
// collected into a single AggregateKeyNotFound.
func resolveItemPreKeys(items []wire.PayloadItem, kp KeyProvider) (map[string][]byte, error) {
	preKeys := make(map[string][]byte)
	var misses []obscurerr.ItemKeyMiss

	for _, item := range items {
		if len(item.SymmetricCipherKey) > 0 {
			continue
		}
		if !item.KeyConfirmationCfg.Present() {
			misses = append(misses, obscurerr.ItemKeyMiss{Identifier: string(item.Identifier), Path: item.Path})
			continue
		}
		fn, err := keyderive.NewConfirmationFunc(item.KeyConfirmationCfg.ConfirmationName)
		if err != nil {
			return nil, err
		}
		candidates := kp.SymmetricCandidates()
		idx, err := keyderive.Confirm(candidates, item.KeyConfirmationVerifiedOutput, fn)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			misses = append(misses, obscurerr.ItemKeyMiss{Identifier: string(item.Identifier), Path: item.Path})
			continue
		}
		preKey := make([]byte, len(candidates[idx]))
		copy(preKey, candidates[idx])
		preKeys[string(item.Identifier)] = preKey
	}

	if len(misses) > 0 {
		return nil, &obscurerr.AggregateKeyNotFound{Misses: misses}
	}
	return preKeys, nil
}

// itemWorkingKeys resolves one item's (cipher key, mac key) pair: directly
// from carried keys, or by deriving from its resolved pre-key via its own
// key_derivation config.
func itemWorkingKeys(item wire.PayloadItem, preKeys map[string][]byte) ([]byte, []byte, error) {
	if len(item.SymmetricCipherKey) > 0 {
		return item.SymmetricCipherKey, item.AuthenticationKey, nil
	}
	preKey, ok := preKeys[string(item.Identifier)]
	if !ok {
		return nil, nil, obscurerr.Wrap(obscurerr.ErrKeyNotFound, "no resolved pre-key for item "+item.Path)
	}
	cipherKeyLen := int(item.SymmetricCipherCfg.KeySizeBits / 8)
	macKeyLen := int(item.AuthenticationCfg.KeySizeBits / 8)
	kdf := item.KeyDerivationCfg
	switch kdf.KDFName {
	case "Scrypt":
		params := keyderive.ScryptParams{N: int(kdf.ScryptN), R: int(kdf.ScryptR), P: int(kdf.ScryptP)}
		wk, err := keyderive.DeriveScrypt(preKey, kdf.Salt, cipherKeyLen, macKeyLen, params)
		if err != nil {
			return nil, nil, err
		}
		return wk.Cipher, wk.MAC, nil
	case "Pbkdf2":
		params := keyderive.PBKDF2Params{Iterations: int(kdf.Pbkdf2Iters), HashSize: int(kdf.Pbkdf2HashSize)}
		wk, err := keyderive.DerivePBKDF2(preKey, kdf.Salt, cipherKeyLen, macKeyLen, params)
		if err != nil {
			return nil, nil, err
		}
		return wk.Cipher, wk.MAC, nil
	default:
		return nil, nil, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "item kdf "+kdf.KDFName)
	}
}
