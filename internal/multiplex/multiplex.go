package multiplex

import (
	"io"

	"obscurcore/internal/log"
	"obscurcore/internal/manifest"
	"obscurcore/internal/registry"
	"obscurcore/internal/util"
	"obscurcore/internal/wire"

	obscurerr "obscurcore/internal/errors"
)

// WriteItem is one payload item's plaintext source and per-item crypto
// material, ready for the multiplexer to encrypt, authenticate, and
// schedule. CipherKey/MACKey are always the keys actually used to encrypt
// and authenticate this item. CarryKeysInManifest controls whether those
// keys are recorded directly in the resulting wire.PayloadItem (the
// "carried keys" case) or left empty so a reader re-derives them from
// KeyDerivationCfg/KeyConfirmationCfg against its own candidate pool (the
// "key-derived at read" case of §4.5/§4.6).
type WriteItem struct {
	Identifier              []byte
	Type                    string
	Path                    string
	Plaintext               []byte
	CipherCfg               wire.CipherConfig
	AuthCfg                 wire.AuthenticationConfig
	CipherKey               []byte
	MACKey                  []byte
	CarryKeysInManifest     bool
	KeyDerivationCfg        wire.KeyDerivationConfig
	KeyConfirmationCfg      wire.KeyConfirmationConfig
	KeyConfirmationVerified []byte
}

// ReadItem is one payload item as recorded in the manifest, with its
// resolved per-item crypto material. OpenSink is called at most once, the
// first time the schedule references this item, so a caller holding a
// scarce resource (an open file descriptor) never opens it earlier than
// necessary. Read closes whatever OpenSink returns exactly once, whether
// or not the item's authenticator ultimately verifies.
type ReadItem struct {
	Identifier     []byte
	Type           string
	Path           string
	InternalLength uint64
	CipherCfg      wire.CipherConfig
	AuthCfg        wire.AuthenticationConfig
	CipherKey      []byte
	MACKey         []byte
	OpenSink       func() (io.WriteCloser, error)
}

// itemAADFields is the fixed canonical encoding of an item's associated
// data: its identifier, type, path, and internal length, per §4.5's
// "additional authenticated data consists of the item's path and type
// bytes and the item's length field, in a fixed canonical encoding."
type itemAADFields struct {
	Identifier []byte
	Type       string
	Path       string
	Length     uint64
}

func itemAAD(identifier []byte, itemType, path string, length uint64) ([]byte, error) {
	return wire.Encode(itemAADFields{Identifier: identifier, Type: itemType, Path: path, Length: length})
}

func frozenConfig(cfg wire.PayloadConfiguration) (FrozenPayloadConfiguration, error) {
	frozen := FrozenPayloadConfiguration{}
	if err := manifest.ValidateLayoutName(cfg.SchemeName); err != nil {
		return frozen, err
	}
	frozen.SchemeName = cfg.SchemeName
	frozen.PrimaryPRNGSeed = cfg.PrimaryPRNGConfig

	if cfg.SchemeName == manifest.LayoutFrameshift || cfg.SchemeName == manifest.LayoutFabric {
		var fs wire.FrameshiftConfig
		if err := wire.Decode(cfg.SchemeSpecificConfig, &fs); err != nil {
			return frozen, err
		}
		frozen.ChunkMin = int(fs.ChunkMin)
		frozen.ChunkMax = int(fs.ChunkMax)
		frozen.ShiftMin = int(fs.ShiftMin)
		frozen.ShiftMax = int(fs.ShiftMax)
	}
	if cfg.SchemeName == manifest.LayoutFabric {
		frozen.SecondaryPRNGSeed = cfg.SecondaryPRNGConfig
	}
	return frozen, nil
}

// chunkBuffer returns a scratch buffer of exactly n bytes, drawing from
// util.SmallPool only when n equals its fixed 4 KiB buffer size and
// falling back to a plain allocation for every other size. release
// returns it to the pool if it came from one.
const smallPoolBufferSize = 4 * 1024 // matches util.SmallPool's fixed buffer size

func chunkBuffer(n int) (buf []byte, release func()) {
	if n == smallPoolBufferSize {
		b := util.GetSmallBuffer()
		return b, func() { util.PutSmallBuffer(b) }
	}
	return make([]byte, n), func() {}
}

// Write streams every item's ciphertext-plus-tag over w as cfg's layout
// scheme schedules it, and returns the payload-item records (with
// InternalLength filled in) for inclusion in the manifest. Per §4.7 the
// manifest must record each item's length before the payload region is
// written, so internalLength computes that length from the plaintext size
// and cipher configuration alone — no ciphertext is produced until the
// schedule actually asks for bytes.
func Write(w io.Writer, items []WriteItem, cfg wire.PayloadConfiguration) ([]wire.PayloadItem, error) {
	frozen, err := frozenConfig(cfg)
	if err != nil {
		return nil, err
	}

	streams := make([]*writeItemStream, len(items))
	payloadItems := make([]wire.PayloadItem, len(items))
	lengths := make([]int, len(items))

	for i, it := range items {
		internalLen, err := internalLength(it.CipherCfg, it.CipherKey, len(it.Plaintext))
		if err != nil {
			return nil, err
		}
		mac, err := registry.NewMAC(it.AuthCfg.MACName, it.MACKey)
		if err != nil {
			return nil, err
		}
		aad, err := itemAAD(it.Identifier, it.Type, it.Path, internalLen)
		if err != nil {
			return nil, err
		}
		stream, err := newWriteItemStream(it, mac, internalLen, aad)
		if err != nil {
			return nil, err
		}
		streams[i] = stream
		lengths[i] = int(internalLen) + mac.Size()

		payloadItems[i] = wire.PayloadItem{
			Identifier:         it.Identifier,
			Type:               it.Type,
			Path:               it.Path,
			ExternalLength:     uint64(len(it.Plaintext)),
			InternalLength:     internalLen,
			SymmetricCipherCfg: it.CipherCfg,
			AuthenticationCfg:  it.AuthCfg,
		}
		if it.CarryKeysInManifest {
			payloadItems[i].SymmetricCipherKey = it.CipherKey
			payloadItems[i].AuthenticationKey = it.MACKey
		} else {
			payloadItems[i].KeyDerivationCfg = it.KeyDerivationCfg
			payloadItems[i].KeyConfirmationCfg = it.KeyConfirmationCfg
			payloadItems[i].KeyConfirmationVerifiedOutput = it.KeyConfirmationVerified
		}
	}

	ops, err := buildSchedule(frozen, lengths)
	if err != nil {
		return nil, err
	}

	for _, o := range ops {
		if o.isPad {
			if _, err := w.Write(o.content); err != nil {
				return nil, obscurerr.NewIoError("write", err)
			}
			continue
		}
		chunk, err := streams[o.idx].supply(o.n)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(chunk); err != nil {
			return nil, obscurerr.NewIoError("write", err)
		}
	}

	log.Debug("multiplex write complete", log.Int("items", len(items)), log.String("scheme", cfg.SchemeName))
	return payloadItems, nil
}

// Read reconstructs every item's ciphertext-plus-tag by replaying cfg's
// layout scheme, authenticating and speculatively decrypting each item's
// bytes as the schedule delivers them, and only writes recovered plaintext
// to an item's sink once that item's MAC has verified. Per §5's resource
// model, an item's sink is opened lazily — the first time the schedule
// references it, not before. Opened sinks stay open until every item is
// resolved and are then each closed exactly once.
func Read(r io.Reader, items []ReadItem, cfg wire.PayloadConfiguration) error {
	frozen, err := frozenConfig(cfg)
	if err != nil {
		return err
	}

	streams := make([]*readItemStream, len(items))
	lengths := make([]int, len(items))
	for i, it := range items {
		mac, err := registry.NewMAC(it.AuthCfg.MACName, it.MACKey)
		if err != nil {
			return err
		}
		aad, err := itemAAD(it.Identifier, it.Type, it.Path, it.InternalLength)
		if err != nil {
			return err
		}
		stream, err := newReadItemStream(it, mac, aad)
		if err != nil {
			return err
		}
		streams[i] = stream
		lengths[i] = int(it.InternalLength) + mac.Size()
	}

	ops, err := buildSchedule(frozen, lengths)
	if err != nil {
		return err
	}

	sinks := make([]io.WriteCloser, len(items))
	closeSinks := func() {
		for _, s := range sinks {
			if s != nil {
				s.Close()
			}
		}
	}

	for _, o := range ops {
		if o.isPad {
			discard, release := chunkBuffer(len(o.content))
			if _, err := io.ReadFull(r, discard); err != nil {
				release()
				closeSinks()
				return obscurerr.NewStructureError("payload-padding", obscurerr.ErrTruncatedInput)
			}
			release()
			continue
		}

		if sinks[o.idx] == nil {
			sink, err := items[o.idx].OpenSink()
			if err != nil {
				closeSinks()
				return err
			}
			sinks[o.idx] = sink
		}

		chunk, release := chunkBuffer(o.n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			release()
			closeSinks()
			return obscurerr.NewStructureError("payload-item", obscurerr.ErrTruncatedInput)
		}
		err := streams[o.idx].consume(chunk)
		release()
		if err != nil {
			closeSinks()
			return err
		}
	}

	var misses []obscurerr.ItemKeyMiss
	for i, it := range items {
		plaintext, ok, err := streams[i].verifyAndDecrypt()
		if err != nil {
			closeSinks()
			return err
		}
		if !ok {
			misses = append(misses, obscurerr.ItemKeyMiss{Identifier: string(it.Identifier), Path: it.Path})
			continue
		}
		if sinks[i] == nil {
			// Every item's scheduled length includes its MAC tag, so the
			// schedule references every item and its sink is already
			// open; this only opens a sink that no scheduled op opened.
			sink, err := it.OpenSink()
			if err != nil {
				closeSinks()
				return err
			}
			sinks[i] = sink
		}
		if _, err := sinks[i].Write(plaintext); err != nil {
			closeSinks()
			return obscurerr.NewIoError("write", err)
		}
	}
	closeSinks()

	if len(misses) > 0 {
		return &obscurerr.ItemAuthenticationFailure{Misses: misses}
	}
	log.Debug("multiplex read complete", log.Int("items", len(items)), log.String("scheme", cfg.SchemeName))
	return nil
}
