package obscurcore

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obscurcore/internal/manifest"
	"obscurcore/internal/manifestcrypto"
	"obscurcore/internal/um1"
	"obscurcore/internal/wire"

	obscurerr "obscurcore/internal/errors"
)

type fakeKeyProvider struct {
	symmetric [][]byte
	locals    []*um1.PrivateKey
	foreigns  []*um1.PublicKey
}

func (f fakeKeyProvider) SymmetricCandidates() [][]byte       { return f.symmetric }
func (f fakeKeyProvider) LocalKeypairs() []*um1.PrivateKey    { return f.locals }
func (f fakeKeyProvider) ForeignPublicKeys() []*um1.PublicKey { return f.foreigns }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func simpleChaChaCipherCfg(iv byte) wire.CipherConfig {
	return wire.CipherConfig{CipherName: "ChaCha", KeySizeBits: 256, IV: bytes.Repeat([]byte{iv}, 12)}
}

func hmacAuthCfg() wire.AuthenticationConfig {
	return wire.AuthenticationConfig{MACName: "Hmac-Sha256", KeySizeBits: 256}
}

func basePayloadConfiguration() wire.PayloadConfiguration {
	return wire.PayloadConfiguration{
		SchemeName:        manifest.LayoutSimple,
		PrimaryPRNGName:   "Salsa20Csprng",
		PrimaryPRNGConfig: bytes.Repeat([]byte{0x41}, 32),
	}
}

func baseWriterConfig(manifestPreKey []byte) WriterConfig {
	return WriterConfig{
		ManifestCrypto: manifestcrypto.WriteOptions{
			SchemeName: manifest.SchemeSymmetricOnly,
			CipherCfg:  simpleChaChaCipherCfg(0x50),
			AuthCfg:    hmacAuthCfg(),
			KDFCfg: wire.KeyDerivationConfig{
				KDFName: "Scrypt",
				Salt:    bytes.Repeat([]byte{0x51}, 16),
				ScryptN: 16, ScryptR: 8, ScryptP: 1,
			},
			ConfirmationCfg: wire.KeyConfirmationConfig{ConfirmationName: "Blake2B-256"},
			SymmetricPreKey: manifestPreKey,
		},
		PayloadConfiguration: basePayloadConfiguration(),
	}
}

// collectSinks opens a bytes.Buffer per payload item, keyed by identifier, so
// a test can assert recovered plaintext against the item that produced it
// regardless of the order Writer sorted items into on the wire.
func collectSinks() (SinkFunc, map[string]*bytes.Buffer) {
	bufs := make(map[string]*bytes.Buffer)
	open := func(item wire.PayloadItem) (io.WriteCloser, error) {
		buf := &bytes.Buffer{}
		bufs[string(item.Identifier)] = buf
		return nopWriteCloser{buf}, nil
	}
	return open, bufs
}

func TestWriterReaderRoundtripBothKeyCarryingModes(t *testing.T) {
	manifestPreKey := bytes.Repeat([]byte{0x60}, 32)
	itemPreKey := bytes.Repeat([]byte{0x70}, 32)
	carriedCipherKey := bytes.Repeat([]byte{0x80}, 32)
	carriedMACKey := bytes.Repeat([]byte{0x81}, 32)

	carriedID := bytes.Repeat([]byte{0x01}, 16)
	derivedID := bytes.Repeat([]byte{0x02}, 16)

	items := []ItemSpec{
		{
			Identifier: carriedID,
			Type:       manifest.ItemTypeMessage,
			Path:       "carried.txt",
			Plaintext:  []byte("carried key plaintext"),
			CipherCfg:  simpleChaChaCipherCfg(0x61),
			AuthCfg:    hmacAuthCfg(),
			CipherKey:  carriedCipherKey,
			MACKey:     carriedMACKey,
		},
		{
			Identifier: derivedID,
			Type:       manifest.ItemTypeFile,
			Path:       "derived.bin",
			Plaintext:  []byte("derived key plaintext"),
			CipherCfg:  simpleChaChaCipherCfg(0x62),
			AuthCfg:    hmacAuthCfg(),
			PreKey:     itemPreKey,
			KeyDerivationCfg: wire.KeyDerivationConfig{
				KDFName: "Scrypt",
				Salt:    bytes.Repeat([]byte{0x63}, 16),
				ScryptN: 16, ScryptR: 8, ScryptP: 1,
			},
			KeyConfirmationCfg: wire.KeyConfirmationConfig{ConfirmationName: "Blake2B-256"},
		},
	}

	w := NewWriter(baseWriterConfig(manifestPreKey))
	var out bytes.Buffer
	require.NoError(t, w.Write(&out, items))

	// A Writer is single-shot: a second Write must be refused.
	err := w.Write(&bytes.Buffer{}, items)
	assert.ErrorIs(t, err, obscurerr.ErrWriterAlreadyUsed)

	kp := fakeKeyProvider{symmetric: [][]byte{
		bytes.Repeat([]byte{0xFF}, 32), // decoy
		manifestPreKey,
		itemPreKey,
	}}
	openSink, bufs := collectSinks()

	rd := NewReader()
	summary, err := rd.Read(bytes.NewReader(out.Bytes()), kp, openSink)
	require.NoError(t, err)
	require.NoError(t, summary.TrailerError)

	assert.Equal(t, "carried key plaintext", bufs[string(carriedID)].String())
	assert.Equal(t, "derived key plaintext", bufs[string(derivedID)].String())
	assert.Len(t, summary.Manifest.PayloadItems, 2)
}

func TestReaderRejectsTamperedPayload(t *testing.T) {
	preKey := bytes.Repeat([]byte{0x90}, 32)
	items := []ItemSpec{
		{
			Identifier: bytes.Repeat([]byte{0x03}, 16),
			Type:       manifest.ItemTypeMessage,
			Path:       "msg.txt",
			Plaintext:  []byte("tamper me"),
			CipherCfg:  simpleChaChaCipherCfg(0x91),
			AuthCfg:    hmacAuthCfg(),
			CipherKey:  bytes.Repeat([]byte{0x92}, 32),
			MACKey:     bytes.Repeat([]byte{0x93}, 32),
		},
	}

	w := NewWriter(baseWriterConfig(preKey))
	var out bytes.Buffer
	require.NoError(t, w.Write(&out, items))

	kp := fakeKeyProvider{symmetric: [][]byte{preKey}}

	// Flip the first payload byte (the item's first ciphertext byte); the
	// manifest read reports where the payload region starts.
	res, err := manifestcrypto.Read(bytes.NewReader(out.Bytes()), kp)
	require.NoError(t, err)
	tampered := out.Bytes()
	tampered[res.PayloadOffsetAbsolute] ^= 0xFF

	openSink, _ := collectSinks()
	_, err = NewReader().Read(bytes.NewReader(tampered), kp, openSink)
	require.Error(t, err)
}

func TestReaderReportsAggregateKeyNotFoundBeforeMultiplexing(t *testing.T) {
	manifestPreKey := bytes.Repeat([]byte{0xA0}, 32)
	items := []ItemSpec{
		{
			Identifier: bytes.Repeat([]byte{0x04}, 16),
			Type:       manifest.ItemTypeMessage,
			Path:       "orphan.txt",
			Plaintext:  []byte("no candidate will confirm this"),
			CipherCfg:  simpleChaChaCipherCfg(0xA1),
			AuthCfg:    hmacAuthCfg(),
			PreKey:     bytes.Repeat([]byte{0xA2}, 32),
			KeyDerivationCfg: wire.KeyDerivationConfig{
				KDFName: "Scrypt",
				Salt:    bytes.Repeat([]byte{0xA3}, 16),
				ScryptN: 16, ScryptR: 8, ScryptP: 1,
			},
			KeyConfirmationCfg: wire.KeyConfirmationConfig{ConfirmationName: "Blake2B-256"},
		},
	}

	w := NewWriter(baseWriterConfig(manifestPreKey))
	var out bytes.Buffer
	require.NoError(t, w.Write(&out, items))

	// The item's pre-key is never offered to the reader, only the manifest's.
	kp := fakeKeyProvider{symmetric: [][]byte{manifestPreKey}}
	openSink, _ := collectSinks()
	_, err := NewReader().Read(bytes.NewReader(out.Bytes()), kp, openSink)

	var aggErr *obscurerr.AggregateKeyNotFound
	require.ErrorAs(t, err, &aggErr)
	assert.Len(t, aggErr.Misses, 1)
}
