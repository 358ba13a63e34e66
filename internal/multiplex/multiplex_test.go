package multiplex

import (
	"bytes"
	"io"
	"testing"

	"obscurcore/internal/manifest"
	"obscurcore/internal/wire"

	obscurerr "obscurcore/internal/errors"
)

func cipherCfg() wire.CipherConfig {
	return wire.CipherConfig{CipherName: "ChaCha", KeySizeBits: 256, IV: bytes.Repeat([]byte{0x01}, 12)}
}

func authCfg() wire.AuthenticationConfig {
	return wire.AuthenticationConfig{MACName: "Hmac-Sha256", KeySizeBits: 256}
}

func makeWriteItems(texts ...string) []WriteItem {
	items := make([]WriteItem, len(texts))
	for i, text := range texts {
		items[i] = WriteItem{
			Identifier: bytes.Repeat([]byte{byte(i + 1)}, 16),
			Type:       manifest.ItemTypeMessage,
			Path:       "item" + string(rune('a'+i)),
			Plaintext:  []byte(text),
			CipherCfg:  cipherCfg(),
			AuthCfg:    authCfg(),
			CipherKey:  bytes.Repeat([]byte{byte(0x10 + i)}, 32),
			MACKey:     bytes.Repeat([]byte{byte(0x20 + i)}, 32),
		}
	}
	return items
}

func simplePayloadConfig() wire.PayloadConfiguration {
	return wire.PayloadConfiguration{
		SchemeName:        manifest.LayoutSimple,
		PrimaryPRNGName:   "Salsa20Csprng",
		PrimaryPRNGConfig: bytes.Repeat([]byte{0x07}, 32),
	}
}

func frameshiftPayloadConfig(t *testing.T, fabric bool) wire.PayloadConfiguration {
	t.Helper()
	fs := wire.FrameshiftConfig{ChunkMin: 2, ChunkMax: 5, ShiftMin: 0, ShiftMax: 3}
	encoded, err := wire.Encode(fs)
	if err != nil {
		t.Fatalf("encode frameshift config: %v", err)
	}
	cfg := wire.PayloadConfiguration{
		SchemeName:           manifest.LayoutFrameshift,
		PrimaryPRNGName:      "Salsa20Csprng",
		PrimaryPRNGConfig:    bytes.Repeat([]byte{0x08}, 32),
		SchemeSpecificConfig: encoded,
	}
	if fabric {
		cfg.SchemeName = manifest.LayoutFabric
		cfg.SecondaryPRNGName = "Salsa20Csprng"
		cfg.SecondaryPRNGConfig = bytes.Repeat([]byte{0x09}, 32)
	}
	return cfg
}

// nopWriteCloser adapts a *bytes.Buffer to io.WriteCloser so tests can hand
// OpenSink a closure without needing a real file.
type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func readItemsFrom(writeItems []WriteItem, payloadItems []wire.PayloadItem) ([]ReadItem, []*bytes.Buffer) {
	sinks := make([]*bytes.Buffer, len(writeItems))
	readItems := make([]ReadItem, len(writeItems))
	for i, wi := range writeItems {
		sinks[i] = &bytes.Buffer{}
		buf := sinks[i]
		readItems[i] = ReadItem{
			Identifier:     wi.Identifier,
			Type:           wi.Type,
			Path:           wi.Path,
			InternalLength: payloadItems[i].InternalLength,
			CipherCfg:      wi.CipherCfg,
			AuthCfg:        wi.AuthCfg,
			CipherKey:      wi.CipherKey,
			MACKey:         wi.MACKey,
			OpenSink:       func() (io.WriteCloser, error) { return nopWriteCloser{buf}, nil },
		}
	}
	return readItems, sinks
}

func TestRoundtripSimple(t *testing.T) {
	writeItems := makeWriteItems("hello", "world", "!")
	var buf bytes.Buffer
	payloadItems, err := Write(&buf, writeItems, simplePayloadConfig())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	readItems, sinks := readItemsFrom(writeItems, payloadItems)
	if err := Read(bytes.NewReader(buf.Bytes()), readItems, simplePayloadConfig()); err != nil {
		t.Fatalf("Read: %v", err)
	}

	want := []string{"hello", "world", "!"}
	for i, s := range sinks {
		if s.String() != want[i] {
			t.Errorf("item %d = %q; want %q", i, s.String(), want[i])
		}
	}
}

func TestRoundtripFrameshift(t *testing.T) {
	writeItems := makeWriteItems("the quick brown fox", "jumps over", "a lazy dog indeed")
	cfg := frameshiftPayloadConfig(t, false)

	var buf bytes.Buffer
	payloadItems, err := Write(&buf, writeItems, cfg)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	readItems, sinks := readItemsFrom(writeItems, payloadItems)
	if err := Read(bytes.NewReader(buf.Bytes()), readItems, cfg); err != nil {
		t.Fatalf("Read: %v", err)
	}

	want := []string{"the quick brown fox", "jumps over", "a lazy dog indeed"}
	for i, s := range sinks {
		if s.String() != want[i] {
			t.Errorf("item %d = %q; want %q", i, s.String(), want[i])
		}
	}
}

func TestRoundtripFabric(t *testing.T) {
	writeItems := makeWriteItems("fabric item one", "fabric item two")
	cfg := frameshiftPayloadConfig(t, true)

	var buf bytes.Buffer
	payloadItems, err := Write(&buf, writeItems, cfg)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	readItems, sinks := readItemsFrom(writeItems, payloadItems)
	if err := Read(bytes.NewReader(buf.Bytes()), readItems, cfg); err != nil {
		t.Fatalf("Read: %v", err)
	}

	want := []string{"fabric item one", "fabric item two"}
	for i, s := range sinks {
		if s.String() != want[i] {
			t.Errorf("item %d = %q; want %q", i, s.String(), want[i])
		}
	}
}

func TestReadDetectsTamperedItem(t *testing.T) {
	writeItems := makeWriteItems("hello", "world")
	var buf bytes.Buffer
	payloadItems, err := Write(&buf, writeItems, simplePayloadConfig())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	tampered := buf.Bytes()
	tampered[0] ^= 0xFF

	readItems, _ := readItemsFrom(writeItems, payloadItems)
	err = Read(bytes.NewReader(tampered), readItems, simplePayloadConfig())
	if !obscurerr.Is(err, obscurerr.ErrCiphertextAuthenticationFailed) {
		t.Errorf("expected ErrCiphertextAuthenticationFailed, got %v", err)
	}
}

func TestEmptyAndSingleByteItems(t *testing.T) {
	writeItems := makeWriteItems("", "x")
	var buf bytes.Buffer
	payloadItems, err := Write(&buf, writeItems, simplePayloadConfig())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	readItems, sinks := readItemsFrom(writeItems, payloadItems)
	if err := Read(bytes.NewReader(buf.Bytes()), readItems, simplePayloadConfig()); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if sinks[0].String() != "" || sinks[1].String() != "x" {
		t.Errorf("unexpected sink contents: %q, %q", sinks[0].String(), sinks[1].String())
	}
}
