package errors

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrTruncatedInput", ErrTruncatedInput},
		{"ErrMalformedStructure", ErrMalformedStructure},
		{"ErrUnsupportedVersion", ErrUnsupportedVersion},
		{"ErrUnknownScheme", ErrUnknownScheme},
		{"ErrConfigurationInvalid", ErrConfigurationInvalid},
		{"ErrKeyNotFound", ErrKeyNotFound},
		{"ErrCiphertextAuthenticationFailed", ErrCiphertextAuthenticationFailed},
		{"ErrCryptoInternal", ErrCryptoInternal},
		{"ErrIo", ErrIo},
		{"ErrWriterAlreadyUsed", ErrWriterAlreadyUsed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Error("sentinel error should not be nil")
			}
			if tt.err.Error() == "" {
				t.Error("sentinel error should have a message")
			}
		})
	}
}

func TestCryptoError(t *testing.T) {
	baseErr := errors.New("underlying error")
	cryptoErr := NewCryptoError("kdf", baseErr)

	if cryptoErr.Error() != "crypto kdf: internal crypto error\nunderlying error" {
		t.Errorf("unexpected error message: %s", cryptoErr.Error())
	}
	if !errors.Is(cryptoErr, ErrCryptoInternal) {
		t.Error("CryptoError should wrap ErrCryptoInternal")
	}
	if !errors.Is(cryptoErr, baseErr) {
		t.Error("CryptoError should wrap the underlying error")
	}
}

func TestIoError(t *testing.T) {
	baseErr := errors.New("short read")
	ioErr := NewIoError("read", baseErr)

	if !errors.Is(ioErr, ErrIo) {
		t.Error("IoError should wrap ErrIo")
	}
	if !errors.Is(ioErr, baseErr) {
		t.Error("IoError should wrap the underlying error")
	}
}

func TestStructureError(t *testing.T) {
	structErr := NewStructureError("header_tag", ErrMalformedStructure)

	if structErr.Error() != "structure header_tag: malformed structure" {
		t.Errorf("unexpected error message: %s", structErr.Error())
	}
	if !errors.Is(structErr, ErrMalformedStructure) {
		t.Error("StructureError should unwrap to its cause")
	}
}

func TestAggregateKeyNotFound(t *testing.T) {
	agg := &AggregateKeyNotFound{Misses: []ItemKeyMiss{
		{Identifier: "id-1", Path: "a.txt"},
		{Identifier: "id-2", Path: "b.txt"},
	}}

	if !errors.Is(agg, ErrKeyNotFound) {
		t.Error("AggregateKeyNotFound should unwrap to ErrKeyNotFound")
	}
	if got := agg.Error(); got == "" {
		t.Error("expected non-empty message")
	}
}

func TestItemAuthenticationFailure(t *testing.T) {
	fail := &ItemAuthenticationFailure{Misses: []ItemKeyMiss{
		{Identifier: "id-1", Path: "a.txt"},
	}}

	if !errors.Is(fail, ErrCiphertextAuthenticationFailed) {
		t.Error("ItemAuthenticationFailure should unwrap to ErrCiphertextAuthenticationFailed")
	}
	if !IsAuthenticationFailure(fail) {
		t.Error("IsAuthenticationFailure should recognise ItemAuthenticationFailure")
	}
	if got := fail.Error(); got == "" {
		t.Error("expected non-empty message")
	}
}

func TestIs(t *testing.T) {
	if !Is(ErrTruncatedInput, ErrTruncatedInput) {
		t.Error("Is should return true for same error")
	}
	if Is(ErrTruncatedInput, ErrMalformedStructure) {
		t.Error("Is should return false for different errors")
	}
}

func TestAs(t *testing.T) {
	cryptoErr := NewCryptoError("test", errors.New("test"))

	var target *CryptoError
	if !As(cryptoErr, &target) {
		t.Error("As should find CryptoError")
	}
	if target.Op != "test" {
		t.Errorf("unexpected Op: %s", target.Op)
	}
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base")
	wrapped := Wrap(baseErr, "context")

	if wrapped.Error() != "context: base" {
		t.Errorf("unexpected wrapped message: %s", wrapped.Error())
	}
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestConvenienceFunctions(t *testing.T) {
	if !IsAuthenticationFailure(ErrCiphertextAuthenticationFailed) {
		t.Error("IsAuthenticationFailure should return true for ErrCiphertextAuthenticationFailed")
	}
	if IsAuthenticationFailure(ErrIo) {
		t.Error("IsAuthenticationFailure should return false for other errors")
	}
	if !IsKeyNotFound(ErrKeyNotFound) {
		t.Error("IsKeyNotFound should return true for ErrKeyNotFound")
	}

	agg := &AggregateKeyNotFound{Misses: []ItemKeyMiss{{Identifier: "x", Path: "y"}}}
	if !IsKeyNotFound(agg) {
		t.Error("IsKeyNotFound should unwrap AggregateKeyNotFound")
	}
}
