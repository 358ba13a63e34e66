package keyderive

import (
	"bytes"
	"testing"
)

func TestConfirmFindsCorrectCandidate(t *testing.T) {
	fn, err := NewConfirmationFunc("Blake2B-256")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	correct := []byte("the-correct-32-byte-key-material")
	candidates := make([][]byte, 16)
	for i := range candidates {
		candidates[i] = []byte("wrong-candidate-key-material-xxx")
	}
	candidates[7] = correct

	verified, err := fn(correct)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idx, err := Confirm(candidates, verified, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != 7 {
		t.Errorf("Confirm returned index %d; want 7", idx)
	}
}

func TestConfirmNoMatch(t *testing.T) {
	fn, _ := NewConfirmationFunc("Blake2B-256")
	candidates := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	verified, _ := fn([]byte("not-in-the-pool"))

	idx, err := Confirm(candidates, verified, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != -1 {
		t.Errorf("Confirm returned index %d; want -1", idx)
	}
}

func TestConfirmEmptyPool(t *testing.T) {
	fn, _ := NewConfirmationFunc("Hmac-Sha256")
	idx, err := Confirm(nil, []byte("x"), fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != -1 {
		t.Errorf("Confirm(nil) = %d; want -1", idx)
	}
}

func TestUnknownConfirmationScheme(t *testing.T) {
	if _, err := NewConfirmationFunc("Bogus"); err == nil {
		t.Error("expected error for unknown scheme")
	}
}

func TestDeriveScryptSplitsKeys(t *testing.T) {
	preKey := []byte("a-shared-secret-pre-key")
	salt := bytes.Repeat([]byte{0x01}, 16)

	params := ScryptParams{N: 1 << 10, R: 8, P: 1}
	wk, err := DeriveScrypt(preKey, salt, 32, 32, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer wk.Close()

	if len(wk.Cipher) != 32 || len(wk.MAC) != 32 {
		t.Fatalf("unexpected key lengths: cipher=%d mac=%d", len(wk.Cipher), len(wk.MAC))
	}
	if bytes.Equal(wk.Cipher, wk.MAC) {
		t.Error("cipher and MAC keys should differ")
	}
}

func TestDeriveScryptDeterministic(t *testing.T) {
	preKey := []byte("deterministic-pre-key")
	salt := bytes.Repeat([]byte{0x02}, 16)
	params := ScryptParams{N: 1 << 10, R: 8, P: 1}

	wk1, err := DeriveScrypt(preKey, salt, 16, 16, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wk2, err := DeriveScrypt(preKey, salt, 16, 16, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(wk1.Cipher, wk2.Cipher) || !bytes.Equal(wk1.MAC, wk2.MAC) {
		t.Error("DeriveScrypt should be deterministic for the same inputs")
	}
}

func TestDerivePBKDF2(t *testing.T) {
	preKey := []byte("pbkdf2-pre-key")
	salt := bytes.Repeat([]byte{0x03}, 16)
	params := PBKDF2Params{Iterations: 1000, HashSize: 32}

	wk, err := DerivePBKDF2(preKey, salt, 24, 24, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer wk.Close()
	if len(wk.Cipher) != 24 || len(wk.MAC) != 24 {
		t.Fatalf("unexpected key lengths: cipher=%d mac=%d", len(wk.Cipher), len(wk.MAC))
	}
}

func TestWorkingKeysCloseZeroes(t *testing.T) {
	wk := &WorkingKeys{Cipher: []byte{1, 2, 3}, MAC: []byte{4, 5, 6}}
	wk.Close()
	if wk.Cipher != nil || wk.MAC != nil {
		t.Error("Close should nil out key fields")
	}
}
