package secure

import (
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	b, err := NewBox("an encryption key")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	sealed, err := b.Seal([]byte(`[{"role":"user","text":"hi"}]`))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	plain, err := b.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(plain) != `[{"role":"user","text":"hi"}]` {
		t.Fatalf("plain = %q", plain)
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	b, _ := NewBox("k")
	a1, _ := b.Seal([]byte("same"))
	a2, _ := b.Seal([]byte("same"))
	if a1 == a2 {
		t.Fatalf("expected distinct ciphertexts")
	}
}

func TestOpenRejectsWrongKeyAndGarbage(t *testing.T) {
	a, _ := NewBox("key-a")
	b, _ := NewBox("key-b")
	sealed, _ := a.Seal([]byte("secret"))
	if _, err := b.Open(sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if _, err := a.Open("not base64!"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestNewBoxRequiresKey(t *testing.T) {
	if _, err := NewBox(" "); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}
