package crypto

import "testing"

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	sealer, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer() error: %v", err)
	}

	plaintext := []byte(`{"access_token":"shpat_abc123"}`)

	sealed, err := sealer.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if string(sealed) == string(plaintext) {
		t.Fatal("sealed blob must not equal plaintext")
	}

	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Errorf("Open() = %q, want %q", opened, plaintext)
	}
}

func TestOpenWrongKeyFails(t *testing.T) {
	keyA, _ := GenerateKey()
	keyB, _ := GenerateKey()

	sealerA, err := NewSealer(keyA)
	if err != nil {
		t.Fatalf("NewSealer(A) error: %v", err)
	}
	sealerB, err := NewSealer(keyB)
	if err != nil {
		t.Fatalf("NewSealer(B) error: %v", err)
	}

	sealed, err := sealerA.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	if _, err := sealerB.Open(sealed); err == nil {
		t.Fatal("expected Open() with wrong key to fail")
	}
}

func TestNewSealerRejectsBadKeyLength(t *testing.T) {
	if _, err := NewSealer("dG9vc2hvcnQ="); err == nil {
		t.Fatal("expected error for undersized key")
	}
}

func TestOpenRejectsTruncatedBlob(t *testing.T) {
	key, _ := GenerateKey()
	sealer, _ := NewSealer(key)

	if _, err := sealer.Open([]byte("short")); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}
