package crypto

import (
	"bytes"
	"testing"
)

func TestMLKEMProvider_EncapsulateDecapsulate(t *testing.T) {
	p := NewMLKEMProvider()

	pub, sec, err := p.GenerateKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ciphertext, sharedSecret, err := p.Encapsulate(pub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recovered, err := p.Decapsulate(sec, ciphertext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(sharedSecret, recovered) {
		t.Error("want identical shared secrets after decapsulation")
	}
}

func TestMLKEMProvider_Encapsulate_MalformedKey(t *testing.T) {
	p := NewMLKEMProvider()

	if _, _, err := p.Encapsulate([]byte("not a key")); err == nil {
		t.Error("want error for malformed public key, got nil")
	}
}

func TestMLKEMProvider_Algorithm(t *testing.T) {
	if got := NewMLKEMProvider().Algorithm(); got != "ML-KEM-768" {
		t.Errorf("want ML-KEM-768, got %s", got)
	}
}
