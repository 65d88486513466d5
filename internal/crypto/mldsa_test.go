package crypto

import "testing"

func TestMLDSAProvider_SignVerify_RoundTrip(t *testing.T) {
	p := NewMLDSAProvider()

	pub, sec, err := p.GenerateKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := []byte(`{"asset_id":"0.0.100:1","name":"Test"}`)
	sig, err := p.Sign(sec, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := p.Verify(pub, payload, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("want valid signature, got invalid")
	}
}

func TestMLDSAProvider_Verify_AlteredPayload(t *testing.T) {
	p := NewMLDSAProvider()

	pub, sec, err := p.GenerateKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := []byte("original payload")
	sig, err := p.Sign(sec, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	altered := append([]byte(nil), payload...)
	altered[0] ^= 0x01

	ok, err := p.Verify(pub, altered, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("want invalid signature for altered payload, got valid")
	}
}

func TestMLDSAProvider_Verify_AlteredSignature(t *testing.T) {
	p := NewMLDSAProvider()

	pub, sec, err := p.GenerateKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := []byte("payload")
	sig, err := p.Sign(sec, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig[0] ^= 0x01

	ok, err := p.Verify(pub, payload, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("want invalid signature for altered signature, got valid")
	}
}

func TestMLDSAProvider_Verify_MalformedKey(t *testing.T) {
	p := NewMLDSAProvider()

	if _, err := p.Verify([]byte("not a key"), []byte("payload"), []byte("sig")); err == nil {
		t.Error("want error for malformed public key, got nil")
	}
}

func TestMLDSAProvider_Algorithm(t *testing.T) {
	if got := NewMLDSAProvider().Algorithm(); got != "ML-DSA-65" {
		t.Errorf("want ML-DSA-65, got %s", got)
	}
}
