package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Ed25519Provider は古典署名（ed25519）のプロバイダ。
// ハイブリッド移行状態でML-DSA署名と併用される。
type Ed25519Provider struct{}

// NewEd25519Provider は新しいEd25519Providerを生成する。
func NewEd25519Provider() *Ed25519Provider {
	return &Ed25519Provider{}
}

// Algorithm はアルゴリズム名を返す。
func (p *Ed25519Provider) Algorithm() string {
	return "Ed25519"
}

// GenerateKeyPair は新しい鍵ペアを生成する。
func (p *Ed25519Provider) GenerateKeyPair() (publicKey, secretKey []byte, err error) {
	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating ed25519 key pair: %w", err)
	}
	return pub, sec, nil
}

// Sign はペイロードに署名する。
func (p *Ed25519Provider) Sign(secretKey, payload []byte) ([]byte, error) {
	if len(secretKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 secret key size: %d", len(secretKey))
	}
	return ed25519.Sign(ed25519.PrivateKey(secretKey), payload), nil
}

// Verify は署名を検証する。
func (p *Ed25519Provider) Verify(publicKey, payload, signature []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid ed25519 public key size: %d", len(publicKey))
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), payload, signature), nil
}
