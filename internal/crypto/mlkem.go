package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// MLKEMProvider はML-KEM-768（FIPS 203）による鍵カプセル化プロバイダ。
type MLKEMProvider struct {
	scheme kem.Scheme
}

// NewMLKEMProvider は新しいMLKEMProviderを生成する。
func NewMLKEMProvider() *MLKEMProvider {
	return &MLKEMProvider{scheme: mlkem768.Scheme()}
}

// Algorithm はアルゴリズム名を返す。
func (p *MLKEMProvider) Algorithm() string {
	return "ML-KEM-768"
}

// GenerateKeyPair は新しい鍵ペアを生成し、シリアライズ済みバイト列で返す。
func (p *MLKEMProvider) GenerateKeyPair() (publicKey, secretKey []byte, err error) {
	pub, sec, err := p.scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generating ML-KEM key pair: %w", err)
	}
	publicKey, err = pub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling ML-KEM public key: %w", err)
	}
	secretKey, err = sec.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling ML-KEM secret key: %w", err)
	}
	return publicKey, secretKey, nil
}

// Encapsulate は公開鍵に対して共有秘密をカプセル化する。
func (p *MLKEMProvider) Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	pub, err := p.scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("unmarshaling ML-KEM public key: %w", err)
	}
	ciphertext, sharedSecret, err = p.scheme.Encapsulate(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("encapsulating shared secret: %w", err)
	}
	return ciphertext, sharedSecret, nil
}

// Decapsulate は秘密鍵で共有秘密を復元する。
func (p *MLKEMProvider) Decapsulate(secretKey, ciphertext []byte) ([]byte, error) {
	sec, err := p.scheme.UnmarshalBinaryPrivateKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling ML-KEM secret key: %w", err)
	}
	sharedSecret, err := p.scheme.Decapsulate(sec, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decapsulating shared secret: %w", err)
	}
	return sharedSecret, nil
}
