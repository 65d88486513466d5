package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// MLDSAProvider はML-DSA-65（FIPS 204）による署名プロバイダ。
type MLDSAProvider struct {
	scheme sign.Scheme
}

// NewMLDSAProvider は新しいMLDSAProviderを生成する。
func NewMLDSAProvider() *MLDSAProvider {
	return &MLDSAProvider{scheme: mldsa65.Scheme()}
}

// Algorithm はアルゴリズム名を返す。
func (p *MLDSAProvider) Algorithm() string {
	return "ML-DSA-65"
}

// GenerateKeyPair は新しい鍵ペアを生成し、シリアライズ済みバイト列で返す。
func (p *MLDSAProvider) GenerateKeyPair() (publicKey, secretKey []byte, err error) {
	pub, sec, err := p.scheme.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generating ML-DSA key pair: %w", err)
	}
	publicKey, err = pub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling ML-DSA public key: %w", err)
	}
	secretKey, err = sec.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling ML-DSA secret key: %w", err)
	}
	return publicKey, secretKey, nil
}

// Sign はペイロードに署名する。
func (p *MLDSAProvider) Sign(secretKey, payload []byte) ([]byte, error) {
	sec, err := p.scheme.UnmarshalBinaryPrivateKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling ML-DSA secret key: %w", err)
	}
	return p.scheme.Sign(sec, payload, nil), nil
}

// Verify は署名を検証する。鍵の形式不正はエラー、署名不一致はfalseを返す。
func (p *MLDSAProvider) Verify(publicKey, payload, signature []byte) (bool, error) {
	pub, err := p.scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return false, fmt.Errorf("unmarshaling ML-DSA public key: %w", err)
	}
	return p.scheme.Verify(pub, payload, signature, nil), nil
}
