package usecase

import (
	"context"
	"fmt"

	"quantum-shield-service/internal/domain"
)

// SignatureService は移行状態に応じた署名の生成と検証を提供する。
// 署名モードごとに必要な署名の組を定め、ハイブリッドでは両方を要求する。
type SignatureService struct {
	keyStore  *KeyStoreService
	pqc       SignatureProvider
	classical SignatureProvider
	kms       KMSSigner
}

// NewSignatureService は新しいSignatureServiceを生成する。
func NewSignatureService(keyStore *KeyStoreService, pqc, classical SignatureProvider, kms KMSSigner) *SignatureService {
	return &SignatureService{
		keyStore:  keyStore,
		pqc:       pqc,
		classical: classical,
		kms:       kms,
	}
}

// Sign は指定されたアイデンティティの鍵でペイロードに署名する。
func (s *SignatureService) Sign(ctx context.Context, identityID string, mode domain.SignatureMode, payload []byte) (*domain.SignatureData, error) {
	identity, err := s.keyStore.LoadIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}

	sig := &domain.SignatureData{
		IdentityID: identityID,
		Mode:       mode,
	}

	if mode == domain.ModeClassical || mode == domain.ModeHybrid {
		classicalSig, err := s.signClassical(identity, payload)
		if err != nil {
			return nil, err
		}
		sig.ClassicalSignature = classicalSig
		sig.ClassicalPublicKey = identity.ClassicalKeys.PublicKey
		sig.Algorithm = identity.ClassicalKeys.Algorithm
	}

	if mode == domain.ModePQC || mode == domain.ModeHybrid {
		pqcSig, pubRef, err := s.signPQC(ctx, identity, payload)
		if err != nil {
			return nil, err
		}
		sig.Signature = pqcSig
		sig.PublicKey = pubRef
		sig.Algorithm = identity.SigningKeys.Algorithm
	}

	if mode == domain.ModeHybrid {
		sig.Algorithm = fmt.Sprintf("%s+%s", identity.SigningKeys.Algorithm, identity.ClassicalKeys.Algorithm)
	}

	return sig, nil
}

func (s *SignatureService) signClassical(identity *domain.Identity, payload []byte) ([]byte, error) {
	local, ok := identity.ClassicalKeys.Custody.(domain.LocalKey)
	if !ok {
		return nil, domain.ErrNoPrivateKey
	}
	signature, err := s.classical.Sign(local.SecretKey, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
	}
	return signature, nil
}

func (s *SignatureService) signPQC(ctx context.Context, identity *domain.Identity, payload []byte) ([]byte, domain.PublicKeyRef, error) {
	switch custody := identity.SigningKeys.Custody.(type) {
	case domain.LocalKey:
		signature, err := s.pqc.Sign(custody.SecretKey, payload)
		if err != nil {
			return nil, domain.PublicKeyRef{}, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
		}
		return signature, domain.PublicKeyRef{Key: identity.SigningKeys.PublicKey}, nil
	case domain.CustodialKey:
		if s.kms == nil {
			return nil, domain.PublicKeyRef{}, domain.ErrUnsupportedCustody
		}
		signature, err := s.kms.AsymmetricSign(ctx, custody.KeyID, payload)
		if err != nil {
			return nil, domain.PublicKeyRef{}, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
		}
		return signature, domain.PublicKeyRef{KeyID: custody.KeyID}, nil
	default:
		return nil, domain.PublicKeyRef{}, domain.ErrNoPrivateKey
	}
}

// Verify は署名データをペイロードに対して検証する。
// ハイブリッド署名は両方の署名が有効な場合のみ有効とみなす。
// カストディ委託鍵の署名はプロセス内では検証できない。
func (s *SignatureService) Verify(ctx context.Context, sig *domain.SignatureData, payload []byte) (bool, error) {
	switch sig.Mode {
	case domain.ModeClassical:
		return s.verifyClassical(sig, payload)
	case domain.ModePQC:
		return s.verifyPQC(sig, payload)
	case domain.ModeHybrid:
		classicalOK, err := s.verifyClassical(sig, payload)
		if err != nil {
			return false, err
		}
		if !classicalOK {
			return false, nil
		}
		return s.verifyPQC(sig, payload)
	default:
		return false, fmt.Errorf("%w: unknown signature mode %q", domain.ErrCryptoOperation, sig.Mode)
	}
}

func (s *SignatureService) verifyClassical(sig *domain.SignatureData, payload []byte) (bool, error) {
	if len(sig.ClassicalSignature) == 0 || len(sig.ClassicalPublicKey) == 0 {
		return false, nil
	}
	ok, err := s.classical.Verify(sig.ClassicalPublicKey, payload, sig.ClassicalSignature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
	}
	return ok, nil
}

func (s *SignatureService) verifyPQC(sig *domain.SignatureData, payload []byte) (bool, error) {
	if sig.PublicKey.IsCustodial() {
		return false, domain.ErrUnsupportedCustody
	}
	if len(sig.Signature) == 0 || len(sig.PublicKey.Key) == 0 {
		return false, nil
	}
	ok, err := s.pqc.Verify(sig.PublicKey.Key, payload, sig.Signature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
	}
	return ok, nil
}
