// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"quantum-shield-service/internal/domain"
)

// SignatureProvider は署名アルゴリズムのインターフェース。
type SignatureProvider interface {
	Algorithm() string
	GenerateKeyPair() (publicKey, secretKey []byte, err error)
	Sign(secretKey, payload []byte) ([]byte, error)
	Verify(publicKey, payload, signature []byte) (bool, error)
}

// KEMProvider は鍵カプセル化アルゴリズムのインターフェース。
type KEMProvider interface {
	Algorithm() string
	GenerateKeyPair() (publicKey, secretKey []byte, err error)
	Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error)
	Decapsulate(secretKey, ciphertext []byte) ([]byte, error)
}

// KMSSigner は外部カストディアンの署名操作のインターフェース。
type KMSSigner interface {
	AsymmetricSign(ctx context.Context, keyName string, data []byte) ([]byte, error)
	PublicKey(ctx context.Context, keyName string) ([]byte, error)
}

// IdentityRepository はアイデンティティのデータアクセスのインターフェース。
type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
}

// KeyStoreService はポスト量子アイデンティティの生成と管理を提供する。
// 生成済みアイデンティティはプロセス内にキャッシュし、永続化層と併用する。
type KeyStoreService struct {
	repo         IdentityRepository
	pqcSigner    SignatureProvider
	classical    SignatureProvider
	kemProvider  KEMProvider
	kms          KMSSigner
	kmsKeyName   string
	rotationDays int

	mu    sync.RWMutex
	cache map[string]*domain.Identity

	now func() time.Time
}

// NewKeyStoreService は新しいKeyStoreServiceを生成する。
// kmsがnilでなくkmsKeyNameが指定されている場合、PQC署名鍵は
// 外部カストディアンに委託され、秘密鍵素材はプロセス内に保持されない。
func NewKeyStoreService(repo IdentityRepository, pqcSigner, classical SignatureProvider, kemProvider KEMProvider, kms KMSSigner, kmsKeyName string, rotationDays int) *KeyStoreService {
	return &KeyStoreService{
		repo:         repo,
		pqcSigner:    pqcSigner,
		classical:    classical,
		kemProvider:  kemProvider,
		kms:          kms,
		kmsKeyName:   kmsKeyName,
		rotationDays: rotationDays,
		cache:        make(map[string]*domain.Identity),
		now:          time.Now,
	}
}

// GenerateIdentity は署名鍵・KEM鍵・古典鍵を持つ新しいアイデンティティを生成する。
func (s *KeyStoreService) GenerateIdentity(ctx context.Context, name string) (*domain.Identity, error) {
	created := s.now().UTC()

	signingKeys, err := s.generateSigningKeys(ctx, created)
	if err != nil {
		return nil, err
	}

	kemPub, kemSec, err := s.kemProvider.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
	}

	classicalPub, classicalSec, err := s.classical.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
	}

	identity := &domain.Identity{
		ID:          uuid.NewString(),
		Name:        name,
		Created:     created,
		SigningKeys: signingKeys,
		KEMKeys: domain.KEMKeyPair{
			Algorithm: s.kemProvider.Algorithm(),
			PublicKey: kemPub,
			Custody:   domain.LocalKey{SecretKey: kemSec},
			Created:   created,
		},
		ClassicalKeys: domain.SigningKeyPair{
			Algorithm: s.classical.Algorithm(),
			PublicKey: classicalPub,
			Custody:   domain.LocalKey{SecretKey: classicalSec},
			Created:   created,
		},
		RotationDays: s.rotationDays,
	}

	if err := s.repo.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("creating identity: %w", err)
	}

	s.mu.Lock()
	s.cache[identity.ID] = identity
	s.mu.Unlock()

	return identity, nil
}

// generateSigningKeys はPQC署名鍵を生成する。カストディ委託が設定されている
// 場合は鍵生成を行わず、カストディアン側の公開鍵参照のみを保持する。
func (s *KeyStoreService) generateSigningKeys(ctx context.Context, created time.Time) (domain.SigningKeyPair, error) {
	if s.kms != nil && s.kmsKeyName != "" {
		pub, err := s.kms.PublicKey(ctx, s.kmsKeyName)
		if err != nil {
			return domain.SigningKeyPair{}, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
		}
		return domain.SigningKeyPair{
			Algorithm: s.pqcSigner.Algorithm(),
			PublicKey: pub,
			Custody:   domain.CustodialKey{KeyID: s.kmsKeyName},
			Created:   created,
		}, nil
	}

	pub, sec, err := s.pqcSigner.GenerateKeyPair()
	if err != nil {
		return domain.SigningKeyPair{}, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
	}
	return domain.SigningKeyPair{
		Algorithm: s.pqcSigner.Algorithm(),
		PublicKey: pub,
		Custody:   domain.LocalKey{SecretKey: sec},
		Created:   created,
	}, nil
}

// LoadIdentity は指定されたIDのアイデンティティを取得する。
// キャッシュを優先し、ミス時は永続化層から読み込む。
func (s *KeyStoreService) LoadIdentity(ctx context.Context, id string) (*domain.Identity, error) {
	s.mu.RLock()
	identity, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return identity, nil
	}

	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding identity: %w", err)
	}
	if identity == nil {
		return nil, domain.ErrIdentityNotFound
	}

	s.mu.Lock()
	s.cache[id] = identity
	s.mu.Unlock()

	return identity, nil
}

// NeedsRotation は鍵ローテーションの期限を過ぎているかを返す。
func (s *KeyStoreService) NeedsRotation(identity *domain.Identity) bool {
	if identity.RotationDays <= 0 {
		return false
	}
	age := s.now().Sub(identity.Created)
	return age >= time.Duration(identity.RotationDays)*24*time.Hour
}

// Status はアイデンティティの状態サマリを返す。鍵素材は含まない。
func (s *KeyStoreService) Status(ctx context.Context, id string) (*domain.IdentityStatus, error) {
	identity, err := s.LoadIdentity(ctx, id)
	if err != nil {
		return nil, err
	}

	_, custodial := identity.SigningKeys.Custody.(domain.CustodialKey)
	return &domain.IdentityStatus{
		ID:            identity.ID,
		Name:          identity.Name,
		Created:       identity.Created.UTC().Format(time.RFC3339),
		NeedsRotation: s.NeedsRotation(identity),
		SigningAlg:    identity.SigningKeys.Algorithm,
		KEMAlg:        identity.KEMKeys.Algorithm,
		Custodial:     custodial,
	}, nil
}
