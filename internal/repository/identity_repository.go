package repository

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"quantum-shield-service/internal/domain"
)

// IdentityRepository はアイデンティティのデータアクセスを提供する。
type IdentityRepository struct {
	db *gorm.DB
}

// NewIdentityRepository は新しいIdentityRepositoryを生成する。
func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create は新しいアイデンティティを保存する。
// カストディ委託された鍵の秘密素材は保存されない。
func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	signingSecret, signingRef := encodeCustody(identity.SigningKeys.Custody)
	kemSecret, _ := encodeCustody(identity.KEMKeys.Custody)
	classicalSecret, _ := encodeCustody(identity.ClassicalKeys.Custody)

	model := &IdentityModel{
		ID:                 identity.ID,
		Name:               identity.Name,
		SigningAlgorithm:   identity.SigningKeys.Algorithm,
		SigningPublicKey:   hex.EncodeToString(identity.SigningKeys.PublicKey),
		SigningSecretKey:   signingSecret,
		SigningKeyRef:      signingRef,
		KEMAlgorithm:       identity.KEMKeys.Algorithm,
		KEMPublicKey:       hex.EncodeToString(identity.KEMKeys.PublicKey),
		KEMSecretKey:       kemSecret,
		ClassicalPublicKey: hex.EncodeToString(identity.ClassicalKeys.PublicKey),
		ClassicalSecretKey: classicalSecret,
		RotationDays:       identity.RotationDays,
		CreatedAt:          identity.Created,
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create identity",
			"operation", "create_identity",
			"identity_id", identity.ID,
			"error", err,
		)
		return err
	}
	return nil
}

// FindByID は指定されたIDのアイデンティティを取得する。存在しなければnilを返す。
func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	var model IdentityModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find identity",
			"operation", "find_identity_by_id",
			"identity_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain()
}

// toDomain はモデルをドメインエンティティに変換する。
// hexエンコードされた鍵素材をバイナリに復元する。
func (m *IdentityModel) toDomain() (*domain.Identity, error) {
	signingPub, err := hex.DecodeString(m.SigningPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding signing public key: %w", err)
	}
	signingCustody, err := decodeCustody(m.SigningSecretKey, m.SigningKeyRef)
	if err != nil {
		return nil, err
	}

	kemPub, err := hex.DecodeString(m.KEMPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding KEM public key: %w", err)
	}
	kemCustody, err := decodeCustody(m.KEMSecretKey, "")
	if err != nil {
		return nil, err
	}

	classicalPub, err := hex.DecodeString(m.ClassicalPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding classical public key: %w", err)
	}
	classicalCustody, err := decodeCustody(m.ClassicalSecretKey, "")
	if err != nil {
		return nil, err
	}

	return &domain.Identity{
		ID:      m.ID,
		Name:    m.Name,
		Created: m.CreatedAt,
		SigningKeys: domain.SigningKeyPair{
			Algorithm: m.SigningAlgorithm,
			PublicKey: signingPub,
			Custody:   signingCustody,
			Created:   m.CreatedAt,
		},
		KEMKeys: domain.KEMKeyPair{
			Algorithm: m.KEMAlgorithm,
			PublicKey: kemPub,
			Custody:   kemCustody,
			Created:   m.CreatedAt,
		},
		ClassicalKeys: domain.SigningKeyPair{
			Algorithm: "Ed25519",
			PublicKey: classicalPub,
			Custody:   classicalCustody,
			Created:   m.CreatedAt,
		},
		RotationDays: m.RotationDays,
	}, nil
}
