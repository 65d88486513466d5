package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"quantum-shield-service/internal/domain"
)

// ShieldRepository はシールドのデータアクセスを提供する。
type ShieldRepository struct {
	db *gorm.DB
}

// NewShieldRepository は新しいShieldRepositoryを生成する。
func NewShieldRepository(db *gorm.DB) *ShieldRepository {
	return &ShieldRepository{db: db}
}

// Create は新しいシールドを保存する。
func (r *ShieldRepository) Create(ctx context.Context, shield *domain.Shield) error {
	model, err := shieldToModel(shield)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create shield",
			"operation", "create_shield",
			"shield_id", shield.ShieldID,
			"error", err,
		)
		return err
	}
	return nil
}

// FindByID は指定されたIDのシールドを取得する。存在しなければnilを返す。
func (r *ShieldRepository) FindByID(ctx context.Context, shieldID string) (*domain.Shield, error) {
	var model ShieldModel
	err := r.db.WithContext(ctx).Where("id = ?", shieldID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find shield",
			"operation", "find_shield_by_id",
			"shield_id", shieldID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain()
}

// FindAll は全シールドを作成順に取得する。
func (r *ShieldRepository) FindAll(ctx context.Context) ([]*domain.Shield, error) {
	var models []ShieldModel
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find shields",
			"operation", "find_all_shields",
			"error", err,
		)
		return nil, err
	}

	shields := make([]*domain.Shield, len(models))
	for i, m := range models {
		shield, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		shields[i] = shield
	}
	return shields, nil
}

// UpdateMigration は移行後のシールド状態・署名・レジャー証明を更新する。
// シールドの他のフィールドは不変のまま保持される。
func (r *ShieldRepository) UpdateMigration(ctx context.Context, shieldID string, state domain.CryptoState, sig domain.SignatureData, proof domain.LedgerProof) error {
	sigJSON, err := marshalSignature(sig)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).
		Model(&ShieldModel{}).
		Where("id = ?", shieldID).
		Updates(map[string]any{
			"migration_state": string(state),
			"signature_json":  sigJSON,
			"topic_id":        proof.TopicID,
			"transaction_id":  proof.TransactionID,
			"sequence_number": proof.SequenceNumber,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update shield migration",
			"operation", "update_migration",
			"shield_id", shieldID,
			"state", state,
			"error", err,
		)
		return err
	}
	return nil
}

func shieldToModel(shield *domain.Shield) (*ShieldModel, error) {
	sigJSON, err := marshalSignature(shield.Signature)
	if err != nil {
		return nil, err
	}

	var metadataJSON []byte
	if shield.Metadata != nil {
		metadataJSON, err = json.Marshal(shield.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling shield metadata: %w", err)
		}
	}

	model := &ShieldModel{
		ID:             shield.ShieldID,
		AssetID:        shield.AssetID,
		AssetType:      string(shield.AssetType),
		Name:           shield.Name,
		Owner:          shield.Owner,
		Category:       shield.Category,
		IdentityID:     shield.IdentityID,
		IntegrityHash:  shield.IntegrityHash,
		SignatureJSON:  sigJSON,
		TopicID:        shield.LedgerProof.TopicID,
		TransactionID:  shield.LedgerProof.TransactionID,
		SequenceNumber: shield.LedgerProof.SequenceNumber,
		MigrationState: string(shield.MigrationState),
		MetadataJSON:   metadataJSON,
		Timestamp:      shield.Timestamp.UTC(),
	}
	if shield.MetadataPin != nil {
		model.MetadataCID = shield.MetadataPin.CID
		model.MetadataURL = shield.MetadataPin.URL
	}
	return model, nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *ShieldModel) toDomain() (*domain.Shield, error) {
	sig, err := unmarshalSignature(m.SignatureJSON)
	if err != nil {
		return nil, err
	}

	var metadata map[string]any
	if len(m.MetadataJSON) > 0 {
		if err := json.Unmarshal(m.MetadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling shield metadata: %w", err)
		}
	}

	shield := &domain.Shield{
		ShieldID:      m.ID,
		AssetID:       m.AssetID,
		AssetType:     domain.AssetType(m.AssetType),
		Name:          m.Name,
		Owner:         m.Owner,
		Category:      m.Category,
		IdentityID:    m.IdentityID,
		IntegrityHash: m.IntegrityHash,
		Signature:     sig,
		LedgerProof: domain.LedgerProof{
			TopicID:        m.TopicID,
			TransactionID:  m.TransactionID,
			SequenceNumber: m.SequenceNumber,
		},
		MigrationState: domain.CryptoState(m.MigrationState),
		Metadata:       metadata,
		Timestamp:      m.Timestamp.UTC().Truncate(time.Microsecond),
	}
	if m.MetadataCID != "" {
		shield.MetadataPin = &domain.MetadataPin{CID: m.MetadataCID, URL: m.MetadataURL}
	}
	return shield, nil
}
