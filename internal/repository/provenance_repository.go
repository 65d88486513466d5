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

// ProvenanceRepository は来歴チェーンのデータアクセスを提供する。
type ProvenanceRepository struct {
	db *gorm.DB
}

// NewProvenanceRepository は新しいProvenanceRepositoryを生成する。
func NewProvenanceRepository(db *gorm.DB) *ProvenanceRepository {
	return &ProvenanceRepository{db: db}
}

// CreateChain は新しい来歴チェーンを作成する。
func (r *ProvenanceRepository) CreateChain(ctx context.Context, chain *domain.ProvenanceChain) error {
	model := &ProvenanceChainModel{
		ShieldID:     chain.ShieldID,
		AssetID:      chain.AssetID,
		CurrentOwner: chain.CurrentOwner,
		CreatedAt:    chain.CreatedAt.UTC(),
		LastUpdated:  chain.LastUpdated.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create provenance chain",
			"operation", "create_chain",
			"shield_id", chain.ShieldID,
			"error", err,
		)
		return err
	}
	return nil
}

// AppendEvent はイベントの追記とチェーンヘッドの更新を単一トランザクションで行う。
// currentOwnerが空でない場合は所有者も更新する。
func (r *ProvenanceRepository) AppendEvent(ctx context.Context, event *domain.ProvenanceEvent, currentOwner string) error {
	model, err := eventToModel(event)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		updates := map[string]any{
			"last_updated": event.Timestamp.UTC(),
		}
		if currentOwner != "" {
			updates["current_owner"] = currentOwner
		}
		result := tx.Model(&ProvenanceChainModel{}).
			Where("shield_id = ?", event.ShieldID).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrChainNotFound
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to append provenance event",
			"operation", "append_event",
			"shield_id", event.ShieldID,
			"event_type", event.EventType,
			"position", event.Position,
			"error", err,
		)
		return err
	}
	return nil
}

// FindChain はチェーンと全イベントをposition昇順で取得する。存在しなければnilを返す。
func (r *ProvenanceRepository) FindChain(ctx context.Context, shieldID string) (*domain.ProvenanceChain, error) {
	var chainModel ProvenanceChainModel
	err := r.db.WithContext(ctx).Where("shield_id = ?", shieldID).First(&chainModel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find provenance chain",
			"operation", "find_chain",
			"shield_id", shieldID,
			"error", err,
		)
		return nil, err
	}

	var eventModels []ProvenanceEventModel
	err = r.db.WithContext(ctx).
		Where("shield_id = ?", shieldID).
		Order("position ASC").
		Find(&eventModels).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find provenance events",
			"operation", "find_chain",
			"shield_id", shieldID,
			"error", err,
		)
		return nil, err
	}

	events := make([]*domain.ProvenanceEvent, len(eventModels))
	for i, m := range eventModels {
		event, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		events[i] = event
	}

	return &domain.ProvenanceChain{
		ShieldID:     chainModel.ShieldID,
		AssetID:      chainModel.AssetID,
		Events:       events,
		CurrentOwner: chainModel.CurrentOwner,
		CreatedAt:    chainModel.CreatedAt.UTC().Truncate(time.Microsecond),
		LastUpdated:  chainModel.LastUpdated.UTC().Truncate(time.Microsecond),
	}, nil
}

// CountEvents は指定シールドのイベント数を返す。
func (r *ProvenanceRepository) CountEvents(ctx context.Context, shieldID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ProvenanceEventModel{}).
		Where("shield_id = ?", shieldID).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count provenance events",
			"operation", "count_events",
			"shield_id", shieldID,
			"error", err,
		)
		return 0, err
	}
	return count, nil
}

func eventToModel(event *domain.ProvenanceEvent) (*ProvenanceEventModel, error) {
	sigJSON, err := marshalSignature(event.Signature)
	if err != nil {
		return nil, err
	}

	var dataJSON []byte
	if event.Data != nil {
		dataJSON, err = json.Marshal(event.Data)
		if err != nil {
			return nil, fmt.Errorf("marshaling event data: %w", err)
		}
	}

	return &ProvenanceEventModel{
		ID:            event.EventID,
		ShieldID:      event.ShieldID,
		Position:      event.Position,
		EventType:     string(event.EventType),
		Actor:         event.Actor,
		DataJSON:      dataJSON,
		SignatureJSON: sigJSON,
		TopicID:       event.LedgerProof.TopicID,
		TransactionID: event.LedgerProof.TransactionID,
		Sequence:      event.LedgerProof.SequenceNumber,
		Timestamp:     event.Timestamp.UTC(),
	}, nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *ProvenanceEventModel) toDomain() (*domain.ProvenanceEvent, error) {
	sig, err := unmarshalSignature(m.SignatureJSON)
	if err != nil {
		return nil, err
	}

	var data map[string]any
	if len(m.DataJSON) > 0 {
		if err := json.Unmarshal(m.DataJSON, &data); err != nil {
			return nil, fmt.Errorf("unmarshaling event data: %w", err)
		}
	}

	return &domain.ProvenanceEvent{
		EventID:   m.ID,
		ShieldID:  m.ShieldID,
		EventType: domain.ProvenanceEventType(m.EventType),
		Position:  m.Position,
		Timestamp: m.Timestamp.UTC().Truncate(time.Microsecond),
		Actor:     m.Actor,
		Data:      data,
		Signature: sig,
		LedgerProof: domain.LedgerProof{
			TopicID:        m.TopicID,
			TransactionID:  m.TransactionID,
			SequenceNumber: m.Sequence,
		},
	}, nil
}
