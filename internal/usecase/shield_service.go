package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"quantum-shield-service/internal/crypto"
	"quantum-shield-service/internal/domain"
)

// ShieldRepository はシールドのデータアクセスのインターフェース。
type ShieldRepository interface {
	Create(ctx context.Context, shield *domain.Shield) error
	FindByID(ctx context.Context, shieldID string) (*domain.Shield, error)
	FindAll(ctx context.Context) ([]*domain.Shield, error)
	UpdateMigration(ctx context.Context, shieldID string, state domain.CryptoState, sig domain.SignatureData, proof domain.LedgerProof) error
}

// MetadataStore は外部メタデータストアのインターフェース。
type MetadataStore interface {
	UploadJSON(ctx context.Context, name string, v any) (*domain.MetadataPin, error)
}

// LedgerReader はコンセンサスログの読み出しインターフェース。
type LedgerReader interface {
	ReadMessages(ctx context.Context, topicID string, limit int) ([]domain.LedgerMessage, error)
}

// ShieldService は資産の量子安全な保護を統括する。
// 鍵生成・署名・レジャーアンカー・来歴チェーンを組み合わせる。
type ShieldService struct {
	shields    ShieldRepository
	keyStore   *KeyStoreService
	signer     *SignatureService
	provenance *ProvenanceService
	agility    *AgilityService
	anchor     *LedgerAnchor
	reader     LedgerReader
	metadata   MetadataStore

	now func() time.Time
}

// NewShieldService は新しいShieldServiceを生成する。
// metadataはnil可で、その場合メタデータのピン留めは行わない。
func NewShieldService(shields ShieldRepository, keyStore *KeyStoreService, signer *SignatureService, provenance *ProvenanceService, agility *AgilityService, anchor *LedgerAnchor, reader LedgerReader, metadata MetadataStore) *ShieldService {
	return &ShieldService{
		shields:    shields,
		keyStore:   keyStore,
		signer:     signer,
		provenance: provenance,
		agility:    agility,
		anchor:     anchor,
		reader:     reader,
		metadata:   metadata,
		now:        time.Now,
	}
}

// validateAsset は資産データを検証し、全違反を収集して返す。
func validateAsset(asset *domain.AssetData) error {
	var violations []string
	if strings.TrimSpace(asset.AssetID) == "" {
		violations = append(violations, "asset_id must not be empty")
	}
	if strings.TrimSpace(asset.Name) == "" {
		violations = append(violations, "name must not be empty")
	}
	if len(asset.Name) > 200 {
		violations = append(violations, "name must not exceed 200 characters")
	}
	if strings.TrimSpace(asset.Owner) == "" {
		violations = append(violations, "owner must not be empty")
	}
	if !domain.ValidAssetType(asset.AssetType) {
		violations = append(violations, fmt.Sprintf("asset_type %q is not one of nft, ip, document, data", asset.AssetType))
	}
	if len(violations) > 0 {
		return domain.NewValidationError(violations)
	}
	return nil
}

// ShieldAsset は資産に量子安全な保護を作成する。
// 検証、ハッシュ、アイデンティティ生成、署名、アンカー、永続化、
// 来歴チェーン初期化の順に実行し、暗号処理前に全ての検証を終える。
func (s *ShieldService) ShieldAsset(ctx context.Context, asset *domain.AssetData) (*domain.Shield, error) {
	if err := validateAsset(asset); err != nil {
		return nil, err
	}

	state := s.agility.CurrentState()
	integrityHash, err := crypto.IntegrityHash(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCryptoOperation, err)
	}

	identity, err := s.keyStore.GenerateIdentity(ctx, asset.Name)
	if err != nil {
		return nil, err
	}

	shieldID := uuid.NewString()
	timestamp := s.now().UTC().Truncate(time.Microsecond)

	payload, err := shieldPayload(shieldID, asset.AssetID, integrityHash, timestamp)
	if err != nil {
		return nil, err
	}

	mode := domain.SignatureModeFor(state)
	sig, err := s.signer.Sign(ctx, identity.ID, mode, payload)
	if err != nil {
		return nil, fmt.Errorf("signing shield: %w", err)
	}

	var pin *domain.MetadataPin
	if s.metadata != nil && len(asset.Metadata) > 0 {
		pin, err = s.metadata.UploadJSON(ctx, shieldID, asset.Metadata)
		if err != nil {
			// ピン留めは補助的な保全であり、シールド作成は継続する。
			slog.WarnContext(ctx, "failed to pin shield metadata",
				"operation", "shield_asset",
				"shield_id", shieldID,
				"error", err,
			)
			pin = nil
		}
	}

	proof, err := s.anchor.Anchor(ctx, map[string]any{
		"shield_id":       shieldID,
		"asset_id":        asset.AssetID,
		"integrity_hash":  integrityHash,
		"migration_state": string(state),
		"signature":       sig,
	})
	if err != nil {
		return nil, err
	}

	shield := &domain.Shield{
		ShieldID:       shieldID,
		AssetID:        asset.AssetID,
		AssetType:      asset.AssetType,
		Name:           asset.Name,
		Owner:          asset.Owner,
		Category:       asset.Category,
		IdentityID:     identity.ID,
		IntegrityHash:  integrityHash,
		Signature:      *sig,
		LedgerProof:    *proof,
		MigrationState: state,
		MetadataPin:    pin,
		Metadata:       asset.Metadata,
		Timestamp:      timestamp,
	}

	if err := s.shields.Create(ctx, shield); err != nil {
		// アンカー済みだが永続化に失敗した状態。
		slog.ErrorContext(ctx, "shield anchored but not persisted, reconciliation required",
			"operation", "shield_asset",
			"shield_id", shieldID,
			"topic_id", proof.TopicID,
			"sequence_number", proof.SequenceNumber,
			"error", err,
		)
		return nil, fmt.Errorf("persisting shield: %w", err)
	}

	if _, err := s.provenance.InitChain(ctx, shield); err != nil {
		return nil, fmt.Errorf("initializing provenance chain: %w", err)
	}

	return shield, nil
}

// shieldPayload は署名対象となるシールドの正規化表現を返す。
func shieldPayload(shieldID, assetID, integrityHash string, timestamp time.Time) ([]byte, error) {
	payload, err := crypto.CanonicalJSON(map[string]any{
		"shield_id":      shieldID,
		"asset_id":       assetID,
		"integrity_hash": integrityHash,
		"timestamp":      timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalizing shield payload: %w", err)
	}
	return payload, nil
}

// VerifyShield はシールドの署名と来歴チェーンを検証する。
// 純粋な読み取り操作で、状態を一切変更しない。
func (s *ShieldService) VerifyShield(ctx context.Context, shieldID string) (*domain.IntegrityVerification, error) {
	shield, err := s.GetShield(ctx, shieldID)
	if err != nil {
		return nil, err
	}

	payload, err := shieldPayload(shield.ShieldID, shield.AssetID, shield.IntegrityHash, shield.Timestamp)
	if err != nil {
		return nil, err
	}

	signatureValid, err := s.signer.Verify(ctx, &shield.Signature, payload)
	if err != nil {
		return nil, fmt.Errorf("verifying shield signature: %w", err)
	}

	provenanceValid := false
	chain, err := s.provenance.GetChain(ctx, shieldID)
	switch {
	case errors.Is(err, domain.ErrChainNotFound):
		// チェーンが無いシールドは来歴の検証に失敗させる。
	case err != nil:
		return nil, err
	default:
		provenanceValid, err = s.provenance.VerifyChain(ctx, chain)
		if err != nil {
			return nil, err
		}
	}

	var warnings []string
	if shield.MigrationState == domain.StateClassicalOnly {
		warnings = append(warnings, "WARNING: Using classical cryptography only - not quantum-safe")
	}

	return &domain.IntegrityVerification{
		ShieldID:        shieldID,
		Valid:           signatureValid && provenanceValid,
		SignatureValid:  signatureValid,
		ProvenanceValid: provenanceValid,
		IntegrityHash:   shield.IntegrityHash,
		MigrationState:  shield.MigrationState,
		VerifiedAt:      s.now().UTC(),
		Warnings:        warnings,
	}, nil
}

// GetShield は指定されたIDのシールドを取得する。
func (s *ShieldService) GetShield(ctx context.Context, shieldID string) (*domain.Shield, error) {
	shield, err := s.shields.FindByID(ctx, shieldID)
	if err != nil {
		return nil, fmt.Errorf("finding shield: %w", err)
	}
	if shield == nil {
		return nil, domain.ErrShieldNotFound
	}
	return shield, nil
}

// ListShields は全シールドを取得する。
func (s *ShieldService) ListShields(ctx context.Context) ([]*domain.Shield, error) {
	shields, err := s.shields.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing shields: %w", err)
	}
	return shields, nil
}

// GetProvenance はシールドの来歴チェーンを取得する。
func (s *ShieldService) GetProvenance(ctx context.Context, shieldID string) (*domain.ProvenanceChain, error) {
	if _, err := s.GetShield(ctx, shieldID); err != nil {
		return nil, err
	}
	return s.provenance.GetChain(ctx, shieldID)
}

// AddProvenanceEvent はシールドに来歴イベントを追加する。
func (s *ShieldService) AddProvenanceEvent(ctx context.Context, shieldID string, eventType domain.ProvenanceEventType, actor string, data map[string]any) (*domain.ProvenanceEvent, error) {
	shield, err := s.GetShield(ctx, shieldID)
	if err != nil {
		return nil, err
	}
	return s.provenance.AppendEvent(ctx, shield, eventType, actor, data)
}

// AuditAnchors は証明トピック上のアンカーをローカルの永続化状態と照合する。
// アンカー済みだが永続化されなかったレコードの検出に使う。
func (s *ShieldService) AuditAnchors(ctx context.Context, limit int) (*domain.AnchorAudit, error) {
	topicID, err := s.anchor.ProofTopic(ctx)
	if err != nil {
		return nil, err
	}

	messages, err := s.reader.ReadMessages(ctx, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading anchor messages: %w", err)
	}

	audit := &domain.AnchorAudit{
		TopicID:   topicID,
		Total:     len(messages),
		Records:   make([]domain.AnchorRecord, 0, len(messages)),
		CheckedAt: s.now().UTC(),
	}

	for _, msg := range messages {
		var payload struct {
			ShieldID string `json:"shield_id"`
			EventID  string `json:"event_id"`
			Position uint   `json:"position"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ShieldID == "" {
			slog.WarnContext(ctx, "skipping unreadable anchor message",
				"operation", "audit_anchors",
				"sequence_number", msg.SequenceNumber,
			)
			continue
		}

		record := domain.AnchorRecord{
			SequenceNumber: msg.SequenceNumber,
			ShieldID:       payload.ShieldID,
			EventID:        payload.EventID,
		}
		if payload.EventID == "" {
			shield, err := s.shields.FindByID(ctx, payload.ShieldID)
			if err != nil {
				return nil, fmt.Errorf("finding shield for anchor audit: %w", err)
			}
			record.Persisted = shield != nil
		} else {
			count, err := s.provenance.CountEvents(ctx, payload.ShieldID)
			if err != nil {
				return nil, fmt.Errorf("counting events for anchor audit: %w", err)
			}
			record.Persisted = count > int64(payload.Position)
		}
		if !record.Persisted {
			audit.Orphaned++
		}
		audit.Records = append(audit.Records, record)
	}

	return audit, nil
}

// CheckCompliance はシールド作成時の移行状態に基づく適合性評価を返す。
func (s *ShieldService) CheckCompliance(ctx context.Context, shieldID string) (*domain.ComplianceCheck, error) {
	shield, err := s.GetShield(ctx, shieldID)
	if err != nil {
		return nil, err
	}
	return s.agility.CheckCompliance(shield), nil
}
