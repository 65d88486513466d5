package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"quantum-shield-service/internal/crypto"
	"quantum-shield-service/internal/domain"
)

// ProvenanceRepository は来歴チェーンのデータアクセスのインターフェース。
type ProvenanceRepository interface {
	CreateChain(ctx context.Context, chain *domain.ProvenanceChain) error
	AppendEvent(ctx context.Context, event *domain.ProvenanceEvent, currentOwner string) error
	FindChain(ctx context.Context, shieldID string) (*domain.ProvenanceChain, error)
	CountEvents(ctx context.Context, shieldID string) (int64, error)
}

// ProvenanceService は来歴チェーンの管理を提供する。
// チェーンごとの追記は直列化され、イベントの順序は連続した位置番号で保証する。
type ProvenanceService struct {
	repo   ProvenanceRepository
	signer *SignatureService
	anchor *LedgerAnchor

	locks sync.Map // shieldID -> *sync.Mutex

	now func() time.Time
}

// NewProvenanceService は新しいProvenanceServiceを生成する。
func NewProvenanceService(repo ProvenanceRepository, signer *SignatureService, anchor *LedgerAnchor) *ProvenanceService {
	return &ProvenanceService{
		repo:   repo,
		signer: signer,
		anchor: anchor,
		now:    time.Now,
	}
}

func (s *ProvenanceService) lock(shieldID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(shieldID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// InitChain はシールドの来歴チェーンを作成し、作成イベントを追記する。
func (s *ProvenanceService) InitChain(ctx context.Context, shield *domain.Shield) (*domain.ProvenanceEvent, error) {
	chain := &domain.ProvenanceChain{
		ShieldID:     shield.ShieldID,
		AssetID:      shield.AssetID,
		CurrentOwner: shield.Owner,
		CreatedAt:    shield.Timestamp,
		LastUpdated:  shield.Timestamp,
	}
	if err := s.repo.CreateChain(ctx, chain); err != nil {
		return nil, fmt.Errorf("creating provenance chain: %w", err)
	}

	return s.AppendEvent(ctx, shield, domain.EventShieldCreated, shield.Owner, map[string]any{
		"assetType":      string(shield.AssetType),
		"name":           shield.Name,
		"migrationState": string(shield.MigrationState),
	})
}

// AppendEvent は署名済みイベントをチェーン末尾に追記する。
// レジャーへのアンカーが成功した後にのみ永続化する。
func (s *ProvenanceService) AppendEvent(ctx context.Context, shield *domain.Shield, eventType domain.ProvenanceEventType, actor string, data map[string]any) (*domain.ProvenanceEvent, error) {
	if !domain.ValidEventType(eventType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidEventType, eventType)
	}

	mu := s.lock(shield.ShieldID)
	mu.Lock()
	defer mu.Unlock()

	chain, err := s.repo.FindChain(ctx, shield.ShieldID)
	if err != nil {
		return nil, fmt.Errorf("finding provenance chain: %w", err)
	}
	if chain == nil {
		return nil, domain.ErrChainNotFound
	}
	if eventType != domain.EventShieldCreated && len(chain.Events) == 0 {
		return nil, domain.ErrChainNotInitialized
	}

	event := &domain.ProvenanceEvent{
		EventID:   uuid.NewString(),
		ShieldID:  shield.ShieldID,
		EventType: eventType,
		Position:  uint(len(chain.Events)),
		Timestamp: s.now().UTC().Truncate(time.Microsecond),
		Actor:     actor,
		Data:      data,
	}

	payload, err := eventPayload(event)
	if err != nil {
		return nil, err
	}

	mode := domain.SignatureModeFor(shield.MigrationState)
	sig, err := s.signer.Sign(ctx, shield.IdentityID, mode, payload)
	if err != nil {
		return nil, fmt.Errorf("signing provenance event: %w", err)
	}
	event.Signature = *sig

	proof, err := s.anchor.Anchor(ctx, map[string]any{
		"event_id":   event.EventID,
		"shield_id":  event.ShieldID,
		"event_type": string(event.EventType),
		"position":   event.Position,
		"signature":  event.Signature,
	})
	if err != nil {
		return nil, err
	}
	event.LedgerProof = *proof

	newOwner := ""
	if eventType == domain.EventOwnershipTransferred {
		if owner, ok := data["newOwner"].(string); ok {
			newOwner = owner
		}
	}

	if err := s.repo.AppendEvent(ctx, event, newOwner); err != nil {
		// アンカー済みだが永続化に失敗した状態。レジャー上の証明と
		// 突き合わせて復旧できるよう詳細を残す。
		slog.ErrorContext(ctx, "event anchored but not persisted, reconciliation required",
			"operation", "append_event",
			"shield_id", event.ShieldID,
			"event_id", event.EventID,
			"topic_id", event.LedgerProof.TopicID,
			"sequence_number", event.LedgerProof.SequenceNumber,
			"error", err,
		)
		return nil, fmt.Errorf("persisting provenance event: %w", err)
	}

	return event, nil
}

// GetChain はシールドの来歴チェーンを取得する。
func (s *ProvenanceService) GetChain(ctx context.Context, shieldID string) (*domain.ProvenanceChain, error) {
	chain, err := s.repo.FindChain(ctx, shieldID)
	if err != nil {
		return nil, fmt.Errorf("finding provenance chain: %w", err)
	}
	if chain == nil {
		return nil, domain.ErrChainNotFound
	}
	return chain, nil
}

// CountEvents はシールドの永続化済みイベント数を返す。
func (s *ProvenanceService) CountEvents(ctx context.Context, shieldID string) (int64, error) {
	return s.repo.CountEvents(ctx, shieldID)
}

// VerifyChain はチェーン上の全イベントの署名と順序を検証する。
// 最初の不正イベントで打ち切り、falseを返す。
func (s *ProvenanceService) VerifyChain(ctx context.Context, chain *domain.ProvenanceChain) (bool, error) {
	if len(chain.Events) == 0 {
		return false, nil
	}
	if chain.Events[0].EventType != domain.EventShieldCreated {
		return false, nil
	}

	for i, event := range chain.Events {
		if event.Position != uint(i) {
			return false, nil
		}

		payload, err := eventPayload(event)
		if err != nil {
			return false, err
		}

		ok, err := s.signer.Verify(ctx, &event.Signature, payload)
		if err != nil {
			return false, fmt.Errorf("verifying event %s: %w", event.EventID, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// eventPayload は署名対象となるイベントの正規化表現を返す。
// 署名時と検証時で同一のバイト列が得られるよう、DBを往復しても
// 変化しないフィールドのみを含める。
func eventPayload(event *domain.ProvenanceEvent) ([]byte, error) {
	payload, err := crypto.CanonicalJSON(map[string]any{
		"event_id":   event.EventID,
		"shield_id":  event.ShieldID,
		"event_type": string(event.EventType),
		"position":   event.Position,
		"timestamp":  event.Timestamp.UTC().Format(time.RFC3339Nano),
		"actor":      event.Actor,
		"data":       event.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalizing event payload: %w", err)
	}
	return payload, nil
}
