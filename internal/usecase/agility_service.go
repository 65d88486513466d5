package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quantum-shield-service/internal/domain"
)

// AgilityService は暗号移行状態の管理と規制適合性の評価を提供する。
// サービス全体で単一の現在状態を持ち、各シールドは作成時点の状態を
// 自身のmigrationStateとして保持する。移行は既存シールドの状態を
// 書き換えるが、多重実行はできない。
type AgilityService struct {
	shields    ShieldRepository
	provenance *ProvenanceService
	signer     *SignatureService
	anchor     *LedgerAnchor

	mu         sync.Mutex
	state      domain.CryptoState
	migrating  bool
	lastStatus *domain.MigrationStatus

	now func() time.Time
}

// NewAgilityService は新しいAgilityServiceを生成する。
func NewAgilityService(shields ShieldRepository, provenance *ProvenanceService, signer *SignatureService, anchor *LedgerAnchor, initial domain.CryptoState) *AgilityService {
	return &AgilityService{
		shields:    shields,
		provenance: provenance,
		signer:     signer,
		anchor:     anchor,
		state:      initial,
		now:        time.Now,
	}
}

// CurrentState はサービスの現在の移行状態を返す。
func (s *AgilityService) CurrentState() domain.CryptoState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextState は現在の状態の次の移行状態を返す。最終状態ならfalse。
func (s *AgilityService) NextState() (domain.CryptoState, bool) {
	return s.CurrentState().Next()
}

// LastStatus は直近の移行の進捗を返す。移行が一度も実行されて
// いなければnil。
func (s *AgilityService) LastStatus() *domain.MigrationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastStatus == nil {
		return nil
	}
	status := *s.lastStatus
	return &status
}

// CheckCompliance はシールド作成時点の移行状態から規制適合性を評価する。
// 評価は決定的で、同じ状態に対して常に同じ結果を返す。
func (s *AgilityService) CheckCompliance(shield *domain.Shield) *domain.ComplianceCheck {
	state := shield.MigrationState

	nistFips203 := state != domain.StateClassicalOnly
	nistFips204 := state != domain.StateClassicalOnly
	cnsa20 := state == domain.StateHybridSign ||
		state == domain.StateHybridEncrypt ||
		state == domain.StatePQCPrimary ||
		state == domain.StatePQCOnly
	euAIAct := state != domain.StateClassicalOnly

	var recommendations []string
	switch state {
	case domain.StateClassicalOnly:
		recommendations = append(recommendations, "URGENT: Migrate to HYBRID_SIGN immediately - not quantum-safe")
	case domain.StateHybridSign:
		recommendations = append(recommendations, "Recommended: Plan migration to PQC_PRIMARY by 2030")
	case domain.StatePQCPrimary:
		recommendations = append(recommendations, "Good: On track for 2035 PQC_ONLY mandate")
	}

	deadline := "2030-01-01"
	if state == domain.StatePQCPrimary {
		deadline = "2035-01-01"
	}

	readiness := domain.MigrationReadiness{
		State:    state,
		Deadline: deadline,
	}
	if next, ok := state.Next(); ok {
		readiness.NextState = &next
	}

	return &domain.ComplianceCheck{
		ShieldID:  shield.ShieldID,
		Compliant: nistFips203 && nistFips204 && cnsa20 && euAIAct,
		Regulations: map[string]bool{
			"NIST-FIPS-203": nistFips203,
			"NIST-FIPS-204": nistFips204,
			"CNSA-2.0":      cnsa20,
			"EU-AI-Act":     euAIAct,
		},
		Readiness:       readiness,
		Recommendations: recommendations,
		CheckedAt:       s.now().UTC(),
	}
}

// beginMigration は移行を開始できるか検査し、開始状態を記録する。
func (s *AgilityService) beginMigration(target domain.CryptoState) (domain.CryptoState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target.Rank() < 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidCryptoState, target)
	}
	if s.migrating {
		return "", domain.ErrMigrationInProgress
	}
	// ダウングレードは拒否する。同じ状態への再実行は中断からの
	// 再開として許可する。
	if target.Before(s.state) {
		return "", fmt.Errorf("%w: %s -> %s", domain.ErrInvalidMigrationTarget, s.state, target)
	}

	s.migrating = true
	return s.state, nil
}

// MigrateToState は全シールドを新しい移行状態に一括移行する。
// 各シールドを新モードで再署名・再アンカーし、来歴に移行イベントを
// 追記する。部分的な失敗は進捗として報告し、残りのシールドの移行は
// 継続する。中断しても各シールドは旧状態か新状態のいずれかにあり、
// 同じ対象への再実行で再開できる。
func (s *AgilityService) MigrateToState(ctx context.Context, target domain.CryptoState) (*domain.MigrationStatus, error) {
	from, err := s.beginMigration(target)
	if err != nil {
		return nil, err
	}
	defer func() {
		s.mu.Lock()
		s.migrating = false
		s.mu.Unlock()
	}()

	startedAt := s.now().UTC()
	slog.InfoContext(ctx, "starting crypto state migration",
		"operation", "migrate_to_state",
		"from", from,
		"to", target,
	)

	shields, err := s.shields.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing shields for migration: %w", err)
	}

	status := &domain.MigrationStatus{
		State:       from,
		TargetState: target,
		TotalCount:  len(shields),
		StartedAt:   startedAt,
	}

	for _, shield := range shields {
		// 再開時、移行済みシールドはスキップする。
		if !shield.MigrationState.Before(target) {
			status.MigratedCount++
			continue
		}

		if err := s.migrateShield(ctx, shield, target); err != nil {
			slog.ErrorContext(ctx, "failed to migrate shield",
				"operation", "migrate_to_state",
				"shield_id", shield.ShieldID,
				"target", target,
				"error", err,
			)
			status.FailedShields = append(status.FailedShields, shield.ShieldID)
			continue
		}
		status.MigratedCount++
	}

	status.CompletedAt = s.now().UTC()

	s.mu.Lock()
	s.state = target
	s.lastStatus = status
	s.mu.Unlock()

	slog.InfoContext(ctx, "crypto state migration completed",
		"operation", "migrate_to_state",
		"to", target,
		"migrated", status.MigratedCount,
		"total", status.TotalCount,
		"failed", len(status.FailedShields),
	)
	return status, nil
}

// migrateShield は単一シールドを新しい状態に移行する。
// 再署名、再アンカー、来歴イベント追記、状態更新の順に実行する。
func (s *AgilityService) migrateShield(ctx context.Context, shield *domain.Shield, target domain.CryptoState) error {
	payload, err := shieldPayload(shield.ShieldID, shield.AssetID, shield.IntegrityHash, shield.Timestamp)
	if err != nil {
		return err
	}

	mode := domain.SignatureModeFor(target)
	sig, err := s.signer.Sign(ctx, shield.IdentityID, mode, payload)
	if err != nil {
		return fmt.Errorf("re-signing shield: %w", err)
	}

	proof, err := s.anchor.Anchor(ctx, map[string]any{
		"shield_id":       shield.ShieldID,
		"asset_id":        shield.AssetID,
		"integrity_hash":  shield.IntegrityHash,
		"migration_state": string(target),
		"signature":       sig,
	})
	if err != nil {
		return err
	}

	previous := shield.MigrationState
	if err := s.shields.UpdateMigration(ctx, shield.ShieldID, target, *sig, *proof); err != nil {
		return fmt.Errorf("updating shield state: %w", err)
	}
	shield.MigrationState = target
	shield.Signature = *sig
	shield.LedgerProof = *proof

	_, err = s.provenance.AppendEvent(ctx, shield, domain.EventMigrationPerformed, "system", map[string]any{
		"fromState": string(previous),
		"toState":   string(target),
	})
	if err != nil {
		// シールド本体は移行済み。イベント欠落は来歴検証では
		// 失敗にならないため、ログに残すのみとする。
		slog.WarnContext(ctx, "migration event not recorded",
			"operation", "migrate_shield",
			"shield_id", shield.ShieldID,
			"error", err,
		)
	}
	return nil
}
