package usecase

import (
	"context"
	"fmt"
	"sync"

	"quantum-shield-service/internal/crypto"
	"quantum-shield-service/internal/domain"
)

// proofTopicMemo はシールド証明用トピックの作成時メモ。
const proofTopicMemo = "quantum-shield-proofs"

// LedgerLog は追記専用コンセンサスログのインターフェース。
type LedgerLog interface {
	CreateTopic(ctx context.Context, memo string) (string, error)
	Append(ctx context.Context, topicID string, message []byte) (*domain.LedgerProof, error)
}

// LedgerAnchor はレジャーへの証明記録を提供する。
// 証明用トピックは初回アンカー時に一度だけ作成し、以後使い回す。
type LedgerAnchor struct {
	ledger LedgerLog

	mu      sync.Mutex
	topicID string
}

// NewLedgerAnchor は新しいLedgerAnchorを生成する。
func NewLedgerAnchor(ledger LedgerLog) *LedgerAnchor {
	return &LedgerAnchor{ledger: ledger}
}

// Anchor は値を正規化JSONとしてレジャーに追記し、証明を返す。
func (a *LedgerAnchor) Anchor(ctx context.Context, payload any) (*domain.LedgerProof, error) {
	topicID, err := a.topic(ctx)
	if err != nil {
		return nil, err
	}

	message, err := crypto.CanonicalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing anchor payload: %w", err)
	}

	return a.ledger.Append(ctx, topicID, message)
}

// ProofTopic は証明用トピックIDを返す。未作成なら作成する。
func (a *LedgerAnchor) ProofTopic(ctx context.Context) (string, error) {
	return a.topic(ctx)
}

// topic は証明用トピックIDを返す。未作成なら作成する。
func (a *LedgerAnchor) topic(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.topicID != "" {
		return a.topicID, nil
	}

	topicID, err := a.ledger.CreateTopic(ctx, proofTopicMemo)
	if err != nil {
		return "", err
	}
	a.topicID = topicID
	return topicID, nil
}
