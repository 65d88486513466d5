package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShieldNotFound は指定されたシールドが存在しない場合のエラー。
	ErrShieldNotFound = errors.New("shield not found")

	// ErrChainNotFound は指定されたシールドの来歴チェーンが存在しない場合のエラー。
	ErrChainNotFound = errors.New("provenance chain not found")

	// ErrIdentityNotFound は指定されたアイデンティティが存在しない場合のエラー。
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrNoPrivateKey はローカル秘密鍵も外部カストディ参照も存在しない場合のエラー。
	ErrNoPrivateKey = errors.New("no private key available")

	// ErrUnsupportedCustody は到達できないカストディ鍵での署名・検証を要求された場合のエラー。
	ErrUnsupportedCustody = errors.New("unsupported key custody")

	// ErrCryptoOperation は署名・検証・鍵生成の失敗を表す。操作全体を失敗させる。
	ErrCryptoOperation = errors.New("cryptographic operation failed")

	// ErrLedgerAnchor は外部レジャーへのアンカー失敗を表す。
	ErrLedgerAnchor = errors.New("ledger anchor failed")

	// ErrInvalidCryptoState は未知の移行状態を表す。
	ErrInvalidCryptoState = errors.New("invalid crypto state")

	// ErrMigrationInProgress は移行の多重実行を表す。
	ErrMigrationInProgress = errors.New("migration already in progress")

	// ErrInvalidMigrationTarget は現在より前の状態への移行要求を表す。
	ErrInvalidMigrationTarget = errors.New("invalid migration target")

	// ErrInvalidEventType は未知の来歴イベント種別を表す。
	ErrInvalidEventType = errors.New("invalid provenance event type")

	// ErrChainNotInitialized は作成イベントより先に他イベントを追加した場合のエラー。
	ErrChainNotInitialized = errors.New("provenance chain has no creation event")
)

// ValidationError は入力検証の失敗を表す。違反は全件保持する。
type ValidationError struct {
	Violations []string
}

// Error はエラーメッセージを返す。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Violations, "; "))
}

// NewValidationError は違反リストからValidationErrorを生成する。
func NewValidationError(violations []string) *ValidationError {
	return &ValidationError{Violations: violations}
}
