// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// KeyCustody は秘密鍵の管理方式を表す。
// ローカル保持か外部カストディアン参照のいずれか一方のみを取る。
type KeyCustody interface {
	custody()
}

// LocalKey はローカルに保持する秘密鍵を表す。
type LocalKey struct {
	SecretKey []byte
}

func (LocalKey) custody() {}

// CustodialKey は外部カストディアンが保持する鍵への参照を表す。
// 秘密鍵そのものはプロセス内に存在しない。
type CustodialKey struct {
	KeyID string
}

func (CustodialKey) custody() {}

// SigningKeyPair は署名鍵ペアを表す。
type SigningKeyPair struct {
	Algorithm string
	PublicKey []byte
	Custody   KeyCustody
	Created   time.Time
}

// KEMKeyPair は鍵カプセル化鍵ペアを表す。
type KEMKeyPair struct {
	Algorithm string
	PublicKey []byte
	Custody   KeyCustody
	Created   time.Time
}

// Identity は資産ごとに生成される量子耐性アイデンティティを表す。
// 生成後は不変。ローテーション判定のみ時刻に依存する。
type Identity struct {
	ID            string
	Name          string
	Created       time.Time
	SigningKeys   SigningKeyPair
	KEMKeys       KEMKeyPair
	ClassicalKeys SigningKeyPair
	RotationDays  int
}

// IdentityStatus はアイデンティティの状態サマリを表す（鍵素材を含まない）。
type IdentityStatus struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Created       string `json:"created"`
	NeedsRotation bool   `json:"needs_rotation"`
	SigningAlg    string `json:"signing_algorithm"`
	KEMAlg        string `json:"kem_algorithm"`
	Custodial     bool   `json:"custodial"`
}

// PublicKeyRef は署名検証用の公開鍵を表す。
// Keyが鍵素材、KeyIDが外部カストディアン参照で、常にどちらか一方のみが設定される。
type PublicKeyRef struct {
	Key   []byte `json:"key,omitempty"`
	KeyID string `json:"key_id,omitempty"`
}

// IsCustodial は外部カストディアン参照かどうかを返す。
func (r PublicKeyRef) IsCustodial() bool {
	return r.KeyID != ""
}

// SignatureData は署名結果を表す。生成後は不変で、
// 署名時と同一の正規化バイト列に対してのみ検証可能。
type SignatureData struct {
	IdentityID         string        `json:"identity_id"`
	Mode               SignatureMode `json:"mode"`
	Algorithm          string        `json:"algorithm"`
	Signature          []byte        `json:"signature,omitempty"`
	PublicKey          PublicKeyRef  `json:"public_key"`
	ClassicalSignature []byte        `json:"classical_signature,omitempty"`
	ClassicalPublicKey []byte        `json:"classical_public_key,omitempty"`
}
