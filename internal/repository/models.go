// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"quantum-shield-service/internal/domain"
)

// ShieldModel はgorm用のシールドモデル定義。
type ShieldModel struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	AssetID        string    `gorm:"type:varchar(128);not null;index:idx_asset_id"`
	AssetType      string    `gorm:"type:varchar(16);not null"`
	Name           string    `gorm:"type:varchar(200);not null"`
	Owner          string    `gorm:"type:varchar(128);not null;index:idx_owner"`
	Category       string    `gorm:"type:varchar(64)"`
	IdentityID     string    `gorm:"type:char(36);not null"`
	IntegrityHash  string    `gorm:"type:char(64);not null"`
	SignatureJSON  []byte    `gorm:"type:blob;not null"`
	TopicID        string    `gorm:"type:varchar(64);not null"`
	TransactionID  string    `gorm:"type:varchar(128);not null"`
	SequenceNumber uint64    `gorm:"not null"`
	MigrationState string    `gorm:"type:varchar(32);not null;index:idx_migration_state"`
	MetadataCID    string    `gorm:"type:varchar(128)"`
	MetadataURL    string    `gorm:"type:varchar(256)"`
	MetadataJSON   []byte    `gorm:"type:blob"`
	Timestamp      time.Time `gorm:"precision:6;not null"`
	CreatedAt      time.Time `gorm:"precision:6;not null;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"precision:6;not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (ShieldModel) TableName() string {
	return "shields"
}

// ProvenanceEventModel はgorm用の来歴イベントモデル定義。
type ProvenanceEventModel struct {
	ID            string    `gorm:"type:char(36);primaryKey"`
	ShieldID      string    `gorm:"type:char(36);not null;uniqueIndex:uk_shield_position;index:idx_event_shield"`
	Position      uint      `gorm:"not null;uniqueIndex:uk_shield_position"`
	EventType     string    `gorm:"type:varchar(32);not null"`
	Actor         string    `gorm:"type:varchar(128);not null"`
	DataJSON      []byte    `gorm:"type:blob"`
	SignatureJSON []byte    `gorm:"type:blob;not null"`
	TopicID       string    `gorm:"type:varchar(64);not null"`
	TransactionID string    `gorm:"type:varchar(128);not null"`
	Sequence      uint64    `gorm:"not null"`
	Timestamp     time.Time `gorm:"precision:6;not null"`
	CreatedAt     time.Time `gorm:"precision:6;not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (ProvenanceEventModel) TableName() string {
	return "provenance_events"
}

// ProvenanceChainModel はgorm用の来歴チェーンモデル定義。
type ProvenanceChainModel struct {
	ShieldID     string    `gorm:"type:char(36);primaryKey"`
	AssetID      string    `gorm:"type:varchar(128);not null"`
	CurrentOwner string    `gorm:"type:varchar(128);not null"`
	CreatedAt    time.Time `gorm:"precision:6;not null"`
	LastUpdated  time.Time `gorm:"precision:6;not null"`
}

// TableName はテーブル名を返す。
func (ProvenanceChainModel) TableName() string {
	return "provenance_chains"
}

// IdentityModel はgorm用のアイデンティティモデル定義。
// 鍵素材はhexエンコードで保持し、カストディ委託時は秘密鍵を保存しない。
type IdentityModel struct {
	ID                 string    `gorm:"type:char(36);primaryKey"`
	Name               string    `gorm:"type:varchar(200);not null"`
	SigningAlgorithm   string    `gorm:"type:varchar(32);not null"`
	SigningPublicKey   string    `gorm:"type:text;not null"`
	SigningSecretKey   string    `gorm:"type:text"`
	SigningKeyRef      string    `gorm:"type:varchar(256)"`
	KEMAlgorithm       string    `gorm:"type:varchar(32);not null"`
	KEMPublicKey       string    `gorm:"type:text;not null"`
	KEMSecretKey       string    `gorm:"type:text"`
	ClassicalPublicKey string    `gorm:"type:text;not null"`
	ClassicalSecretKey string    `gorm:"type:text"`
	RotationDays       int       `gorm:"not null"`
	CreatedAt          time.Time `gorm:"precision:6;not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (IdentityModel) TableName() string {
	return "identities"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *IdentityModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// AutoMigrate は全テーブルのスキーマを適用する。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ShieldModel{},
		&ProvenanceEventModel{},
		&ProvenanceChainModel{},
		&IdentityModel{},
	)
}

func marshalSignature(sig domain.SignatureData) ([]byte, error) {
	b, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("marshaling signature data: %w", err)
	}
	return b, nil
}

func unmarshalSignature(b []byte) (domain.SignatureData, error) {
	var sig domain.SignatureData
	if err := json.Unmarshal(b, &sig); err != nil {
		return domain.SignatureData{}, fmt.Errorf("unmarshaling signature data: %w", err)
	}
	return sig, nil
}

func encodeCustody(custody domain.KeyCustody) (secretHex, keyRef string) {
	switch c := custody.(type) {
	case domain.LocalKey:
		return hex.EncodeToString(c.SecretKey), ""
	case domain.CustodialKey:
		return "", c.KeyID
	}
	return "", ""
}

func decodeCustody(secretHex, keyRef string) (domain.KeyCustody, error) {
	if keyRef != "" {
		return domain.CustodialKey{KeyID: keyRef}, nil
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("decoding secret key: %w", err)
	}
	return domain.LocalKey{SecretKey: secret}, nil
}
