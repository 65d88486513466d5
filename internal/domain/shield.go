package domain

import "time"

// AssetType は保護対象資産の種別を表す。
type AssetType string

const (
	AssetTypeNFT      AssetType = "nft"
	AssetTypeIP       AssetType = "ip"
	AssetTypeDocument AssetType = "document"
	AssetTypeData     AssetType = "data"
)

// ValidAssetType は既知の資産種別かを返す。
func ValidAssetType(t AssetType) bool {
	switch t {
	case AssetTypeNFT, AssetTypeIP, AssetTypeDocument, AssetTypeData:
		return true
	}
	return false
}

// AssetData はシールド対象の資産を表す。
type AssetData struct {
	AssetID     string         `json:"asset_id"`
	AssetType   AssetType      `json:"asset_type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Owner       string         `json:"owner"`
	Category    string         `json:"category,omitempty"`
}

// LedgerProof は外部レジャーログへのアンカー結果を表す。
type LedgerProof struct {
	TopicID        string `json:"topic_id"`
	TransactionID  string `json:"transaction_id"`
	SequenceNumber uint64 `json:"sequence_number"`
}

// MetadataPin は外部メタデータストアへの格納結果を表す。
type MetadataPin struct {
	CID string `json:"cid"`
	URL string `json:"url"`
}

// Shield は資産に対する量子安全な保護証明を表す。
// shieldAsset呼び出しごとに一度だけ作られ、来歴チェーンの成長以外では不変。
type Shield struct {
	ShieldID       string
	AssetID        string
	AssetType      AssetType
	Name           string
	Owner          string
	Category       string
	IdentityID     string
	IntegrityHash  string
	Signature      SignatureData
	LedgerProof    LedgerProof
	MigrationState CryptoState
	MetadataPin    *MetadataPin
	Metadata       map[string]any
	Timestamp      time.Time
}

// ProvenanceEventType は来歴イベントの種別を表す。
type ProvenanceEventType string

const (
	EventShieldCreated        ProvenanceEventType = "SHIELD_CREATED"
	EventOwnershipTransferred ProvenanceEventType = "OWNERSHIP_TRANSFERRED"
	EventMetadataUpdated      ProvenanceEventType = "METADATA_UPDATED"
	EventComplianceVerified   ProvenanceEventType = "COMPLIANCE_VERIFIED"
	EventMigrationPerformed   ProvenanceEventType = "MIGRATION_PERFORMED"
)

// ValidEventType は既知のイベント種別かを返す。
func ValidEventType(t ProvenanceEventType) bool {
	switch t {
	case EventShieldCreated, EventOwnershipTransferred, EventMetadataUpdated,
		EventComplianceVerified, EventMigrationPerformed:
		return true
	}
	return false
}

// ProvenanceEvent は来歴チェーン上の単一イベントを表す。追記専用。
type ProvenanceEvent struct {
	EventID     string
	ShieldID    string
	EventType   ProvenanceEventType
	Position    uint
	Timestamp   time.Time
	Actor       string
	Data        map[string]any
	Signature   SignatureData
	LedgerProof LedgerProof
}

// ProvenanceChain はシールド1つに対する順序付き来歴を表す。
// CurrentOwnerは最後のOWNERSHIP_TRANSFERREDイベントのnewOwner、
// 存在しなければ初期所有者と一致する。
type ProvenanceChain struct {
	ShieldID     string
	AssetID      string
	Events       []*ProvenanceEvent
	CurrentOwner string
	CreatedAt    time.Time
	LastUpdated  time.Time
}

// IntegrityVerification はシールド検証の結果を表す。
type IntegrityVerification struct {
	ShieldID        string      `json:"shield_id"`
	Valid           bool        `json:"valid"`
	SignatureValid  bool        `json:"signature_valid"`
	ProvenanceValid bool        `json:"provenance_valid"`
	IntegrityHash   string      `json:"integrity_hash"`
	MigrationState  CryptoState `json:"migration_state"`
	VerifiedAt      time.Time   `json:"verified_at"`
	Warnings        []string    `json:"warnings,omitempty"`
}

// MigrationReadiness は移行準備状況を表す。
type MigrationReadiness struct {
	State     CryptoState  `json:"state"`
	NextState *CryptoState `json:"next_state,omitempty"`
	Deadline  string       `json:"deadline"`
}

// ComplianceCheck は規制適合性の評価結果を表す。
type ComplianceCheck struct {
	ShieldID        string             `json:"shield_id"`
	Compliant       bool               `json:"compliant"`
	Regulations     map[string]bool    `json:"regulations"`
	Readiness       MigrationReadiness `json:"migration_readiness"`
	Recommendations []string           `json:"recommendations"`
	CheckedAt       time.Time          `json:"checked_at"`
}

// LedgerMessage はコンセンサスログから読み出した単一メッセージを表す。
type LedgerMessage struct {
	SequenceNumber uint64
	Payload        []byte
	ConsensusAt    time.Time
}

// AnchorRecord はレジャー上の単一アンカーとローカル永続化の照合結果を表す。
type AnchorRecord struct {
	SequenceNumber uint64 `json:"sequence_number"`
	ShieldID       string `json:"shield_id"`
	EventID        string `json:"event_id,omitempty"`
	Persisted      bool   `json:"persisted"`
}

// AnchorAudit は証明トピック全体の照合結果を表す。
// Persistedでないレコードはアンカー済み未永続の要調整ケースを示す。
type AnchorAudit struct {
	TopicID   string         `json:"topic_id"`
	Total     int            `json:"total"`
	Orphaned  int            `json:"orphaned"`
	Records   []AnchorRecord `json:"records"`
	CheckedAt time.Time      `json:"checked_at"`
}

// MigrationStatus は一括移行の進捗を表す。
type MigrationStatus struct {
	State         CryptoState `json:"state"`
	TargetState   CryptoState `json:"target_state"`
	MigratedCount int         `json:"migrated_count"`
	TotalCount    int         `json:"total_count"`
	FailedShields []string    `json:"failed_shields,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   time.Time   `json:"completed_at"`
}
