package usecase

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quantum-shield-service/internal/crypto"
	"quantum-shield-service/internal/domain"
	"quantum-shield-service/internal/repository"
)

func TestShieldService_ShieldAsset_HybridSign(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)

	shield, err := env.service.ShieldAsset(context.Background(), testAsset())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if shield.ShieldID == "" {
		t.Error("want non-empty shield ID")
	}
	if shield.IntegrityHash == "" {
		t.Error("want non-empty integrity hash")
	}
	if shield.MigrationState != domain.StateHybridSign {
		t.Errorf("want state HYBRID_SIGN, got %s", shield.MigrationState)
	}
	if shield.Signature.Mode != domain.ModeHybrid {
		t.Errorf("want hybrid signature mode, got %s", shield.Signature.Mode)
	}
	if shield.LedgerProof.TopicID == "" || shield.LedgerProof.SequenceNumber == 0 {
		t.Error("want ledger proof populated")
	}

	verification, err := env.service.VerifyShield(context.Background(), shield.ShieldID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verification.Valid || !verification.SignatureValid || !verification.ProvenanceValid {
		t.Errorf("want fully valid shield, got valid=%t signature=%t provenance=%t",
			verification.Valid, verification.SignatureValid, verification.ProvenanceValid)
	}
}

func TestShieldService_ShieldAsset_ValidationBeforeCrypto(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)

	asset := testAsset()
	asset.Name = ""

	_, err := env.service.ShieldAsset(context.Background(), asset)
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("want ValidationError, got %v", err)
	}

	// 検証失敗時は署名もレジャー呼び出しも発生しない
	if env.ledger.topicCalls != 0 || env.ledger.appendCalls != 0 {
		t.Errorf("want no ledger calls, got %d topic and %d append calls", env.ledger.topicCalls, env.ledger.appendCalls)
	}
	if len(env.identityRepo.identities) != 0 {
		t.Errorf("want no identities generated, got %d", len(env.identityRepo.identities))
	}
}

func TestShieldService_ShieldAsset_CollectsAllViolations(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)

	_, err := env.service.ShieldAsset(context.Background(), &domain.AssetData{AssetType: "bogus"})
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if len(validationErr.Violations) != 4 {
		t.Errorf("want 4 violations, got %d: %v", len(validationErr.Violations), validationErr.Violations)
	}
}

func TestShieldService_ShieldAsset_LedgerFailure(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	env.ledger.appendErr = errors.New("ledger down")

	_, err := env.service.ShieldAsset(context.Background(), testAsset())
	if !errors.Is(err, domain.ErrLedgerAnchor) {
		t.Fatalf("want ErrLedgerAnchor, got %v", err)
	}

	// アンカーに失敗したシールドは永続化されない
	shields, err := env.service.ListShields(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shields) != 0 {
		t.Errorf("want no shields persisted, got %d", len(shields))
	}
}

func TestShieldService_ShieldAsset_MetadataPinned(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)

	asset := testAsset()
	asset.Metadata = map[string]any{"edition": 1}

	shield, err := env.service.ShieldAsset(context.Background(), asset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if shield.MetadataPin == nil {
		t.Fatal("want metadata pin")
	}
	if shield.MetadataPin.CID != "bafytest" {
		t.Errorf("want CID bafytest, got %s", shield.MetadataPin.CID)
	}
	if env.metadata.uploadCalls != 1 {
		t.Errorf("want 1 upload call, got %d", env.metadata.uploadCalls)
	}
}

func TestShieldService_ShieldAsset_PinFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	env.metadata.uploadErr = errors.New("pinning service down")

	asset := testAsset()
	asset.Metadata = map[string]any{"edition": 1}

	shield, err := env.service.ShieldAsset(context.Background(), asset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shield.MetadataPin != nil {
		t.Error("want no metadata pin after pinning failure")
	}
}

func TestShieldService_VerifyShield_NotFound(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)

	_, err := env.service.VerifyShield(context.Background(), "nonexistent-id")
	if !errors.Is(err, domain.ErrShieldNotFound) {
		t.Errorf("want ErrShieldNotFound, got %v", err)
	}
}

func TestShieldService_VerifyShield_PureRead(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	shield := createTestShield(t, env)

	appendsBefore := env.ledger.appendCalls

	first, err := env.service.VerifyShield(context.Background(), shield.ShieldID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := env.service.VerifyShield(context.Background(), shield.ShieldID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Valid != second.Valid || first.SignatureValid != second.SignatureValid {
		t.Error("want identical verification results on repeated calls")
	}
	if env.ledger.appendCalls != appendsBefore {
		t.Error("want no ledger writes during verification")
	}
}

func TestShieldService_VerifyShield_ClassicalWarning(t *testing.T) {
	env := newTestEnv(t, domain.StateClassicalOnly)
	shield := createTestShield(t, env)

	verification, err := env.service.VerifyShield(context.Background(), shield.ShieldID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(verification.Warnings) != 1 {
		t.Fatalf("want 1 warning, got %d", len(verification.Warnings))
	}
	if verification.Warnings[0] != "WARNING: Using classical cryptography only - not quantum-safe" {
		t.Errorf("unexpected warning: %s", verification.Warnings[0])
	}
}

func TestShieldService_GetProvenance_NotFoundShield(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)

	_, err := env.service.GetProvenance(context.Background(), "nonexistent-id")
	if !errors.Is(err, domain.ErrShieldNotFound) {
		t.Errorf("want ErrShieldNotFound, got %v", err)
	}
}

func TestShieldService_AddProvenanceEvent_TransfersOwnership(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	shield := createTestShield(t, env)

	event, err := env.service.AddProvenanceEvent(context.Background(), shield.ShieldID, domain.EventOwnershipTransferred, "0.0.200", map[string]any{"newOwner": "0.0.300"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Position != 1 {
		t.Errorf("want position 1, got %d", event.Position)
	}

	chain, err := env.service.GetProvenance(context.Background(), shield.ShieldID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain.CurrentOwner != "0.0.300" {
		t.Errorf("want current owner 0.0.300, got %s", chain.CurrentOwner)
	}
}

func TestShieldService_CheckCompliance_FollowsRecordedState(t *testing.T) {
	env := newTestEnv(t, domain.StateClassicalOnly)
	shield := createTestShield(t, env)

	check, err := env.service.CheckCompliance(context.Background(), shield.ShieldID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.Compliant {
		t.Error("want non-compliant before migration")
	}

	// 一括移行でシールドが再署名されると評価も追従する
	if _, err := env.agility.MigrateToState(context.Background(), domain.StatePQCOnly); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	check, err = env.service.CheckCompliance(context.Background(), shield.ShieldID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !check.Compliant {
		t.Error("want compliant after bulk migration re-signed the shield")
	}
}

func TestShieldService_ListShields(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	createTestShield(t, env)
	createTestShield(t, env)

	shields, err := env.service.ListShields(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shields) != 2 {
		t.Errorf("want 2 shields, got %d", len(shields))
	}
}

func TestShieldService_SharedProofTopic(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	first := createTestShield(t, env)
	second := createTestShield(t, env)

	// 証明用トピックは全シールドで共有される
	if env.ledger.topicCalls != 1 {
		t.Errorf("want 1 topic creation, got %d", env.ledger.topicCalls)
	}
	if first.LedgerProof.TopicID != second.LedgerProof.TopicID {
		t.Errorf("want shared topic, got %s and %s", first.LedgerProof.TopicID, second.LedgerProof.TopicID)
	}
}

func TestShieldService_AuditAnchors_AllPersisted(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	shield := createTestShield(t, env)

	_, err := env.service.AddProvenanceEvent(context.Background(), shield.ShieldID, domain.EventOwnershipTransferred, "0.0.200", map[string]any{"newOwner": "0.0.300"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	audit, err := env.service.AuditAnchors(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// シールドアンカー1件とイベントアンカー2件
	if audit.Total != 3 {
		t.Errorf("want 3 anchors, got %d", audit.Total)
	}
	if audit.Orphaned != 0 {
		t.Errorf("want 0 orphaned, got %d", audit.Orphaned)
	}
	for _, record := range audit.Records {
		if !record.Persisted {
			t.Errorf("want anchor seq %d persisted", record.SequenceNumber)
		}
	}
}

func TestShieldService_AuditAnchors_FlagsOrphans(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	shield := createTestShield(t, env)

	// 永続化されなかったアンカーを模す
	_, err := env.ledger.Append(context.Background(), "0.0.9001", []byte(`{"shield_id":"ghost-shield"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	orphanEvent := []byte(`{"event_id":"ghost-event","shield_id":"` + shield.ShieldID + `","position":5}`)
	if _, err := env.ledger.Append(context.Background(), "0.0.9001", orphanEvent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	audit, err := env.service.AuditAnchors(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if audit.Total != 4 {
		t.Errorf("want 4 anchors, got %d", audit.Total)
	}
	if audit.Orphaned != 2 {
		t.Errorf("want 2 orphaned, got %d", audit.Orphaned)
	}
	for _, record := range audit.Records {
		switch record.ShieldID {
		case "ghost-shield":
			if record.Persisted {
				t.Error("want ghost shield anchor flagged as not persisted")
			}
		case shield.ShieldID:
			if record.EventID == "ghost-event" && record.Persisted {
				t.Error("want ghost event anchor flagged as not persisted")
			}
		}
	}
}

func TestShieldService_VerifyShield_AfterDatabaseRoundTrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	identityRepo := repository.NewIdentityRepository(db)
	shieldRepo := repository.NewShieldRepository(db)
	provRepo := repository.NewProvenanceRepository(db)
	ledger := &mockLedger{}

	pqc := crypto.NewMLDSAProvider()
	classical := crypto.NewEd25519Provider()
	kem := crypto.NewMLKEMProvider()

	keyStore := NewKeyStoreService(identityRepo, pqc, classical, kem, nil, "", 365)
	signer := NewSignatureService(keyStore, pqc, classical, nil)
	anchor := NewLedgerAnchor(ledger)
	provenance := NewProvenanceService(provRepo, signer, anchor)
	agility := NewAgilityService(shieldRepo, provenance, signer, anchor, domain.StateHybridSign)
	service := NewShieldService(shieldRepo, keyStore, signer, provenance, agility, anchor, ledger, nil)

	shield, err := service.ShieldAsset(context.Background(), testAsset())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = service.AddProvenanceEvent(context.Background(), shield.ShieldID, domain.EventOwnershipTransferred, "0.0.200", map[string]any{"newOwner": "0.0.300"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 同じデータベースから組み直したスタックで検証する。
	// 署名対象ペイロードが永続化と再読込を経ても一致することを確認する。
	freshKeyStore := NewKeyStoreService(identityRepo, pqc, classical, kem, nil, "", 365)
	freshSigner := NewSignatureService(freshKeyStore, pqc, classical, nil)
	freshProvenance := NewProvenanceService(provRepo, freshSigner, anchor)
	freshAgility := NewAgilityService(shieldRepo, freshProvenance, freshSigner, anchor, domain.StateHybridSign)
	fresh := NewShieldService(shieldRepo, freshKeyStore, freshSigner, freshProvenance, freshAgility, anchor, ledger, nil)

	verification, err := fresh.VerifyShield(context.Background(), shield.ShieldID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verification.SignatureValid {
		t.Error("want signature valid after database round trip")
	}
	if !verification.ProvenanceValid {
		t.Error("want provenance valid after database round trip")
	}
	if !verification.Valid {
		t.Error("want shield valid after database round trip")
	}

	chain, err := fresh.GetProvenance(context.Background(), shield.ShieldID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chain.Events) != 2 {
		t.Fatalf("want 2 events, got %d", len(chain.Events))
	}
	if chain.CurrentOwner != "0.0.300" {
		t.Errorf("want owner 0.0.300, got %s", chain.CurrentOwner)
	}
	for i := 1; i < len(chain.Events); i++ {
		if chain.Events[i].Timestamp.Before(chain.Events[i-1].Timestamp) {
			t.Errorf("want non-decreasing timestamps, got %v before %v", chain.Events[i].Timestamp, chain.Events[i-1].Timestamp)
		}
	}
}
