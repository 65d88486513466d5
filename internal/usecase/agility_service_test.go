package usecase

import (
	"context"
	"errors"
	"testing"

	"quantum-shield-service/internal/domain"
)

func TestAgilityService_CheckCompliance_ClassicalOnly(t *testing.T) {
	env := newTestEnv(t, domain.StateClassicalOnly)
	shield := createTestShield(t, env)

	check := env.agility.CheckCompliance(shield)

	if check.Compliant {
		t.Error("want non-compliant for CLASSICAL_ONLY")
	}
	if check.Regulations["CNSA-2.0"] {
		t.Error("want CNSA-2.0 false for CLASSICAL_ONLY")
	}
	if check.Regulations["NIST-FIPS-203"] || check.Regulations["NIST-FIPS-204"] {
		t.Error("want NIST flags false for CLASSICAL_ONLY")
	}
	if len(check.Recommendations) == 0 {
		t.Fatal("want a migration recommendation")
	}
	if check.Recommendations[0] != "URGENT: Migrate to HYBRID_SIGN immediately - not quantum-safe" {
		t.Errorf("unexpected recommendation: %s", check.Recommendations[0])
	}
	if check.Readiness.Deadline != "2030-01-01" {
		t.Errorf("want deadline 2030-01-01, got %s", check.Readiness.Deadline)
	}
}

func TestAgilityService_CheckCompliance_HybridSign(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	shield := createTestShield(t, env)

	check := env.agility.CheckCompliance(shield)

	if !check.Compliant {
		t.Error("want compliant for HYBRID_SIGN")
	}
	for name, ok := range check.Regulations {
		if !ok {
			t.Errorf("want regulation %s satisfied for HYBRID_SIGN", name)
		}
	}
	if check.Readiness.NextState == nil || *check.Readiness.NextState != domain.StateHybridEncrypt {
		t.Errorf("want next state HYBRID_ENCRYPT, got %v", check.Readiness.NextState)
	}
}

func TestAgilityService_CheckCompliance_PQCPrimaryDeadline(t *testing.T) {
	env := newTestEnv(t, domain.StatePQCPrimary)
	shield := createTestShield(t, env)

	check := env.agility.CheckCompliance(shield)

	if check.Readiness.Deadline != "2035-01-01" {
		t.Errorf("want deadline 2035-01-01, got %s", check.Readiness.Deadline)
	}
}

func TestAgilityService_CheckCompliance_PQCOnlyNoNextState(t *testing.T) {
	env := newTestEnv(t, domain.StatePQCOnly)
	shield := createTestShield(t, env)

	check := env.agility.CheckCompliance(shield)

	if check.Readiness.NextState != nil {
		t.Errorf("want no next state at PQC_ONLY, got %v", *check.Readiness.NextState)
	}
}

func TestAgilityService_MigrateToState_ReSignsShields(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	first := createTestShield(t, env)
	second := createTestShield(t, env)

	status, err := env.agility.MigrateToState(context.Background(), domain.StatePQCOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.MigratedCount != 2 || status.TotalCount != 2 {
		t.Errorf("want 2/2 migrated, got %d/%d", status.MigratedCount, status.TotalCount)
	}
	if len(status.FailedShields) != 0 {
		t.Errorf("want no failed shields, got %v", status.FailedShields)
	}
	if env.agility.CurrentState() != domain.StatePQCOnly {
		t.Errorf("want service state PQC_ONLY, got %s", env.agility.CurrentState())
	}

	for _, shieldID := range []string{first.ShieldID, second.ShieldID} {
		shield, err := env.service.GetShield(context.Background(), shieldID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if shield.MigrationState != domain.StatePQCOnly {
			t.Errorf("want shield state PQC_ONLY, got %s", shield.MigrationState)
		}
		if shield.Signature.Mode != domain.ModePQC {
			t.Errorf("want pqc signature mode after migration, got %s", shield.Signature.Mode)
		}

		// 再署名後もシールドは検証可能
		verification, err := env.service.VerifyShield(context.Background(), shieldID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !verification.SignatureValid {
			t.Error("want valid signature after migration")
		}

		// 来歴にMIGRATION_PERFORMEDイベントが追記される
		chain, err := env.provenance.GetChain(context.Background(), shieldID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last := chain.Events[len(chain.Events)-1]
		if last.EventType != domain.EventMigrationPerformed {
			t.Errorf("want last event MIGRATION_PERFORMED, got %s", last.EventType)
		}
	}
}

func TestAgilityService_MigrateToState_Downgrade(t *testing.T) {
	env := newTestEnv(t, domain.StatePQCPrimary)

	_, err := env.agility.MigrateToState(context.Background(), domain.StateHybridSign)
	if !errors.Is(err, domain.ErrInvalidMigrationTarget) {
		t.Errorf("want ErrInvalidMigrationTarget, got %v", err)
	}
}

func TestAgilityService_MigrateToState_UnknownState(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)

	_, err := env.agility.MigrateToState(context.Background(), "QUANTUM_SUPREME")
	if !errors.Is(err, domain.ErrInvalidCryptoState) {
		t.Errorf("want ErrInvalidCryptoState, got %v", err)
	}
}

func TestAgilityService_MigrateToState_AlreadyRunning(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)

	env.agility.mu.Lock()
	env.agility.migrating = true
	env.agility.mu.Unlock()

	_, err := env.agility.MigrateToState(context.Background(), domain.StatePQCOnly)
	if !errors.Is(err, domain.ErrMigrationInProgress) {
		t.Errorf("want ErrMigrationInProgress, got %v", err)
	}
}

func TestAgilityService_MigrateToState_PartialFailure(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	createTestShield(t, env)
	createTestShield(t, env)

	env.shieldRepo.updateErr = errors.New("db down")

	status, err := env.agility.MigrateToState(context.Background(), domain.StatePQCOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.MigratedCount != 0 {
		t.Errorf("want 0 migrated, got %d", status.MigratedCount)
	}
	if len(status.FailedShields) != 2 {
		t.Errorf("want 2 failed shields, got %d", len(status.FailedShields))
	}
}

func TestAgilityService_MigrateToState_ResumeSkipsMigrated(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)
	createTestShield(t, env)

	if _, err := env.agility.MigrateToState(context.Background(), domain.StatePQCOnly); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	appendsBefore := env.ledger.appendCalls

	// 同じ対象への再実行は移行済みシールドを再署名しない
	status, err := env.agility.MigrateToState(context.Background(), domain.StatePQCOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.MigratedCount != 1 {
		t.Errorf("want 1 counted as migrated, got %d", status.MigratedCount)
	}
	if env.ledger.appendCalls != appendsBefore {
		t.Errorf("want no further ledger anchors on resume, got %d more", env.ledger.appendCalls-appendsBefore)
	}
}

func TestAgilityService_NextState(t *testing.T) {
	env := newTestEnv(t, domain.StateHybridSign)

	next, ok := env.agility.NextState()
	if !ok || next != domain.StateHybridEncrypt {
		t.Errorf("want HYBRID_ENCRYPT, got %s (%t)", next, ok)
	}

	final := newTestEnv(t, domain.StatePQCOnly)
	if _, ok := final.agility.NextState(); ok {
		t.Error("want no next state at PQC_ONLY")
	}
}
