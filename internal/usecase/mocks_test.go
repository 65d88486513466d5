package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"quantum-shield-service/internal/crypto"
	"quantum-shield-service/internal/domain"
)

// memIdentityRepo はテスト用のインメモリアイデンティティリポジトリ。
type memIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]*domain.Identity
	createErr  error
}

func newMemIdentityRepo() *memIdentityRepo {
	return &memIdentityRepo{identities: make(map[string]*domain.Identity)}
}

func (m *memIdentityRepo) Create(ctx context.Context, identity *domain.Identity) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = identity
	return nil
}

func (m *memIdentityRepo) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identities[id], nil
}

// memShieldRepo はテスト用のインメモリシールドリポジトリ。
type memShieldRepo struct {
	mu        sync.Mutex
	shields   map[string]*domain.Shield
	order     []string
	createErr error
	updateErr error
}

func newMemShieldRepo() *memShieldRepo {
	return &memShieldRepo{shields: make(map[string]*domain.Shield)}
}

func (m *memShieldRepo) Create(ctx context.Context, shield *domain.Shield) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *shield
	m.shields[shield.ShieldID] = &copied
	m.order = append(m.order, shield.ShieldID)
	return nil
}

func (m *memShieldRepo) FindByID(ctx context.Context, shieldID string) (*domain.Shield, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shield, ok := m.shields[shieldID]
	if !ok {
		return nil, nil
	}
	copied := *shield
	return &copied, nil
}

func (m *memShieldRepo) FindAll(ctx context.Context) ([]*domain.Shield, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shields := make([]*domain.Shield, 0, len(m.order))
	for _, id := range m.order {
		copied := *m.shields[id]
		shields = append(shields, &copied)
	}
	return shields, nil
}

func (m *memShieldRepo) UpdateMigration(ctx context.Context, shieldID string, state domain.CryptoState, sig domain.SignatureData, proof domain.LedgerProof) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	shield, ok := m.shields[shieldID]
	if !ok {
		return fmt.Errorf("shield %s not found", shieldID)
	}
	shield.MigrationState = state
	shield.Signature = sig
	shield.LedgerProof = proof
	return nil
}

// memProvenanceRepo はテスト用のインメモリ来歴リポジトリ。
type memProvenanceRepo struct {
	mu        sync.Mutex
	chains    map[string]*domain.ProvenanceChain
	appendErr error
}

func newMemProvenanceRepo() *memProvenanceRepo {
	return &memProvenanceRepo{chains: make(map[string]*domain.ProvenanceChain)}
}

func (m *memProvenanceRepo) CreateChain(ctx context.Context, chain *domain.ProvenanceChain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *chain
	m.chains[chain.ShieldID] = &copied
	return nil
}

func (m *memProvenanceRepo) AppendEvent(ctx context.Context, event *domain.ProvenanceEvent, currentOwner string) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chain, ok := m.chains[event.ShieldID]
	if !ok {
		return domain.ErrChainNotFound
	}
	copied := *event
	chain.Events = append(chain.Events, &copied)
	chain.LastUpdated = event.Timestamp
	if currentOwner != "" {
		chain.CurrentOwner = currentOwner
	}
	return nil
}

func (m *memProvenanceRepo) FindChain(ctx context.Context, shieldID string) (*domain.ProvenanceChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain, ok := m.chains[shieldID]
	if !ok {
		return nil, nil
	}
	copied := *chain
	copied.Events = append([]*domain.ProvenanceEvent(nil), chain.Events...)
	return &copied, nil
}

func (m *memProvenanceRepo) CountEvents(ctx context.Context, shieldID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain, ok := m.chains[shieldID]
	if !ok {
		return 0, nil
	}
	return int64(len(chain.Events)), nil
}

// mockLedger はテスト用のモックコンセンサスログ。
type mockLedger struct {
	mu          sync.Mutex
	sequence    uint64
	topicCalls  int
	appendCalls int
	messages    []domain.LedgerMessage
	createErr   error
	appendErr   error
}

func (m *mockLedger) CreateTopic(ctx context.Context, memo string) (string, error) {
	if m.createErr != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLedgerAnchor, m.createErr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topicCalls++
	return "0.0.9001", nil
}

func (m *mockLedger) Append(ctx context.Context, topicID string, message []byte) (*domain.LedgerProof, error) {
	if m.appendErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLedgerAnchor, m.appendErr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++
	m.sequence++
	m.messages = append(m.messages, domain.LedgerMessage{
		SequenceNumber: m.sequence,
		Payload:        append([]byte(nil), message...),
	})
	return &domain.LedgerProof{
		TopicID:        topicID,
		TransactionID:  fmt.Sprintf("0.0.2@%d", m.sequence),
		SequenceNumber: m.sequence,
	}, nil
}

func (m *mockLedger) ReadMessages(ctx context.Context, topicID string, limit int) ([]domain.LedgerMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := m.messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return append([]domain.LedgerMessage(nil), messages...), nil
}

// mockMetadataStore はテスト用のモックメタデータストア。
type mockMetadataStore struct {
	uploadCalls int
	uploadErr   error
}

func (m *mockMetadataStore) UploadJSON(ctx context.Context, name string, v any) (*domain.MetadataPin, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	m.uploadCalls++
	return &domain.MetadataPin{CID: "bafytest", URL: "https://ipfs.example/bafytest"}, nil
}

// mockKMS はテスト用のモックカストディアン。
type mockKMS struct {
	signErr error
}

func (m *mockKMS) AsymmetricSign(ctx context.Context, keyName string, data []byte) ([]byte, error) {
	if m.signErr != nil {
		return nil, m.signErr
	}
	return []byte("custodial-signature"), nil
}

func (m *mockKMS) PublicKey(ctx context.Context, keyName string) ([]byte, error) {
	return []byte("-----BEGIN PUBLIC KEY-----\ncustodial\n-----END PUBLIC KEY-----"), nil
}

// testEnv はユースケース層のテスト用アセンブリ。
type testEnv struct {
	identityRepo   *memIdentityRepo
	shieldRepo     *memShieldRepo
	provenanceRepo *memProvenanceRepo
	ledger         *mockLedger
	metadata       *mockMetadataStore
	keyStore       *KeyStoreService
	signer         *SignatureService
	anchor         *LedgerAnchor
	provenance     *ProvenanceService
	agility        *AgilityService
	service        *ShieldService
}

func newTestEnv(t *testing.T, state domain.CryptoState) *testEnv {
	t.Helper()

	env := &testEnv{
		identityRepo:   newMemIdentityRepo(),
		shieldRepo:     newMemShieldRepo(),
		provenanceRepo: newMemProvenanceRepo(),
		ledger:         &mockLedger{},
		metadata:       &mockMetadataStore{},
	}

	pqc := crypto.NewMLDSAProvider()
	classical := crypto.NewEd25519Provider()
	kem := crypto.NewMLKEMProvider()

	env.keyStore = NewKeyStoreService(env.identityRepo, pqc, classical, kem, nil, "", 365)
	env.signer = NewSignatureService(env.keyStore, pqc, classical, nil)
	env.anchor = NewLedgerAnchor(env.ledger)
	env.provenance = NewProvenanceService(env.provenanceRepo, env.signer, env.anchor)
	env.agility = NewAgilityService(env.shieldRepo, env.provenance, env.signer, env.anchor, state)
	env.service = NewShieldService(env.shieldRepo, env.keyStore, env.signer, env.provenance, env.agility, env.anchor, env.ledger, env.metadata)
	return env
}

func testAsset() *domain.AssetData {
	return &domain.AssetData{
		AssetID:   "0.0.100:1",
		AssetType: domain.AssetTypeNFT,
		Name:      "Test",
		Owner:     "0.0.200",
	}
}
