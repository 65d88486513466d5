// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"quantum-shield-service/internal/domain"
	"quantum-shield-service/internal/middleware"
	"quantum-shield-service/internal/usecase"
	"quantum-shield-service/pkg/httputil"
)

// ShieldHandler はシールドAPIのHTTPハンドラを提供する。
type ShieldHandler struct {
	service *usecase.ShieldService
	agility *usecase.AgilityService
}

// NewShieldHandler は新しいShieldHandlerを生成する。
func NewShieldHandler(service *usecase.ShieldService, agility *usecase.AgilityService) *ShieldHandler {
	return &ShieldHandler{service: service, agility: agility}
}

// ShieldResponse はシールドのレスポンス形式。
type ShieldResponse struct {
	ShieldID       string               `json:"shield_id"`
	AssetID        string               `json:"asset_id"`
	AssetType      string               `json:"asset_type"`
	Name           string               `json:"name"`
	Owner          string               `json:"owner"`
	Category       string               `json:"category,omitempty"`
	IdentityID     string               `json:"identity_id"`
	IntegrityHash  string               `json:"integrity_hash"`
	Signature      domain.SignatureData `json:"signature"`
	LedgerProof    domain.LedgerProof   `json:"ledger_proof"`
	MigrationState string               `json:"migration_state"`
	MetadataPin    *domain.MetadataPin  `json:"metadata_pin,omitempty"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
	Timestamp      string               `json:"timestamp"`
}

// ShieldListResponse はシールド一覧のレスポンス形式。
type ShieldListResponse struct {
	Shields []ShieldResponse `json:"shields"`
}

// ProvenanceEventResponse は来歴イベントのレスポンス形式。
type ProvenanceEventResponse struct {
	EventID     string               `json:"event_id"`
	ShieldID    string               `json:"shield_id"`
	EventType   string               `json:"event_type"`
	Position    uint                 `json:"position"`
	Timestamp   string               `json:"timestamp"`
	Actor       string               `json:"actor"`
	Data        map[string]any       `json:"data,omitempty"`
	Signature   domain.SignatureData `json:"signature"`
	LedgerProof domain.LedgerProof   `json:"ledger_proof"`
}

// ProvenanceChainResponse は来歴チェーンのレスポンス形式。
type ProvenanceChainResponse struct {
	ShieldID     string                    `json:"shield_id"`
	AssetID      string                    `json:"asset_id"`
	Events       []ProvenanceEventResponse `json:"events"`
	CurrentOwner string                    `json:"current_owner"`
	CreatedAt    string                    `json:"created_at"`
	LastUpdated  string                    `json:"last_updated"`
}

// MigrationResponse は移行状態のレスポンス形式。
type MigrationResponse struct {
	State      string                  `json:"state"`
	NextState  string                  `json:"next_state,omitempty"`
	LastStatus *domain.MigrationStatus `json:"last_migration,omitempty"`
}

// AddEventRequest は来歴イベント追加のリクエスト形式。
type AddEventRequest struct {
	EventType string         `json:"event_type"`
	Actor     string         `json:"actor"`
	Data      map[string]any `json:"data,omitempty"`
}

// MigrateRequest は移行要求のリクエスト形式。
type MigrateRequest struct {
	TargetState string `json:"target_state"`
}

func toShieldResponse(s *domain.Shield) ShieldResponse {
	return ShieldResponse{
		ShieldID:       s.ShieldID,
		AssetID:        s.AssetID,
		AssetType:      string(s.AssetType),
		Name:           s.Name,
		Owner:          s.Owner,
		Category:       s.Category,
		IdentityID:     s.IdentityID,
		IntegrityHash:  s.IntegrityHash,
		Signature:      s.Signature,
		LedgerProof:    s.LedgerProof,
		MigrationState: string(s.MigrationState),
		MetadataPin:    s.MetadataPin,
		Metadata:       s.Metadata,
		Timestamp:      s.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func toChainResponse(c *domain.ProvenanceChain) ProvenanceChainResponse {
	events := make([]ProvenanceEventResponse, len(c.Events))
	for i, e := range c.Events {
		events[i] = ProvenanceEventResponse{
			EventID:     e.EventID,
			ShieldID:    e.ShieldID,
			EventType:   string(e.EventType),
			Position:    e.Position,
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
			Actor:       e.Actor,
			Data:        e.Data,
			Signature:   e.Signature,
			LedgerProof: e.LedgerProof,
		}
	}
	return ProvenanceChainResponse{
		ShieldID:     c.ShieldID,
		AssetID:      c.AssetID,
		Events:       events,
		CurrentOwner: c.CurrentOwner,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastUpdated:  c.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
}

// writeServiceError は共通のエラー変換を行う。
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		httputil.ErrorWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "asset data validation failed", validationErr.Violations)
	case errors.Is(err, domain.ErrShieldNotFound):
		httputil.Error(w, http.StatusNotFound, "SHIELD_NOT_FOUND", "shield not found")
	case errors.Is(err, domain.ErrChainNotFound):
		httputil.Error(w, http.StatusNotFound, "CHAIN_NOT_FOUND", "provenance chain not found")
	case errors.Is(err, domain.ErrInvalidEventType):
		httputil.Error(w, http.StatusBadRequest, "INVALID_EVENT_TYPE", "unknown provenance event type")
	case errors.Is(err, domain.ErrLedgerAnchor):
		httputil.Error(w, http.StatusBadGateway, "LEDGER_ERROR", "failed to anchor to consensus ledger")
	case errors.Is(err, domain.ErrMigrationInProgress):
		httputil.Error(w, http.StatusConflict, "MIGRATION_IN_PROGRESS", "a migration is already running")
	case errors.Is(err, domain.ErrInvalidMigrationTarget), errors.Is(err, domain.ErrInvalidCryptoState):
		httputil.Error(w, http.StatusBadRequest, "INVALID_MIGRATION_TARGET", "migration target is not reachable from the current state")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// CreateShield は資産に量子安全な保護を作成する。
func (h *ShieldHandler) CreateShield(w http.ResponseWriter, r *http.Request) {
	var asset domain.AssetData
	if err := json.NewDecoder(r.Body).Decode(&asset); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	shield, err := h.service.ShieldAsset(r.Context(), &asset)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "CREATE_SHIELD", "", "FAILED")
		writeServiceError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_SHIELD", shield.ShieldID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, toShieldResponse(shield))
}

// GetShield はシールドを取得する。
func (h *ShieldHandler) GetShield(w http.ResponseWriter, r *http.Request) {
	shieldID := chi.URLParam(r, "shield_id")

	shield, err := h.service.GetShield(r.Context(), shieldID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, toShieldResponse(shield))
}

// ListShields はシールド一覧を取得する。
func (h *ShieldHandler) ListShields(w http.ResponseWriter, r *http.Request) {
	shields, err := h.service.ListShields(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := ShieldListResponse{Shields: make([]ShieldResponse, len(shields))}
	for i, s := range shields {
		response.Shields[i] = toShieldResponse(s)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// VerifyShield はシールドの署名と来歴を検証する。
func (h *ShieldHandler) VerifyShield(w http.ResponseWriter, r *http.Request) {
	shieldID := chi.URLParam(r, "shield_id")

	verification, err := h.service.VerifyShield(r.Context(), shieldID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "VERIFY_SHIELD", shieldID, "FAILED")
		writeServiceError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "VERIFY_SHIELD", shieldID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, verification)
}

// GetProvenance は来歴チェーンを取得する。
func (h *ShieldHandler) GetProvenance(w http.ResponseWriter, r *http.Request) {
	shieldID := chi.URLParam(r, "shield_id")

	chain, err := h.service.GetProvenance(r.Context(), shieldID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, toChainResponse(chain))
}

// AddProvenanceEvent は来歴イベントを追加する。
func (h *ShieldHandler) AddProvenanceEvent(w http.ResponseWriter, r *http.Request) {
	shieldID := chi.URLParam(r, "shield_id")

	var req AddEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if req.Actor == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "actor must not be empty")
		return
	}

	event, err := h.service.AddProvenanceEvent(r.Context(), shieldID, domain.ProvenanceEventType(req.EventType), req.Actor, req.Data)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ADD_PROVENANCE_EVENT", shieldID, "FAILED")
		writeServiceError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ADD_PROVENANCE_EVENT", shieldID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, ProvenanceEventResponse{
		EventID:     event.EventID,
		ShieldID:    event.ShieldID,
		EventType:   string(event.EventType),
		Position:    event.Position,
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:       event.Actor,
		Data:        event.Data,
		Signature:   event.Signature,
		LedgerProof: event.LedgerProof,
	})
}

// CheckCompliance は規制適合性を評価する。
func (h *ShieldHandler) CheckCompliance(w http.ResponseWriter, r *http.Request) {
	shieldID := chi.URLParam(r, "shield_id")

	compliance, err := h.service.CheckCompliance(r.Context(), shieldID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, compliance)
}

// AuditAnchors はレジャー上のアンカーと永続化状態の照合結果を返す。
func (h *ShieldHandler) AuditAnchors(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = n
	}

	audit, err := h.service.AuditAnchors(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, audit)
}

// GetMigration は現在の移行状態を取得する。
func (h *ShieldHandler) GetMigration(w http.ResponseWriter, r *http.Request) {
	response := MigrationResponse{
		State:      string(h.agility.CurrentState()),
		LastStatus: h.agility.LastStatus(),
	}
	if next, ok := h.agility.NextState(); ok {
		response.NextState = string(next)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// Migrate は全シールドの一括移行を実行する。
func (h *ShieldHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	target, err := domain.ParseCryptoState(req.TargetState)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_MIGRATION_TARGET", "unknown crypto state")
		return
	}

	status, err := h.agility.MigrateToState(r.Context(), target)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "MIGRATE", "", "FAILED")
		writeServiceError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "MIGRATE", "", "SUCCESS")
	httputil.JSON(w, http.StatusAccepted, status)
}
