// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantum-shield-service/config"
	"quantum-shield-service/internal/crypto"
	"quantum-shield-service/internal/domain"
	"quantum-shield-service/internal/handler"
	"quantum-shield-service/internal/infra"
	"quantum-shield-service/internal/repository"
	"quantum-shield-service/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// ログレベル設定
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, logLevel)

	// 初期移行状態
	initialState, err := domain.ParseCryptoState(cfg.InitialCryptoState)
	if err != nil {
		slog.Error("invalid CRYPTO_STATE", "value", cfg.InitialCryptoState, "error", err)
		os.Exit(1)
	}

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	if err := repository.AutoMigrate(db); err != nil {
		slog.Error("failed to migrate database schema", "error", err)
		os.Exit(1)
	}

	// レジャークライアント初期化
	if cfg.LedgerURL == "" {
		slog.Error("LEDGER_URL is not set")
		os.Exit(1)
	}
	ledger := infra.NewConsensusLogClient(cfg.LedgerURL)

	// KMSクライアント初期化（カストディ委託時のみ）
	var kms usecase.KMSSigner
	if cfg.KMSKeyName != "" {
		kmsClient, err := infra.NewKMSClient(ctx)
		if err != nil {
			slog.Error("failed to init KMS client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := kmsClient.Close(); closeErr != nil {
				slog.Error("failed to close KMS client", "error", closeErr)
			}
		}()
		kms = kmsClient
	}

	// メタデータストア初期化（設定時のみ）
	var metadata usecase.MetadataStore
	if cfg.MetadataStoreURL != "" {
		metadata = infra.NewPinningClient(cfg.MetadataStoreURL, cfg.MetadataStoreToken)
	}

	// DI
	identityRepo := repository.NewIdentityRepository(db)
	shieldRepo := repository.NewShieldRepository(db)
	provenanceRepo := repository.NewProvenanceRepository(db)

	pqcSigner := crypto.NewMLDSAProvider()
	classicalSigner := crypto.NewEd25519Provider()
	kemProvider := crypto.NewMLKEMProvider()

	keyStore := usecase.NewKeyStoreService(identityRepo, pqcSigner, classicalSigner, kemProvider, kms, cfg.KMSKeyName, cfg.RotationDays)
	signer := usecase.NewSignatureService(keyStore, pqcSigner, classicalSigner, kms)
	anchor := usecase.NewLedgerAnchor(ledger)
	provenance := usecase.NewProvenanceService(provenanceRepo, signer, anchor)
	agility := usecase.NewAgilityService(shieldRepo, provenance, signer, anchor, initialState)
	service := usecase.NewShieldService(shieldRepo, keyStore, signer, provenance, agility, anchor, ledger, metadata)

	h := handler.NewShieldHandler(service, agility)
	router := handler.NewRouter(h, cfg.OtelEnabled)

	// サーバー起動
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "crypto_state", initialState)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
