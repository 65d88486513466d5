// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "shieldctl",
		Short: "Quantum Shield Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("SHIELDCTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set SHIELDCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(shieldCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(provenanceCmd())
	rootCmd.AddCommand(complianceCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("shieldctl version %s\n", version)
		},
	}
}

func requireAPIURL() error {
	if apiURL == "" {
		return fmt.Errorf("--api-url is required (or set SHIELDCTL_API_URL)")
	}
	return nil
}

// shieldCmd は資産の保護コマンド。
func shieldCmd() *cobra.Command {
	var assetID, assetType, name, owner, category, metadataJSON string
	cmd := &cobra.Command{
		Use:   "shield",
		Short: "Shield an asset with post-quantum protection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			request := map[string]any{
				"asset_id":   assetID,
				"asset_type": assetType,
				"name":       name,
				"owner":      owner,
			}
			if category != "" {
				request["category"] = category
			}
			if metadataJSON != "" {
				var metadata map[string]any
				if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
					return fmt.Errorf("parsing --metadata: %w", err)
				}
				request["metadata"] = metadata
			}

			body, err := postJSON(apiURL+"/v1/shields", request, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]any
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Shielded asset %q (shield: %v, state: %v)\n", assetID, result["shield_id"], result["migration_state"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&assetID, "asset-id", "", "Asset ID (required)")
	cmd.Flags().StringVar(&assetType, "asset-type", "nft", "Asset type: nft, ip, document, data")
	cmd.Flags().StringVar(&name, "name", "", "Asset name (required)")
	cmd.Flags().StringVar(&owner, "owner", "", "Asset owner (required)")
	cmd.Flags().StringVar(&category, "category", "", "Asset category")
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "Asset metadata as JSON object")
	cmd.MarkFlagRequired("asset-id")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("owner")
	return cmd
}

// verifyCmd はシールドの検証コマンド。
func verifyCmd() *cobra.Command {
	var shieldID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a shield's signature and provenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			body, err := getJSON(fmt.Sprintf("%s/v1/shields/%s/verify", apiURL, shieldID))
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Valid           bool     `json:"valid"`
					SignatureValid  bool     `json:"signature_valid"`
					ProvenanceValid bool     `json:"provenance_valid"`
					MigrationState  string   `json:"migration_state"`
					Warnings        []string `json:"warnings"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("valid: %t (signature: %t, provenance: %t, state: %s)\n",
					result.Valid, result.SignatureValid, result.ProvenanceValid, result.MigrationState)
				for _, w := range result.Warnings {
					fmt.Println(w)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&shieldID, "shield", "", "Shield ID (required)")
	cmd.MarkFlagRequired("shield")
	return cmd
}

// provenanceCmd は来歴の取得・追加コマンド。
func provenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provenance",
		Short: "Manage provenance chains",
	}
	cmd.AddCommand(provenanceGetCmd())
	cmd.AddCommand(provenanceAddCmd())
	return cmd
}

func provenanceGetCmd() *cobra.Command {
	var shieldID string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get the provenance chain for a shield",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			body, err := getJSON(fmt.Sprintf("%s/v1/shields/%s/provenance", apiURL, shieldID))
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					CurrentOwner string `json:"current_owner"`
					Events       []struct {
						Position  uint   `json:"position"`
						EventType string `json:"event_type"`
						Actor     string `json:"actor"`
						Timestamp string `json:"timestamp"`
					} `json:"events"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("current owner: %s\n", result.CurrentOwner)
				fmt.Printf("%-10s %-24s %-16s %s\n", "POSITION", "EVENT_TYPE", "ACTOR", "TIMESTAMP")
				for _, e := range result.Events {
					fmt.Printf("%-10d %-24s %-16s %s\n", e.Position, e.EventType, e.Actor, e.Timestamp)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&shieldID, "shield", "", "Shield ID (required)")
	cmd.MarkFlagRequired("shield")
	return cmd
}

func provenanceAddCmd() *cobra.Command {
	var shieldID, eventType, actor, dataJSON string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a provenance event to a shield",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			request := map[string]any{
				"event_type": strings.ToUpper(eventType),
				"actor":      actor,
			}
			if dataJSON != "" {
				var data map[string]any
				if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
					return fmt.Errorf("parsing --data: %w", err)
				}
				request["data"] = data
			}

			url := fmt.Sprintf("%s/v1/shields/%s/provenance", apiURL, shieldID)
			body, err := postJSON(url, request, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]any
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Added event %v at position %v\n", result["event_type"], result["position"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&shieldID, "shield", "", "Shield ID (required)")
	cmd.Flags().StringVar(&eventType, "type", "", "Event type (required)")
	cmd.Flags().StringVar(&actor, "actor", "", "Event actor (required)")
	cmd.Flags().StringVar(&dataJSON, "data", "", "Event data as JSON object")
	cmd.MarkFlagRequired("shield")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("actor")
	return cmd
}

// complianceCmd は適合性評価コマンド。
func complianceCmd() *cobra.Command {
	var shieldID string
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Check regulatory compliance for a shield",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			body, err := getJSON(fmt.Sprintf("%s/v1/shields/%s/compliance", apiURL, shieldID))
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Compliant       bool            `json:"compliant"`
					Regulations     map[string]bool `json:"regulations"`
					Recommendations []string        `json:"recommendations"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("compliant: %t\n", result.Compliant)
				for name, ok := range result.Regulations {
					fmt.Printf("  %-16s %t\n", name, ok)
				}
				for _, rec := range result.Recommendations {
					fmt.Println(rec)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&shieldID, "shield", "", "Shield ID (required)")
	cmd.MarkFlagRequired("shield")
	return cmd
}

// migrateCmd は一括移行コマンド。
func migrateCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate all shields to a new crypto state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			if target == "" {
				body, err := getJSON(apiURL + "/v1/migration")
				if err != nil {
					return err
				}
				fmt.Println(string(body))
				return nil
			}

			request := map[string]any{"target_state": strings.ToUpper(target)}
			body, err := postJSON(apiURL+"/v1/migration", request, http.StatusAccepted)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					TargetState   string   `json:"target_state"`
					MigratedCount int      `json:"migrated_count"`
					TotalCount    int      `json:"total_count"`
					FailedShields []string `json:"failed_shields"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Migrated %d/%d shields to %s\n", result.MigratedCount, result.TotalCount, result.TargetState)
				for _, id := range result.FailedShields {
					fmt.Printf("  failed: %s\n", id)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Target crypto state (omit to show current state)")
	return cmd
}

// listCmd はシールド一覧の取得コマンド。
func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all shields",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			body, err := getJSON(apiURL + "/v1/shields")
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Shields []struct {
						ShieldID       string `json:"shield_id"`
						AssetID        string `json:"asset_id"`
						Owner          string `json:"owner"`
						MigrationState string `json:"migration_state"`
					} `json:"shields"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("%-38s %-20s %-16s %s\n", "SHIELD_ID", "ASSET_ID", "OWNER", "STATE")
				for _, s := range result.Shields {
					fmt.Printf("%-38s %-20s %-16s %s\n", s.ShieldID, s.AssetID, s.Owner, s.MigrationState)
				}
			}
			return nil
		},
	}
	return cmd
}

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Reconcile ledger anchors against persisted records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			body, err := getJSON(fmt.Sprintf("%s/v1/audit/anchors?limit=%d", apiURL, limit))
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					TopicID  string `json:"topic_id"`
					Total    int    `json:"total"`
					Orphaned int    `json:"orphaned"`
					Records  []struct {
						SequenceNumber uint64 `json:"sequence_number"`
						ShieldID       string `json:"shield_id"`
						EventID        string `json:"event_id"`
						Persisted      bool   `json:"persisted"`
					} `json:"records"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("Topic:    %s\n", result.TopicID)
				fmt.Printf("Anchors:  %d\n", result.Total)
				fmt.Printf("Orphaned: %d\n", result.Orphaned)
				for _, r := range result.Records {
					if !r.Persisted {
						fmt.Printf("  seq %d shield %s event %s: anchored but not persisted\n", r.SequenceNumber, r.ShieldID, r.EventID)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of anchor messages to read")
	return cmd
}

func getJSON(url string) ([]byte, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func postJSON(url string, request any, wantStatus int) ([]byte, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		if len(errResp.Details) > 0 {
			return fmt.Errorf("Error: %s (%s)", errResp.Message, strings.Join(errResp.Details, "; "))
		}
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
