package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"quantum-shield-service/internal/domain"
)

// PinningClient はIPFS系のピン留めサービスへのRESTクライアント。
type PinningClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewPinningClient は新しいPinningClientを生成する。
func NewPinningClient(baseURL, authToken string) *PinningClient {
	return &PinningClient{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type pinResponse struct {
	CID string `json:"cid"`
	URL string `json:"url"`
}

// UploadJSON は値をJSONとしてアップロードしてピン留めし、CIDを返す。
func (c *PinningClient) UploadJSON(ctx context.Context, name string, v any) (*domain.MetadataPin, error) {
	payload, err := json.Marshal(map[string]any{
		"name":    name,
		"content": v,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/pins", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("uploading metadata: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var pin pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pin); err != nil {
		return nil, fmt.Errorf("decoding pin response: %w", err)
	}
	return &domain.MetadataPin{CID: pin.CID, URL: pin.URL}, nil
}
