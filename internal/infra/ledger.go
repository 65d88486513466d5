package infra

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"quantum-shield-service/internal/domain"
)

// ConsensusLogClient は外部の追記専用コンセンサスログへのRESTクライアント。
// トピックの作成、メッセージの追記、メッセージの読み出しのみを提供する。
// 合意形成そのものはログサービス側の責務。
type ConsensusLogClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewConsensusLogClient は新しいConsensusLogClientを生成する。
func NewConsensusLogClient(baseURL string) *ConsensusLogClient {
	return &ConsensusLogClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type createTopicRequest struct {
	Memo string `json:"memo"`
}

type createTopicResponse struct {
	TopicID string `json:"topic_id"`
}

type appendMessageRequest struct {
	Message string `json:"message"` // base64
}

type appendMessageResponse struct {
	TransactionID  string `json:"transaction_id"`
	SequenceNumber uint64 `json:"sequence_number"`
}

type readMessagesResponse struct {
	Messages []struct {
		SequenceNumber uint64 `json:"sequence_number"`
		Message        string `json:"message"` // base64
		ConsensusAt    string `json:"consensus_at"`
	} `json:"messages"`
}

// CreateTopic は新しいトピックを作成しIDを返す。
func (c *ConsensusLogClient) CreateTopic(ctx context.Context, memo string) (string, error) {
	body, err := json.Marshal(createTopicRequest{Memo: memo})
	if err != nil {
		return "", fmt.Errorf("marshaling topic request: %w", err)
	}

	var resp createTopicResponse
	if err := c.post(ctx, c.baseURL+"/v1/topics", body, &resp); err != nil {
		return "", fmt.Errorf("%w: creating topic: %w", domain.ErrLedgerAnchor, err)
	}
	if resp.TopicID == "" {
		return "", fmt.Errorf("%w: empty topic id in response", domain.ErrLedgerAnchor)
	}
	return resp.TopicID, nil
}

// Append はトピックにメッセージを追記し、レジャー証明を返す。
// 呼び出しが成功を返した時点でメッセージはログ上で確定している。
func (c *ConsensusLogClient) Append(ctx context.Context, topicID string, message []byte) (*domain.LedgerProof, error) {
	body, err := json.Marshal(appendMessageRequest{
		Message: base64.StdEncoding.EncodeToString(message),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling message request: %w", err)
	}

	var resp appendMessageResponse
	url := fmt.Sprintf("%s/v1/topics/%s/messages", c.baseURL, topicID)
	if err := c.post(ctx, url, body, &resp); err != nil {
		return nil, fmt.Errorf("%w: appending message: %w", domain.ErrLedgerAnchor, err)
	}

	return &domain.LedgerProof{
		TopicID:        topicID,
		TransactionID:  resp.TransactionID,
		SequenceNumber: resp.SequenceNumber,
	}, nil
}

// ReadMessages はトピックのメッセージを時系列順に読み出す。
func (c *ConsensusLogClient) ReadMessages(ctx context.Context, topicID string, limit int) ([]domain.LedgerMessage, error) {
	url := fmt.Sprintf("%s/v1/topics/%s/messages?limit=%d", c.baseURL, topicID, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building read request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reading messages: unexpected status %d", httpResp.StatusCode)
	}

	var resp readMessagesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}

	messages := make([]domain.LedgerMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		payload, err := base64.StdEncoding.DecodeString(m.Message)
		if err != nil {
			return nil, fmt.Errorf("decoding message payload: %w", err)
		}
		consensusAt, _ := time.Parse(time.RFC3339Nano, m.ConsensusAt)
		messages = append(messages, domain.LedgerMessage{
			SequenceNumber: m.SequenceNumber,
			Payload:        payload,
			ConsensusAt:    consensusAt,
		})
	}
	return messages, nil
}

func (c *ConsensusLogClient) post(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
