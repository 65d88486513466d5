package infra

import (
	"context"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
)

// KMSClient はCloud KMSの非対称署名クライアントをラップする。
// カストディ委託された署名鍵に対する操作のみを提供し、秘密鍵素材は扱わない。
type KMSClient struct {
	client *kms.KeyManagementClient
}

// NewKMSClient はKMSClientを生成する。
func NewKMSClient(ctx context.Context) (*KMSClient, error) {
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}
	return &KMSClient{client: client}, nil
}

// AsymmetricSign はカストディアン側の鍵でデータに署名する。
func (c *KMSClient) AsymmetricSign(ctx context.Context, keyName string, data []byte) ([]byte, error) {
	req := &kmspb.AsymmetricSignRequest{
		Name: keyName,
		Data: data,
	}
	resp, err := c.client.AsymmetricSign(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("signing with custodial key: %w", err)
	}
	return resp.Signature, nil
}

// PublicKey はカストディアン側の鍵の公開鍵素材を取得する。
func (c *KMSClient) PublicKey(ctx context.Context, keyName string) ([]byte, error) {
	req := &kmspb.GetPublicKeyRequest{
		Name: keyName,
	}
	resp, err := c.client.GetPublicKey(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetching custodial public key: %w", err)
	}
	return []byte(resp.Pem), nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}
