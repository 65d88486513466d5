package crypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// IntegrityHash は資産レコードの正規化表現に対するSHA3-256ダイジェストを
// 16進文字列で返す。純粋関数で、同一入力は常に同一出力になる。
// 署名とは独立にメタデータの改竄を検出するための値であり、署名の代替ではない。
func IntegrityHash(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", fmt.Errorf("canonicalizing asset data: %w", err)
	}
	sum := sha3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
