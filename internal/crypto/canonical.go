// Package crypto は署名・鍵カプセル化・ハッシュのプリミティブを提供する。
package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON は値を決定的なJSONバイト列に正規化する。
// オブジェクトのキーは辞書順に並び、同じ値は常に同じバイト列になる。
// 署名者・検証者・ハッシュ計算は必ずこの関数を共有すること。
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling value: %w", err)
	}

	// 一旦genericな形に落とすことで、構造体のフィールド順ではなく
	// マップのキー順（encoding/jsonは辞書順で出力する）に正規化する。
	// 数値リテラルはjson.Numberのまま保持して再変換の誤差を避ける。
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling value: %w", err)
	}
	return canonical, nil
}
