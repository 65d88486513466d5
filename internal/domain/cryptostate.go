package domain

import "fmt"

// CryptoState は暗号移行の状態を表す。
// 古典暗号のみの状態からポスト量子暗号のみの状態へ一方向に遷移する。
type CryptoState string

const (
	// StateClassicalOnly はRSA/ECDSAのみの状態（レガシー）。
	StateClassicalOnly CryptoState = "CLASSICAL_ONLY"
	// StateHybridSign は古典署名とPQC署名を併用する状態。
	StateHybridSign CryptoState = "HYBRID_SIGN"
	// StateHybridEncrypt は署名に加えて暗号化もハイブリッド化した状態。
	StateHybridEncrypt CryptoState = "HYBRID_ENCRYPT"
	// StatePQCPrimary はPQCを主系とし古典をフォールバックとする状態。
	StatePQCPrimary CryptoState = "PQC_PRIMARY"
	// StatePQCOnly は純粋なポスト量子暗号の状態。
	StatePQCOnly CryptoState = "PQC_ONLY"
)

// stateOrder は移行順序を定義する。ダウングレードは存在しない。
var stateOrder = []CryptoState{
	StateClassicalOnly,
	StateHybridSign,
	StateHybridEncrypt,
	StatePQCPrimary,
	StatePQCOnly,
}

// ParseCryptoState は文字列をCryptoStateに変換する。
func ParseCryptoState(s string) (CryptoState, error) {
	for _, state := range stateOrder {
		if string(state) == s {
			return state, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidCryptoState, s)
}

// Rank は移行順序上の位置を返す。未知の状態は-1。
func (s CryptoState) Rank() int {
	for i, state := range stateOrder {
		if state == s {
			return i
		}
	}
	return -1
}

// Before は s が other より前の状態かを返す。
func (s CryptoState) Before(other CryptoState) bool {
	return s.Rank() < other.Rank()
}

// Next は次の移行状態を返す。最終状態の場合はfalse。
func (s CryptoState) Next() (CryptoState, bool) {
	rank := s.Rank()
	if rank < 0 || rank >= len(stateOrder)-1 {
		return "", false
	}
	return stateOrder[rank+1], true
}

// SignatureMode は署名の構成を表す。
type SignatureMode string

const (
	// ModeClassical はed25519署名のみ。
	ModeClassical SignatureMode = "classical"
	// ModeHybrid はed25519とML-DSAの両方の署名を要求する。
	ModeHybrid SignatureMode = "hybrid"
	// ModePQC はML-DSA署名のみ。
	ModePQC SignatureMode = "pqc"
)

// SignatureModeFor は移行状態に対応する署名モードを返す。
func SignatureModeFor(state CryptoState) SignatureMode {
	switch state {
	case StateClassicalOnly:
		return ModeClassical
	case StateHybridSign, StateHybridEncrypt:
		return ModeHybrid
	default:
		return ModePQC
	}
}
