package httptransport

import (
	"encoding/hex"
	"fmt"
	"strings"

	"taxlens/internal/fhe"
	"taxlens/internal/recommend"
)

// HexBytes is a byte string carried as 0x-prefixed hex in JSON.
type HexBytes []byte

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(b)), nil
}

func (b *HexBytes) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(strings.TrimPrefix(string(text), "0x"), "0X")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*b = decoded
	return nil
}

type createProfileRequest struct {
	Assets          fhe.Handle `json:"assets"`
	FamilyStructure fhe.Handle `json:"family_structure"`
	TaxJurisdiction fhe.Handle `json:"tax_jurisdiction"`
}

type requestIDResponse struct {
	RequestID fhe.RequestID `json:"request_id"`
}

type recommendRequest struct {
	Options []recommend.Option `json:"options"`
}

type recommendResponse struct {
	Options []recommend.Option `json:"options"`
}

// CallbackRequest is one oracle delivery posted over HTTP.
type CallbackRequest struct {
	RequestID  fhe.RequestID `json:"request_id"`
	Cleartexts HexBytes      `json:"cleartexts"`
	Proof      HexBytes      `json:"proof"`
}

type encryptRequest struct {
	Text *string `json:"text,omitempty"`
	Uint *uint64 `json:"uint,omitempty"`
}

type encryptResponse struct {
	Handle fhe.Handle `json:"handle"`
}
