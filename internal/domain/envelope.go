package domain

import "encoding/json"

// WebhookEnvelope is the wire payload dispatched to the ingestion service.
// The shape mirrors the enhanced-transaction format of the production webhook
// provider, so the ingestion service cannot tell a local monitor from the
// real thing. Signature is the idempotency key and must be non-empty.
type WebhookEnvelope struct {
	Signature       string           `json:"signature"`
	Type            EventType        `json:"type"`
	Timestamp       int64            `json:"timestamp"` // Unix seconds (block time)
	Slot            int64            `json:"slot"`
	Fee             uint64           `json:"fee"` // lamports
	FeePayer        string           `json:"feePayer"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	Events          []EnvelopeEvent  `json:"events"`
	Description     string           `json:"description"`
}

// NativeTransfer is a SOL movement reconstructed from lamport balance deltas.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          uint64 `json:"amount"` // lamports
}

// TokenTransfer is an SPL token movement reconstructed from token balance deltas.
type TokenTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Mint            string `json:"mint"`
	TokenAmount     uint64 `json:"tokenAmount"` // raw units
}

// EnvelopeEvent is a typed domain event carried inside an envelope.
// Exactly one of the typed payloads is set for known event types; Raw is a
// forward-compatibility fallback for types this build does not know about.
type EnvelopeEvent struct {
	Type      EventType       `json:"type"`
	ProgramID string          `json:"programId"`
	Hide      *HideEventData  `json:"hide,omitempty"`
	Search    *SearchEventData `json:"search,omitempty"`
	Clue      *ClueEventData  `json:"clue,omitempty"`
	Raw       json.RawMessage `json:"data,omitempty"`
}

// HideEventData carries the deposit details of a HIDE_TREASURE event.
type HideEventData struct {
	Wallet    string `json:"wallet"`
	Amount    uint64 `json:"amount"`
	TokenMint string `json:"tokenMint"`
}

// SearchEventData carries the coordinates of a SEARCH_TREASURE event.
type SearchEventData struct {
	Wallet   string `json:"wallet"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	SearchID int64  `json:"searchId"`
}

// ClueEventData carries the purchase details of a CLUE_REQUEST event.
type ClueEventData struct {
	Wallet     string `json:"wallet"`
	ClueTarget string `json:"clueTarget"`
	AmountPaid uint64 `json:"amountPaid"`
}

// Event returns the typed event of the given type, or nil if the envelope
// does not carry one. Envelopes without a matching event are skipped by the
// ingestion service rather than rejected.
func (e *WebhookEnvelope) Event(t EventType) *EnvelopeEvent {
	for i := range e.Events {
		if e.Events[i].Type == t {
			return &e.Events[i]
		}
	}
	return nil
}
