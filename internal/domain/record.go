package domain

import "time"

// Status is the lifecycle state of a stored record. Transitions are
// monotonic: a record starts active and moves to exactly one terminal state.
// Records are never hard-deleted; expiry is a status, not a removal.
type Status string

const (
	StatusActive    Status = "active"
	StatusClaimed   Status = "claimed"
	StatusExpired   Status = "expired"
	StatusFound     Status = "found"
	StatusNotFound  Status = "not_found"
	StatusFulfilled Status = "fulfilled"
)

// RecordKind identifies which stored-record shape a status belongs to.
type RecordKind string

const (
	KindDeposit RecordKind = "deposit"
	KindSearch  RecordKind = "search"
	KindClue    RecordKind = "clue"
)

// statusMachine maps each kind to its allowed transitions. Terminal states
// have no outgoing edges.
var statusMachine = map[RecordKind]map[Status][]Status{
	KindDeposit: {StatusActive: {StatusClaimed, StatusExpired}},
	KindSearch:  {StatusActive: {StatusFound, StatusNotFound}},
	KindClue:    {StatusActive: {StatusFulfilled, StatusExpired}},
}

// ValidStatus reports whether s is a known status for the given kind.
func ValidStatus(kind RecordKind, s Status) bool {
	if s == StatusActive {
		return true
	}
	for _, to := range statusMachine[kind][StatusActive] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidTransition reports whether from → to is a legal status transition
// for the given kind. Self-transitions are allowed (idempotent updates).
func ValidTransition(kind RecordKind, from, to Status) bool {
	if from == to {
		return ValidStatus(kind, to)
	}
	for _, allowed := range statusMachine[kind][from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Default game map bounds. The chain program accepts arbitrary i32
// coordinates; the game map does not.
const (
	DefaultGridWidth  = 100
	DefaultGridHeight = 100
)

// InGrid reports whether (x, y) lies within a width×height grid.
func InGrid(x, y, width, height int) bool {
	return x >= 0 && x < width && y >= 0 && y < height
}

// BlockchainMeta is the ledger context shared by all stored records.
type BlockchainMeta struct {
	BlockTime int64  `json:"blockTime"`
	Slot      int64  `json:"slot"`
	Fee       uint64 `json:"fee"`
	ProgramID string `json:"programId"`
}

// TreasureDeposit records a HIDE_TREASURE event. Signature is the primary
// key; re-delivery of the same signature merges, never duplicates.
type TreasureDeposit struct {
	Signature string    `json:"signature"`
	Wallet    string    `json:"wallet"`
	Amount    uint64    `json:"amount"`
	TokenMint string    `json:"tokenMint"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	BlockchainMeta
}

// MapSearch records a SEARCH_TREASURE event.
type MapSearch struct {
	Signature string    `json:"signature"`
	Wallet    string    `json:"wallet"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	SearchID  int64     `json:"searchId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	BlockchainMeta
}

// ClueRequest records a CLUE_REQUEST event.
type ClueRequest struct {
	Signature  string    `json:"signature"`
	Wallet     string    `json:"wallet"`
	ClueTarget string    `json:"clueTarget"`
	AmountPaid uint64    `json:"amountPaid"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	BlockchainMeta
}
