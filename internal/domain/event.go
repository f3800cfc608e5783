package domain

// EventType identifies the semantic class of a monitored transaction.
type EventType string

const (
	// EventHideTreasure is a player depositing tokens into the vault.
	EventHideTreasure EventType = "HIDE_TREASURE"

	// EventSearchTreasure is a player searching map coordinates.
	EventSearchTreasure EventType = "SEARCH_TREASURE"

	// EventClueRequest is a player buying a clue.
	EventClueRequest EventType = "CLUE_REQUEST"

	// EventUnrecognized is a transaction that targets the game program
	// but could not be classified, or does not target it at all.
	// Unrecognized transactions are dropped before dispatch.
	EventUnrecognized EventType = "UNRECOGNIZED"
)

// ClassifiedEvent is the classifier's verdict for a single transaction.
// Exactly one classification exists per transaction; the payload builder
// fills in amounts, coordinates and transfers from the raw transaction.
type ClassifiedEvent struct {
	Type      EventType
	Signature string
	Wallet    string // fee payer, the acting player
}
