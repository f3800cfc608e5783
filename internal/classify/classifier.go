// Package classify maps confirmed game-program transactions to event types
// by scanning their log messages for program markers.
package classify

import (
	"strings"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/solana"
)

// GameProgramID is the on-chain treasure hunt program.
const GameProgramID = "7fcqEt6ieMEgPNQUbVyxGCpVXFPfRsj7xxHgdwqNB1kh"

// markerGroup binds a set of log substrings to the event type they indicate.
type markerGroup struct {
	eventType domain.EventType
	markers   []string
}

// markerGroups are checked in order against each log line; the first
// matching group wins. Markers come from the program's msg! output.
var markerGroups = []markerGroup{
	{domain.EventHideTreasure, []string{"hiding", "Treasure hidden"}},
	{domain.EventSearchTreasure, []string{"searching for treasure", "Search recorded"}},
	{domain.EventClueRequest, []string{"Buying clue", "Clue purchased"}},
}

// Classifier assigns an event type to a transaction.
type Classifier struct {
	programID string
}

// New creates a Classifier for the given game program.
// An empty programID falls back to GameProgramID.
func New(programID string) *Classifier {
	if programID == "" {
		programID = GameProgramID
	}
	return &Classifier{programID: programID}
}

// ProgramID returns the game program this classifier watches.
func (c *Classifier) ProgramID() string {
	return c.programID
}

// Classify determines the event type of a transaction.
//
// Transactions that do not invoke the game program are Unrecognized.
// Otherwise the log messages are scanned line by line: the first line
// containing any known marker decides the type. Transactions with no
// marker fall back to a token-movement heuristic: any nonzero token
// balance delta means a deposit, otherwise a search. Clue purchases are
// only ever identified by marker.
func (c *Classifier) Classify(tx *solana.Transaction) domain.ClassifiedEvent {
	event := domain.ClassifiedEvent{
		Type:      domain.EventUnrecognized,
		Signature: tx.Signature,
		Wallet:    tx.FeePayer(),
	}

	if !tx.InvokesProgram(c.programID) {
		return event
	}

	for _, line := range tx.Logs() {
		for _, group := range markerGroups {
			for _, marker := range group.markers {
				if strings.Contains(line, marker) {
					event.Type = group.eventType
					return event
				}
			}
		}
	}

	// No marker matched. Token movement distinguishes a deposit from a search.
	if hasTokenDelta(tx) {
		event.Type = domain.EventHideTreasure
	} else {
		event.Type = domain.EventSearchTreasure
	}
	return event
}

// hasTokenDelta reports whether any account's token balance changed.
func hasTokenDelta(tx *solana.Transaction) bool {
	if tx.Meta == nil {
		return false
	}

	pre := make(map[int]uint64, len(tx.Meta.PreTokenBalances))
	for _, b := range tx.Meta.PreTokenBalances {
		pre[b.AccountIndex] = b.Amount
	}

	seen := make(map[int]bool, len(tx.Meta.PostTokenBalances))
	for _, b := range tx.Meta.PostTokenBalances {
		seen[b.AccountIndex] = true
		if pre[b.AccountIndex] != b.Amount {
			return true
		}
	}

	// An account present pre but absent post (closed token account) also
	// counts as movement when its balance was nonzero.
	for idx, amount := range pre {
		if !seen[idx] && amount != 0 {
			return true
		}
	}

	return false
}
