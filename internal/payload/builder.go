// Package payload builds webhook envelopes from classified transactions.
//
// Building is fail-closed: an envelope is only produced when every field
// the event type requires could be extracted from the transaction. A build
// error means the transaction is logged and skipped, never dispatched
// half-filled.
package payload

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/solana"
)

// Sentinel errors for missing required data.
var (
	ErrNoMeta          = errors.New("payload: transaction has no meta")
	ErrNoTokenTransfer = errors.New("payload: no token transfer found for deposit")
	ErrNoCoordinates   = errors.New("payload: no search coordinates in logs")
	ErrNoClueTarget    = errors.New("payload: no clue target in logs")
	ErrUnbuildable     = errors.New("payload: event type has no envelope form")
)

var (
	// "Program log: Search recorded at (3, 7)"
	searchRecordedRe = regexp.MustCompile(`Search recorded at \((-?\d+), (-?\d+)\)`)
	// "Program log: Player ... searching for treasure at coordinates (3, 7)"
	searchingAtRe = regexp.MustCompile(`searching for treasure at coordinates \((-?\d+), (-?\d+)\)`)
	// "Program log: Search ID: 42"
	searchIDRe = regexp.MustCompile(`Search ID: (-?\d+)`)
	// "Program log: Clue purchased: quadrant_hint"
	cluePurchasedRe = regexp.MustCompile(`Clue purchased: (\S+)`)
	// "Program log: ... Buying clue for quadrant_hint"
	buyingClueRe = regexp.MustCompile(`Buying clue for (\S+)`)
)

// Builder turns classified transactions into webhook envelopes.
type Builder struct {
	programID string
	logger    *log.Logger
}

// NewBuilder creates a Builder. The program ID is stamped into typed events.
func NewBuilder(programID string, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New(log.Writer(), "[payload] ", log.LstdFlags)
	}
	return &Builder{programID: programID, logger: logger}
}

// Build constructs the envelope for a classified transaction.
func (b *Builder) Build(event domain.ClassifiedEvent, tx *solana.Transaction) (*domain.WebhookEnvelope, error) {
	if tx.Meta == nil {
		return nil, ErrNoMeta
	}

	env := &domain.WebhookEnvelope{
		Signature:       tx.Signature,
		Type:            event.Type,
		Timestamp:       tx.BlockTime,
		Slot:            tx.Slot,
		Fee:             tx.Meta.Fee,
		FeePayer:        tx.FeePayer(),
		NativeTransfers: b.nativeTransfers(tx),
		TokenTransfers:  b.tokenTransfers(tx),
	}

	switch event.Type {
	case domain.EventHideTreasure:
		if err := b.buildHide(env, event); err != nil {
			return nil, err
		}
	case domain.EventSearchTreasure:
		if err := b.buildSearch(env, event, tx); err != nil {
			return nil, err
		}
	case domain.EventClueRequest:
		if err := b.buildClue(env, event, tx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnbuildable, event.Type)
	}

	return env, nil
}

func (b *Builder) buildHide(env *domain.WebhookEnvelope, event domain.ClassifiedEvent) error {
	// The deposit is the wallet's outgoing token transfer. With several,
	// the first in account order is taken.
	var deposit *domain.TokenTransfer
	for i := range env.TokenTransfers {
		if env.TokenTransfers[i].FromUserAccount == event.Wallet {
			deposit = &env.TokenTransfers[i]
			break
		}
	}
	if deposit == nil && len(env.TokenTransfers) == 1 {
		// A single transfer in a deposit transaction is the deposit even
		// when its source account is a derived token account.
		deposit = &env.TokenTransfers[0]
	}
	if deposit == nil {
		return ErrNoTokenTransfer
	}

	env.Events = append(env.Events, domain.EnvelopeEvent{
		Type:      domain.EventHideTreasure,
		ProgramID: b.programID,
		Hide: &domain.HideEventData{
			Wallet:    event.Wallet,
			Amount:    deposit.TokenAmount,
			TokenMint: deposit.Mint,
		},
	})
	env.Description = fmt.Sprintf("%s hid %d tokens of %s as treasure", event.Wallet, deposit.TokenAmount, deposit.Mint)
	return nil
}

func (b *Builder) buildSearch(env *domain.WebhookEnvelope, event domain.ClassifiedEvent, tx *solana.Transaction) error {
	x, y, ok := searchCoordinates(tx.Logs())
	if !ok {
		return ErrNoCoordinates
	}

	var searchID int64
	for _, line := range tx.Logs() {
		if m := searchIDRe.FindStringSubmatch(line); m != nil {
			searchID, _ = strconv.ParseInt(m[1], 10, 64)
			break
		}
	}

	env.Events = append(env.Events, domain.EnvelopeEvent{
		Type:      domain.EventSearchTreasure,
		ProgramID: b.programID,
		Search: &domain.SearchEventData{
			Wallet:   event.Wallet,
			X:        x,
			Y:        y,
			SearchID: searchID,
		},
	})
	env.Description = fmt.Sprintf("%s searched for treasure at (%d, %d)", event.Wallet, x, y)
	return nil
}

func (b *Builder) buildClue(env *domain.WebhookEnvelope, event domain.ClassifiedEvent, tx *solana.Transaction) error {
	var target string
	for _, line := range tx.Logs() {
		if m := cluePurchasedRe.FindStringSubmatch(line); m != nil {
			target = m[1]
			break
		}
		if m := buyingClueRe.FindStringSubmatch(line); m != nil {
			target = m[1]
			// Keep scanning: "Clue purchased" is more authoritative.
		}
	}
	if target == "" {
		return ErrNoClueTarget
	}

	// The purchase price is the wallet's outgoing token volume.
	var paid uint64
	for _, tr := range env.TokenTransfers {
		if tr.FromUserAccount == event.Wallet {
			paid += tr.TokenAmount
		}
	}

	env.Events = append(env.Events, domain.EnvelopeEvent{
		Type:      domain.EventClueRequest,
		ProgramID: b.programID,
		Clue: &domain.ClueEventData{
			Wallet:     event.Wallet,
			ClueTarget: target,
			AmountPaid: paid,
		},
	})
	env.Description = fmt.Sprintf("%s purchased clue %s", event.Wallet, target)
	return nil
}

// searchCoordinates extracts (x, y) from the logs, preferring the program's
// confirmation line over the intent line.
func searchCoordinates(logs []string) (x, y int, ok bool) {
	for _, re := range []*regexp.Regexp{searchRecordedRe, searchingAtRe} {
		for _, line := range logs {
			if m := re.FindStringSubmatch(line); m != nil {
				x, _ = strconv.Atoi(m[1])
				y, _ = strconv.Atoi(m[2])
				return x, y, true
			}
		}
	}
	return 0, 0, false
}

// tokenTransfers reconstructs SPL token movements from balance snapshots.
// Each balance increase is paired with an equal-magnitude decrease of the
// same mint. Unmatched increases are dropped with a warning rather than
// guessed at.
func (b *Builder) tokenTransfers(tx *solana.Transaction) []domain.TokenTransfer {
	type delta struct {
		owner  string
		mint   string
		amount uint64 // magnitude
	}

	pre := make(map[int]solana.TokenBalance, len(tx.Meta.PreTokenBalances))
	for _, bal := range tx.Meta.PreTokenBalances {
		pre[bal.AccountIndex] = bal
	}

	var increases, decreases []delta
	seen := make(map[int]bool, len(tx.Meta.PostTokenBalances))
	for _, post := range tx.Meta.PostTokenBalances {
		seen[post.AccountIndex] = true
		prev := pre[post.AccountIndex]
		switch {
		case post.Amount > prev.Amount:
			increases = append(increases, delta{owner: post.Owner, mint: post.Mint, amount: post.Amount - prev.Amount})
		case post.Amount < prev.Amount:
			decreases = append(decreases, delta{owner: prev.Owner, mint: prev.Mint, amount: prev.Amount - post.Amount})
		}
	}
	// Token accounts closed during the transaction drop out of the post
	// snapshot; their full pre balance left the account.
	for idx, prev := range pre {
		if !seen[idx] && prev.Amount > 0 {
			decreases = append(decreases, delta{owner: prev.Owner, mint: prev.Mint, amount: prev.Amount})
		}
	}

	var transfers []domain.TokenTransfer
	used := make([]bool, len(decreases))
	for _, inc := range increases {
		matched := false
		for i, dec := range decreases {
			if used[i] || dec.mint != inc.mint || dec.amount != inc.amount {
				continue
			}
			used[i] = true
			transfers = append(transfers, domain.TokenTransfer{
				FromUserAccount: dec.owner,
				ToUserAccount:   inc.owner,
				Mint:            inc.mint,
				TokenAmount:     inc.amount,
			})
			matched = true
			break
		}
		if !matched {
			b.logger.Printf("WARN tx=%s: unmatched token balance increase mint=%s amount=%d, dropping", tx.Signature, inc.mint, inc.amount)
		}
	}
	return transfers
}

// nativeTransfers reconstructs SOL movements from lamport balance deltas.
// The fee payer's loss is reduced by the transaction fee before pairing,
// so the fee itself never shows up as a transfer.
func (b *Builder) nativeTransfers(tx *solana.Transaction) []domain.NativeTransfer {
	if len(tx.Meta.PreBalances) != len(tx.Meta.PostBalances) || tx.Message == nil {
		return nil
	}

	type delta struct {
		account string
		amount  uint64
	}
	var gains, losses []delta
	for i := range tx.Meta.PostBalances {
		if i >= len(tx.Message.AccountKeys) {
			break
		}
		preBal, postBal := tx.Meta.PreBalances[i], tx.Meta.PostBalances[i]
		if i == 0 {
			// Fee payer: add the fee back so only real transfers remain.
			preBal -= min(tx.Meta.Fee, preBal)
		}
		switch {
		case postBal > preBal:
			gains = append(gains, delta{account: tx.Message.AccountKeys[i], amount: postBal - preBal})
		case postBal < preBal:
			losses = append(losses, delta{account: tx.Message.AccountKeys[i], amount: preBal - postBal})
		}
	}

	var transfers []domain.NativeTransfer
	used := make([]bool, len(losses))
	for _, g := range gains {
		for i, l := range losses {
			if used[i] || l.amount != g.amount {
				continue
			}
			used[i] = true
			transfers = append(transfers, domain.NativeTransfer{
				FromUserAccount: l.account,
				ToUserAccount:   g.account,
				Amount:          g.amount,
			})
			break
		}
	}
	return transfers
}
