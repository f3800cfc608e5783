package payload

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"treasure-monitor/internal/classify"
	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/solana"
)

func testBuilder() *Builder {
	return NewBuilder(classify.GameProgramID, log.New(io.Discard, "", 0))
}

func depositTx() *solana.Transaction {
	return &solana.Transaction{
		Signature: "SIGabc",
		Slot:      1000,
		BlockTime: 1700000000,
		Meta: &solana.TransactionMeta{
			Fee: 5000,
			LogMessages: []string{
				"Program log: Player WALLET1 hiding 500 tokens as treasure",
				"Program log: Treasure hidden successfully",
			},
			PreBalances:  []uint64{1000000000, 2039280, 1},
			PostBalances: []uint64{999995000, 2039280, 1},
			PreTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: "MINTxyz", Owner: "WALLET1", Amount: 500},
				{AccountIndex: 2, Mint: "MINTxyz", Owner: "VAULT1", Amount: 0},
			},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: "MINTxyz", Owner: "WALLET1", Amount: 0},
				{AccountIndex: 2, Mint: "MINTxyz", Owner: "VAULT1", Amount: 500},
			},
		},
		Message: &solana.TransactionMessage{
			AccountKeys:  []string{"WALLET1", "walletTokenAcct", "vaultTokenAcct", classify.GameProgramID},
			Instructions: []solana.Instruction{{ProgramIDIndex: 3}},
		},
	}
}

func TestBuild_HideTreasure(t *testing.T) {
	b := testBuilder()
	event := domain.ClassifiedEvent{Type: domain.EventHideTreasure, Signature: "SIGabc", Wallet: "WALLET1"}

	env, err := b.Build(event, depositTx())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if env.Signature != "SIGabc" {
		t.Errorf("signature = %s, want SIGabc", env.Signature)
	}
	if env.Type != domain.EventHideTreasure {
		t.Errorf("type = %s, want %s", env.Type, domain.EventHideTreasure)
	}
	if env.Fee != 5000 || env.FeePayer != "WALLET1" || env.Slot != 1000 || env.Timestamp != 1700000000 {
		t.Errorf("unexpected blockchain meta: %+v", env)
	}

	if len(env.TokenTransfers) != 1 {
		t.Fatalf("expected 1 token transfer, got %d", len(env.TokenTransfers))
	}
	tr := env.TokenTransfers[0]
	if tr.FromUserAccount != "WALLET1" || tr.ToUserAccount != "VAULT1" || tr.Mint != "MINTxyz" || tr.TokenAmount != 500 {
		t.Errorf("unexpected token transfer: %+v", tr)
	}

	ev := env.Event(domain.EventHideTreasure)
	if ev == nil || ev.Hide == nil {
		t.Fatal("expected typed hide event")
	}
	if ev.Hide.Wallet != "WALLET1" || ev.Hide.Amount != 500 || ev.Hide.TokenMint != "MINTxyz" {
		t.Errorf("unexpected hide data: %+v", ev.Hide)
	}
	if env.Description == "" {
		t.Error("expected a human-readable description")
	}

	// The envelope must survive a wire round trip with its idempotency key.
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded domain.WebhookEnvelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Signature != "SIGabc" {
		t.Errorf("round-tripped signature = %s", decoded.Signature)
	}
}

func TestBuild_HideTreasure_NoTransfer(t *testing.T) {
	b := testBuilder()
	tx := depositTx()
	tx.Meta.PreTokenBalances = nil
	tx.Meta.PostTokenBalances = nil

	_, err := b.Build(domain.ClassifiedEvent{Type: domain.EventHideTreasure, Signature: "SIGabc", Wallet: "WALLET1"}, tx)
	if !errors.Is(err, ErrNoTokenTransfer) {
		t.Errorf("expected ErrNoTokenTransfer, got %v", err)
	}
}

func searchTx(logs []string) *solana.Transaction {
	return &solana.Transaction{
		Signature: "SIGsearch",
		Slot:      1001,
		BlockTime: 1700000100,
		Meta: &solana.TransactionMeta{
			Fee:         5000,
			LogMessages: logs,
		},
		Message: &solana.TransactionMessage{
			AccountKeys:  []string{"WALLET1", classify.GameProgramID},
			Instructions: []solana.Instruction{{ProgramIDIndex: 1}},
		},
	}
}

func TestBuild_SearchTreasure(t *testing.T) {
	b := testBuilder()
	tx := searchTx([]string{
		"Program log: Player WALLET1 searching for treasure at coordinates (3, 7)",
		"Program log: Search recorded at (3, 7)",
		"Program log: Search ID: 42",
	})

	env, err := b.Build(domain.ClassifiedEvent{Type: domain.EventSearchTreasure, Signature: "SIGsearch", Wallet: "WALLET1"}, tx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ev := env.Event(domain.EventSearchTreasure)
	if ev == nil || ev.Search == nil {
		t.Fatal("expected typed search event")
	}
	if ev.Search.X != 3 || ev.Search.Y != 7 {
		t.Errorf("coordinates = (%d, %d), want (3, 7)", ev.Search.X, ev.Search.Y)
	}
	if ev.Search.SearchID != 42 {
		t.Errorf("search id = %d, want 42", ev.Search.SearchID)
	}
}

func TestBuild_SearchTreasure_IntentLineOnly(t *testing.T) {
	b := testBuilder()
	tx := searchTx([]string{
		"Program log: Player WALLET1 searching for treasure at coordinates (-2, 15)",
	})

	env, err := b.Build(domain.ClassifiedEvent{Type: domain.EventSearchTreasure, Signature: "SIGsearch", Wallet: "WALLET1"}, tx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ev := env.Event(domain.EventSearchTreasure)
	if ev.Search.X != -2 || ev.Search.Y != 15 {
		t.Errorf("coordinates = (%d, %d), want (-2, 15)", ev.Search.X, ev.Search.Y)
	}
	if ev.Search.SearchID != 0 {
		t.Errorf("search id = %d, want 0 when absent", ev.Search.SearchID)
	}
}

func TestBuild_SearchTreasure_NoCoordinates(t *testing.T) {
	b := testBuilder()
	tx := searchTx([]string{"Program log: Instruction: Search"})

	_, err := b.Build(domain.ClassifiedEvent{Type: domain.EventSearchTreasure, Signature: "SIGsearch", Wallet: "WALLET1"}, tx)
	if !errors.Is(err, ErrNoCoordinates) {
		t.Errorf("expected ErrNoCoordinates, got %v", err)
	}
}

func TestBuild_ClueRequest(t *testing.T) {
	b := testBuilder()
	tx := depositTx()
	tx.Signature = "SIGclue"
	tx.Meta.LogMessages = []string{
		"Program log: Player WALLET1 Buying clue for quadrant_hint",
		"Program log: Clue purchased: quadrant_hint",
	}

	env, err := b.Build(domain.ClassifiedEvent{Type: domain.EventClueRequest, Signature: "SIGclue", Wallet: "WALLET1"}, tx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ev := env.Event(domain.EventClueRequest)
	if ev == nil || ev.Clue == nil {
		t.Fatal("expected typed clue event")
	}
	if ev.Clue.ClueTarget != "quadrant_hint" {
		t.Errorf("clue target = %s, want quadrant_hint", ev.Clue.ClueTarget)
	}
	if ev.Clue.AmountPaid != 500 {
		t.Errorf("amount paid = %d, want 500", ev.Clue.AmountPaid)
	}
}

func TestBuild_ClueRequest_NoTarget(t *testing.T) {
	b := testBuilder()
	tx := searchTx([]string{"Program log: Instruction: BuyClue"})

	_, err := b.Build(domain.ClassifiedEvent{Type: domain.EventClueRequest, Signature: "SIGsearch", Wallet: "WALLET1"}, tx)
	if !errors.Is(err, ErrNoClueTarget) {
		t.Errorf("expected ErrNoClueTarget, got %v", err)
	}
}

func TestBuild_Unrecognized(t *testing.T) {
	b := testBuilder()
	_, err := b.Build(domain.ClassifiedEvent{Type: domain.EventUnrecognized, Signature: "SIGx"}, searchTx(nil))
	if !errors.Is(err, ErrUnbuildable) {
		t.Errorf("expected ErrUnbuildable, got %v", err)
	}
}

func TestTokenTransfers_UnmatchedIncreaseDropped(t *testing.T) {
	b := testBuilder()
	tx := depositTx()
	// Break the pairing: the vault gains 500 but nobody loses 500.
	tx.Meta.PreTokenBalances = []solana.TokenBalance{
		{AccountIndex: 2, Mint: "MINTxyz", Owner: "VAULT1", Amount: 0},
	}
	tx.Meta.PostTokenBalances = []solana.TokenBalance{
		{AccountIndex: 2, Mint: "MINTxyz", Owner: "VAULT1", Amount: 500},
	}

	transfers := b.tokenTransfers(tx)
	if len(transfers) != 0 {
		t.Errorf("expected unmatched increase to be dropped, got %+v", transfers)
	}
}

func TestNativeTransfers_FeeAdjusted(t *testing.T) {
	b := testBuilder()
	tx := &solana.Transaction{
		Signature: "SIGnative",
		Meta: &solana.TransactionMeta{
			Fee: 5000,
			// WALLET1 pays 5000 fee plus sends 100000 lamports to VAULT1.
			PreBalances:  []uint64{1000000, 50000},
			PostBalances: []uint64{895000, 150000},
		},
		Message: &solana.TransactionMessage{
			AccountKeys: []string{"WALLET1", "VAULT1"},
		},
	}

	transfers := b.nativeTransfers(tx)
	if len(transfers) != 1 {
		t.Fatalf("expected 1 native transfer, got %d", len(transfers))
	}
	tr := transfers[0]
	if tr.FromUserAccount != "WALLET1" || tr.ToUserAccount != "VAULT1" || tr.Amount != 100000 {
		t.Errorf("unexpected native transfer: %+v", tr)
	}
}
