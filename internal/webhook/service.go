// Package webhook implements the ingestion service: it receives envelope
// batches from the monitor, validates them and persists them idempotently,
// and serves the read-side query API.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/observability"
	"treasure-monitor/internal/storage"
)

// Stores bundles the persistence backends the service writes to.
type Stores struct {
	Deposits storage.DepositStore
	Searches storage.SearchStore
	Clues    storage.ClueStore
}

// Options configures a Service.
type Options struct {
	Stores Stores

	// AuthSecret is compared against the Authorization header. Empty
	// disables auth entirely; the service logs a warning at startup.
	AuthSecret string

	// GridWidth and GridHeight bound search coordinates. Defaults to
	// the standard 100x100 game map.
	GridWidth  int
	GridHeight int

	Logger *log.Logger
}

// Service validates and persists webhook envelopes.
type Service struct {
	stores     Stores
	authSecret string
	gridWidth  int
	gridHeight int
	logger     *log.Logger
	ready      bool
}

// NewService creates a Service. Stores must be set before marking ready.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[webhookd] ", log.LstdFlags)
	}
	width := opts.GridWidth
	if width == 0 {
		width = domain.DefaultGridWidth
	}
	height := opts.GridHeight
	if height == 0 {
		height = domain.DefaultGridHeight
	}
	if opts.AuthSecret == "" {
		logger.Printf("WARN auth secret not configured, accepting all requests")
	}
	return &Service{
		stores:     opts.Stores,
		authSecret: opts.AuthSecret,
		gridWidth:  width,
		gridHeight: height,
		logger:     logger,
	}
}

// SetReady marks the persistence layer usable. Webhook posts received
// before readiness are rejected with 503 so the sender knows to retry.
func (s *Service) SetReady(ready bool) {
	s.ready = ready
}

// Ready reports whether the persistence layer is usable.
func (s *Service) Ready() bool {
	return s.ready
}

// authorized checks the Authorization header value against the secret.
func (s *Service) authorized(header string) bool {
	if s.authSecret == "" {
		return true
	}
	return header == s.authSecret
}

// EnvelopeResult is the per-envelope outcome reported back to the sender.
type EnvelopeResult struct {
	Signature string `json:"signature"`
	Stored    bool   `json:"stored"`
	Reason    string `json:"reason,omitempty"`
}

// processBatch persists a batch of envelopes of the given type. Envelopes
// that fail validation or carry no typed event are skipped, not rejected:
// the sender cannot fix them by retrying, and failing the batch would
// block valid envelopes behind them. A storage error fails the batch.
func (s *Service) processBatch(ctx context.Context, t domain.EventType, envs []*domain.WebhookEnvelope) ([]EnvelopeResult, error) {
	results := make([]EnvelopeResult, 0, len(envs))
	for _, env := range envs {
		res, err := s.processOne(ctx, t, env)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) processOne(ctx context.Context, t domain.EventType, env *domain.WebhookEnvelope) (EnvelopeResult, error) {
	res := EnvelopeResult{Signature: env.Signature}
	observability.RecordEnvelopeReceived()

	if env.Signature == "" {
		res.Reason = "missing signature"
		s.logger.Printf("WARN skipping envelope with no signature")
		observability.RecordEnvelopeSkipped()
		return res, nil
	}

	ev := env.Event(t)
	if ev == nil {
		// An envelope on the wrong endpoint or from a newer sender
		// version. Nothing to store.
		res.Reason = fmt.Sprintf("no %s event in envelope", t)
		observability.RecordEnvelopeSkipped()
		return res, nil
	}

	var err error
	switch t {
	case domain.EventHideTreasure:
		err = s.storeDeposit(ctx, env, ev)
	case domain.EventSearchTreasure:
		err = s.storeSearch(ctx, env, ev)
	case domain.EventClueRequest:
		err = s.storeClue(ctx, env, ev)
	default:
		res.Reason = fmt.Sprintf("unsupported event type %s", t)
		observability.RecordEnvelopeSkipped()
		return res, nil
	}

	if err != nil {
		if errors.Is(err, errValidation) {
			res.Reason = err.Error()
			s.logger.Printf("WARN skipping envelope %s: %v", env.Signature, err)
			observability.RecordEnvelopeSkipped()
			return res, nil
		}
		return res, fmt.Errorf("persist %s: %w", env.Signature, err)
	}

	res.Stored = true
	observability.RecordEnvelopeStored(string(t))
	return res, nil
}

// errValidation marks errors the sender cannot fix by retrying.
var errValidation = errors.New("validation failed")

func (s *Service) storeDeposit(ctx context.Context, env *domain.WebhookEnvelope, ev *domain.EnvelopeEvent) error {
	data := ev.Hide
	if data == nil {
		return fmt.Errorf("%w: hide event has no data", errValidation)
	}
	if data.Wallet == "" {
		return fmt.Errorf("%w: missing wallet", errValidation)
	}
	if data.Amount == 0 {
		return fmt.Errorf("%w: zero deposit amount", errValidation)
	}
	if data.TokenMint == "" {
		return fmt.Errorf("%w: missing token mint", errValidation)
	}
	s.checkWalletKey(data.Wallet)

	d := &domain.TreasureDeposit{
		Signature: env.Signature,
		Wallet:    data.Wallet,
		Amount:    data.Amount,
		TokenMint: data.TokenMint,
	}
	d.BlockTime = env.Timestamp
	d.Slot = env.Slot
	d.Fee = env.Fee
	d.ProgramID = ev.ProgramID
	return s.stores.Deposits.Upsert(ctx, d)
}

func (s *Service) storeSearch(ctx context.Context, env *domain.WebhookEnvelope, ev *domain.EnvelopeEvent) error {
	data := ev.Search
	if data == nil {
		return fmt.Errorf("%w: search event has no data", errValidation)
	}
	if data.Wallet == "" {
		return fmt.Errorf("%w: missing wallet", errValidation)
	}
	if !domain.InGrid(data.X, data.Y, s.gridWidth, s.gridHeight) {
		return fmt.Errorf("%w: coordinates (%d, %d) outside %dx%d grid",
			errValidation, data.X, data.Y, s.gridWidth, s.gridHeight)
	}
	s.checkWalletKey(data.Wallet)

	m := &domain.MapSearch{
		Signature: env.Signature,
		Wallet:    data.Wallet,
		X:         data.X,
		Y:         data.Y,
		SearchID:  data.SearchID,
	}
	m.BlockTime = env.Timestamp
	m.Slot = env.Slot
	m.Fee = env.Fee
	m.ProgramID = ev.ProgramID
	return s.stores.Searches.Upsert(ctx, m)
}

func (s *Service) storeClue(ctx context.Context, env *domain.WebhookEnvelope, ev *domain.EnvelopeEvent) error {
	data := ev.Clue
	if data == nil {
		return fmt.Errorf("%w: clue event has no data", errValidation)
	}
	if data.Wallet == "" {
		return fmt.Errorf("%w: missing wallet", errValidation)
	}
	if data.ClueTarget == "" {
		return fmt.Errorf("%w: missing clue target", errValidation)
	}
	s.checkWalletKey(data.Wallet)

	c := &domain.ClueRequest{
		Signature:  env.Signature,
		Wallet:     data.Wallet,
		ClueTarget: data.ClueTarget,
		AmountPaid: data.AmountPaid,
	}
	c.BlockTime = env.Timestamp
	c.Slot = env.Slot
	c.Fee = env.Fee
	c.ProgramID = ev.ProgramID
	return s.stores.Clues.Upsert(ctx, c)
}

// checkWalletKey warns when a wallet is not a valid ed25519 public key.
// Warn-only: local test environments use placeholder wallet names, and a
// malformed wallet is still worth recording for audit.
func (s *Service) checkWalletKey(wallet string) {
	raw, err := base58.Decode(wallet)
	if err != nil || len(raw) != 32 {
		s.logger.Printf("WARN wallet %q is not a 32-byte base58 key", wallet)
		return
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		s.logger.Printf("WARN wallet %q is not on the ed25519 curve", wallet)
	}
}
