// Package monitor polls the ledger for game-program transactions and
// pushes them through classification, payload building and dispatch.
package monitor

import (
	"context"
	"log"
	"time"

	"treasure-monitor/internal/classify"
	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/observability"
	"treasure-monitor/internal/payload"
	"treasure-monitor/internal/solana"
)

// Dispatcher delivers a built envelope. Satisfied by dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, env *domain.WebhookEnvelope) error
}

const defaultPageLimit = 10

// Options configures a Poller.
type Options struct {
	RPC        solana.RPCClient
	Classifier *classify.Classifier
	Builder    *payload.Builder
	Dispatcher Dispatcher

	// Interval between polling cycles. Defaults to 15s.
	Interval time.Duration

	// PageLimit caps signatures fetched per cycle. Defaults to 10;
	// the first cycle with no watermark only ever sees one page.
	PageLimit int

	// Wake, when set, triggers an immediate cycle between ticks. The
	// log watcher feeds it; notifications are a hint, not a queue.
	Wake <-chan struct{}

	Logger *log.Logger
}

// Poller drives the transaction pipeline. It keeps a watermark, the most
// recent signature it has finished a cycle past, and asks the ledger only
// for signatures newer than it. The watermark lives in memory; a restart
// re-reads the most recent page and relies on idempotent ingestion to
// absorb the overlap.
type Poller struct {
	rpc        solana.RPCClient
	classifier *classify.Classifier
	builder    *payload.Builder
	dispatcher Dispatcher
	interval   time.Duration
	pageLimit  int
	wake       <-chan struct{}
	logger     *log.Logger

	watermark string
}

// NewPoller creates a Poller.
func NewPoller(opts Options) *Poller {
	interval := opts.Interval
	if interval == 0 {
		interval = 15 * time.Second
	}
	pageLimit := opts.PageLimit
	if pageLimit == 0 {
		pageLimit = defaultPageLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[monitor] ", log.LstdFlags)
	}
	return &Poller{
		rpc:        opts.RPC,
		classifier: opts.Classifier,
		builder:    opts.Builder,
		dispatcher: opts.Dispatcher,
		interval:   interval,
		pageLimit:  pageLimit,
		wake:       opts.Wake,
		logger:     logger,
	}
}

// Watermark returns the last signature a cycle has advanced past.
func (p *Poller) Watermark() string {
	return p.watermark
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Printf("polling program %s every %s", p.classifier.ProgramID(), p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First cycle runs immediately.
	p.Cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Cycle(ctx)
		case <-p.wake:
			p.Cycle(ctx)
		}
	}
}

// Cycle runs one poll: fetch new signatures, process them oldest first,
// advance the watermark past everything processed.
//
// A signature-fetch error skips the cycle entirely and cannot corrupt the
// watermark. A transaction-fetch error stops the cycle early: the
// watermark advances only past the prefix that was processed, so the
// failed signature is revisited next cycle. Classification, build and
// dispatch errors are logged and do NOT stop the watermark; delivery is
// at-most-once and gaps are visible in the delivery log.
func (p *Poller) Cycle(ctx context.Context) {
	sigs, err := p.fetchNewSignatures(ctx)
	if err != nil {
		p.logger.Printf("WARN fetch signatures: %v", err)
		observability.RecordPollCycle("error")
		return
	}
	observability.RecordSignaturesFetched(len(sigs))
	if len(sigs) == 0 {
		observability.RecordPollCycle("empty")
		observability.MarkCycleSuccess(time.Now().Unix())
		return
	}

	// The ledger returns newest first; process oldest first so the
	// ingestion service sees events in chain order.
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig.Failed() {
			p.watermark = sig.Signature
			continue
		}

		tx, err := p.rpc.GetTransaction(ctx, sig.Signature)
		if err != nil {
			p.logger.Printf("WARN fetch transaction %s: %v", sig.Signature, err)
			observability.RecordPollCycle("partial")
			return
		}
		if tx == nil {
			// Not yet queryable at this commitment; retry next cycle.
			p.logger.Printf("transaction %s not available yet", sig.Signature)
			observability.RecordPollCycle("partial")
			return
		}

		p.process(ctx, tx)
		p.watermark = sig.Signature
	}

	observability.RecordPollCycle("ok")
	observability.MarkCycleSuccess(time.Now().Unix())
}

// fetchNewSignatures pages backwards from the tip until it reaches the
// watermark, returning everything newer than it, newest first. Without a
// watermark only the most recent page is taken; older history is not
// backfilled on a cold start.
func (p *Poller) fetchNewSignatures(ctx context.Context) ([]solana.SignatureInfo, error) {
	const maxPages = 10

	var (
		all    []solana.SignatureInfo
		before string
	)
	for page := 0; page < maxPages; page++ {
		opts := &solana.SignaturesOpts{Limit: p.pageLimit, Before: before}
		if p.watermark != "" {
			opts.Until = p.watermark
		}

		sigs, err := p.rpc.GetSignaturesForAddress(ctx, p.classifier.ProgramID(), opts)
		if err != nil {
			return nil, err
		}
		all = append(all, sigs...)

		if len(sigs) < p.pageLimit || p.watermark == "" {
			break
		}
		before = sigs[len(sigs)-1].Signature
	}
	return all, nil
}

func (p *Poller) process(ctx context.Context, tx *solana.Transaction) {
	event := p.classifier.Classify(tx)
	observability.RecordEventClassified(string(event.Type))
	if event.Type == domain.EventUnrecognized {
		p.logger.Printf("skipping unrecognized transaction %s", tx.Signature)
		return
	}

	env, err := p.builder.Build(event, tx)
	if err != nil {
		p.logger.Printf("WARN build payload %s: %v", tx.Signature, err)
		observability.RecordPayloadBuildFailure()
		return
	}

	if err := p.dispatcher.Dispatch(ctx, env); err != nil {
		p.logger.Printf("WARN dispatch %s: %v", tx.Signature, err)
		return
	}

	p.logger.Printf("dispatched %s event %s", event.Type, tx.Signature)
}
