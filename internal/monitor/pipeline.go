package monitor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Ktl-XV/account-monitor/internal/metrics"
	"github.com/Ktl-XV/account-monitor/internal/model"
	"github.com/Ktl-XV/account-monitor/internal/notify"
)

// DefaultMaxBlockRange caps how many blocks a single Events-mode tick may
// cover, keeping eth_getLogs responses bounded on busy chains.
const DefaultMaxBlockRange = 100

// ErrDebugDone signals that a DEBUG_BLOCK run finished its single
// extraction; the process should exit cleanly.
var ErrDebugDone = errors.New("debug block processed")

// HeadReader reads the chain head.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Extractor converts an inclusive block range into transfer events.
type Extractor interface {
	Extract(ctx context.Context, fromBlock, toBlock uint64) ([]model.TransferEvent, error)
}

// Pipeline is the per-chain loop: poll the head, extract the new range,
// match, notify, advance the cursor. The cursor only moves after a fully
// successful extraction, so a failed range is re-fetched on the next tick.
type Pipeline struct {
	chain     model.Chain
	head      HeadReader
	extractor Extractor
	matcher   *Matcher
	notifier  notify.Notifier
	logger    *zap.Logger

	// maxRange bounds the blocks covered per tick; 0 means unbounded.
	maxRange uint64

	// debugBlock pins the pipeline to a single block when set.
	debugBlock *uint64
}

// NewPipeline wires a chain pipeline.
func NewPipeline(
	chain model.Chain,
	head HeadReader,
	extractor Extractor,
	matcher *Matcher,
	notifier notify.Notifier,
	logger *zap.Logger,
	maxRange uint64,
	debugBlock *uint64,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		chain:      chain,
		head:       head,
		extractor:  extractor,
		matcher:    matcher,
		notifier:   notifier,
		logger:     logger.With(zap.String("chain", chain.Key)),
		maxRange:   maxRange,
		debugBlock: debugBlock,
	}
}

// Run executes the pacing loop until the context is cancelled. Runtime RPC
// failures are contained: the cursor stays put and, after the block-time
// sleep, the range is retried from the same start block up to the new head.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.debugBlock != nil {
		return p.runDebug(ctx, *p.debugBlock)
	}

	head, err := p.head.BlockNumber(ctx)
	if err != nil {
		return err
	}
	cursor := head

	p.logger.Info("starting account watcher",
		zap.String("mode", string(p.chain.Mode)),
		zap.Uint64("head", head),
	)

	for {
		head, err := p.head.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("head poll failed", zap.Error(err))
			if err := sleepCtx(ctx, p.chain.BlockTime); err != nil {
				return nil
			}
			continue
		}

		metrics.CurrentBlock.WithLabelValues(p.chain.Key).Set(float64(head))

		if head > cursor {
			from := cursor + 1
			to := head
			if p.maxRange > 0 && to-from+1 > p.maxRange {
				to = from + p.maxRange - 1
			}

			if processed := p.processRange(ctx, from, to); processed {
				cursor = to
			} else if ctx.Err() != nil {
				return nil
			}
		}

		if err := sleepCtx(ctx, p.chain.BlockTime); err != nil {
			return nil
		}
	}
}

// processRange reports whether the cursor may advance to the end of the
// range.
func (p *Pipeline) processRange(ctx context.Context, from, to uint64) bool {
	p.logger.Debug("processing range", zap.Uint64("from", from), zap.Uint64("to", to))

	events, err := p.extractor.Extract(ctx, from, to)
	if err != nil {
		p.logger.Error("extraction failed, range will be retried",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Error(err),
		)
		return false
	}

	for _, notification := range p.matcher.Process(events) {
		p.send(ctx, notification)
	}

	metrics.BlocksProcessed.WithLabelValues(p.chain.Key).Add(float64(to - from + 1))
	return true
}

func (p *Pipeline) send(ctx context.Context, notification model.Notification) {
	if err := p.notifier.Send(ctx, notification); err != nil {
		// The block already counts as processed; the notification is lost.
		p.logger.Error("notification delivery failed",
			zap.String("tx", notification.TxHash.Hex()),
			zap.Error(err),
		)
	}
}

// runDebug extracts exactly one block and exits. Used to reproduce a known
// transaction against a live endpoint.
func (p *Pipeline) runDebug(ctx context.Context, block uint64) error {
	p.logger.Warn("running in debug mode, processing single block", zap.Uint64("block", block))

	events, err := p.extractor.Extract(ctx, block, block)
	if err != nil {
		return err
	}

	notifications := p.matcher.Process(events)
	if len(notifications) == 0 {
		p.logger.Warn("no transaction by monitored accounts found, have the accounts been set up?")
		return ErrDebugDone
	}

	for _, notification := range notifications {
		p.send(ctx, notification)
	}
	p.logger.Info("debug notifications sent, exiting", zap.Int("count", len(notifications)))
	return ErrDebugDone
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
