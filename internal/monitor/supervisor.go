package monitor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ktl-XV/account-monitor/internal/catalog"
	"github.com/Ktl-XV/account-monitor/internal/chain"
	"github.com/Ktl-XV/account-monitor/internal/extract"
	"github.com/Ktl-XV/account-monitor/internal/model"
	"github.com/Ktl-XV/account-monitor/internal/notify"
	"github.com/Ktl-XV/account-monitor/internal/registry"
)

// Supervisor owns one pipeline per configured chain. A failing pipeline is
// restarted after a block-time delay without touching its siblings.
type Supervisor struct {
	chains     []model.Chain
	registry   *registry.Registry
	catalog    *catalog.Catalog
	notifier   notify.Notifier
	logger     *zap.Logger
	debugBlock *uint64
}

// NewSupervisor wires the supervisor.
func NewSupervisor(
	chains []model.Chain,
	reg *registry.Registry,
	cat *catalog.Catalog,
	notifier notify.Notifier,
	logger *zap.Logger,
	debugBlock *uint64,
) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		chains:     chains,
		registry:   reg,
		catalog:    cat,
		notifier:   notifier,
		logger:     logger,
		debugBlock: debugBlock,
	}
}

// Run blocks until the context is cancelled or, in debug mode, until the
// first pipeline finishes its single block.
func (s *Supervisor) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, chainCfg := range s.chains {
		chainCfg := chainCfg
		group.Go(func() error {
			return s.superviseChain(ctx, chainCfg)
		})
	}
	return group.Wait()
}

func (s *Supervisor) superviseChain(ctx context.Context, cfg model.Chain) error {
	logger := s.logger.With(zap.String("chain", cfg.Key))

	for {
		err := s.runPipelineOnce(ctx, cfg, logger)
		if errors.Is(err, ErrDebugDone) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Error("pipeline failed, restarting", zap.Error(err))
		} else {
			return nil
		}
		if sleepErr := sleepCtx(ctx, cfg.BlockTime); sleepErr != nil {
			return nil
		}
	}
}

func (s *Supervisor) runPipelineOnce(ctx context.Context, cfg model.Chain, logger *zap.Logger) error {
	client, err := chain.Dial(ctx, cfg.Key, cfg.RPCURL, cfg.BlockTime, logger)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	chainID, err := s.verifyChainID(ctx, cfg, client)
	if err != nil {
		return err
	}

	decoder, err := extract.NewDecoder(cfg.Key, logger)
	if err != nil {
		return err
	}

	var extractor Extractor
	var maxRange uint64
	switch cfg.Mode {
	case model.ModeEvents:
		extractor = extract.NewEventsExtractor(client, decoder)
		maxRange = DefaultMaxBlockRange
	default:
		extractor = extract.NewBlocksExtractor(client, decoder, cfg.Key)
	}

	matcher := NewMatcher(cfg, chainID, s.registry, s.catalog, logger)
	pipeline := NewPipeline(cfg, client, extractor, matcher, s.notifier, logger, maxRange, s.debugBlock)
	return pipeline.Run(ctx)
}

// verifyChainID checks the configured chain id against the endpoint, or
// adopts the endpoint's id when none is configured. The id keys catalogue
// lookups, so it must be known either way.
func (s *Supervisor) verifyChainID(ctx context.Context, cfg model.Chain, client *chain.Client) (uint64, error) {
	id, err := client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}

	if cfg.ChainID != nil && cfg.ChainID.Cmp(id) != 0 {
		return 0, fmt.Errorf("configured for %s (%s) but connected to chain %s", cfg.Name, cfg.ChainID, id)
	}
	return id.Uint64(), nil
}
