package monitor

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Ktl-XV/account-monitor/internal/catalog"
	"github.com/Ktl-XV/account-monitor/internal/model"
	"github.com/Ktl-XV/account-monitor/internal/registry"
)

// Matcher turns decoded transfer events into notifications: registry
// membership, per-chain spam policy, direction classification, and
// coalescing to one notification per (tx, matched account).
type Matcher struct {
	chain    model.Chain
	chainID  uint64
	registry *registry.Registry
	catalog  *catalog.Catalog
	logger   *zap.Logger
}

// NewMatcher builds the match stage for one chain.
func NewMatcher(chain model.Chain, chainID uint64, reg *registry.Registry, cat *catalog.Catalog, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		chain:    chain,
		chainID:  chainID,
		registry: reg,
		catalog:  cat,
		logger:   logger.With(zap.String("chain", chain.Key)),
	}
}

type matchKey struct {
	txHash  common.Hash
	account common.Address
}

type matchGroup struct {
	primary   model.TransferEvent
	direction model.Direction
	extra     int
}

// Process filters and coalesces a batch of events, returning notifications
// in event order (ascending block, then emission order). The registry is
// consulted at call time; accounts added later see only later blocks.
func (m *Matcher) Process(events []model.TransferEvent) []model.Notification {
	groups := make(map[matchKey]*matchGroup)
	var order []matchKey

	for _, ev := range events {
		matched := m.matchedAccounts(ev)
		if len(matched) == 0 {
			continue
		}

		if !m.keep(ev) {
			m.logger.Info("spam event dropped",
				zap.String("tx", ev.TxHash.Hex()),
				zap.String("kind", ev.Kind.String()),
			)
			continue
		}

		for _, account := range matched {
			key := matchKey{txHash: ev.TxHash, account: account}
			direction := m.direction(ev, account)

			group, ok := groups[key]
			if !ok {
				groups[key] = &matchGroup{primary: ev, direction: direction}
				order = append(order, key)
				continue
			}
			group.extra++
			if ev.Kind > group.primary.Kind {
				group.primary = ev
				group.direction = direction
			}
		}
	}

	notifications := make([]model.Notification, 0, len(order))
	for _, key := range order {
		group := groups[key]
		notifications = append(notifications, m.render(key.account, group))
	}
	return notifications
}

func (m *Matcher) matchedAccounts(ev model.TransferEvent) []common.Address {
	var matched []common.Address
	seen := make(map[common.Address]struct{})
	for _, candidate := range ev.Candidates() {
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		if m.registry.Contains(candidate) {
			matched = append(matched, candidate)
		}
	}
	return matched
}

// keep applies the per-chain spam policy.
func (m *Matcher) keep(ev model.TransferEvent) bool {
	isFrom := ev.HasParties && m.registry.Contains(ev.From)

	switch m.chain.SpamFilter {
	case model.SpamFilterNone:
		return true
	case model.SpamFilterSelfSubmittedTxs:
		return isFrom
	case model.SpamFilterKnownAssets:
		if isFrom || ev.Kind == model.KindNative {
			return true
		}
		if ev.Token != nil {
			_, known := m.catalog.Lookup(m.chainID, *ev.Token)
			return known
		}
		return false
	default:
		return true
	}
}

func (m *Matcher) direction(ev model.TransferEvent, account common.Address) model.Direction {
	if !ev.HasParties {
		return model.DirectionUnknown
	}
	isFrom := ev.From == account
	isTo := ev.To == account
	switch {
	case isFrom && isTo:
		return model.DirectionSelf
	case isFrom:
		return model.DirectionOut
	case isTo:
		return model.DirectionIn
	default:
		return model.DirectionUnknown
	}
}
