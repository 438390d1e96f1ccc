package extract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Ktl-XV/account-monitor/internal/model"
)

// LogSource fetches transfer logs for a block range.
type LogSource interface {
	TransferLogs(ctx context.Context, fromBlock, toBlock uint64, topic0 []common.Hash) ([]types.Log, error)
}

// EventsExtractor covers a whole block range with a single eth_getLogs call
// filtered by the well-known transfer topics. Native transfers emit no logs
// and are invisible in this mode.
type EventsExtractor struct {
	source  LogSource
	decoder *Decoder
	topics  []common.Hash
}

// NewEventsExtractor builds an Events-mode extractor.
func NewEventsExtractor(source LogSource, decoder *Decoder) *EventsExtractor {
	return &EventsExtractor{
		source:  source,
		decoder: decoder,
		topics:  TransferTopics(),
	}
}

// Extract decodes every transfer log in the inclusive range. Event order
// follows the node's log order: ascending block, then log index.
func (e *EventsExtractor) Extract(ctx context.Context, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	logs, err := e.source.TransferLogs(ctx, fromBlock, toBlock, e.topics)
	if err != nil {
		return nil, fmt.Errorf("get logs [%d, %d]: %w", fromBlock, toBlock, err)
	}

	var events []model.TransferEvent
	for _, lg := range logs {
		events = append(events, e.decoder.Decode(lg)...)
	}
	return events, nil
}
