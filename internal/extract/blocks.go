package extract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Ktl-XV/account-monitor/internal/chain"
	"github.com/Ktl-XV/account-monitor/internal/model"
)

const plainSendGas = 21000

// BlockSource fetches per-block receipts and transaction values.
type BlockSource interface {
	BlockReceipts(ctx context.Context, number uint64) ([]chain.Receipt, error)
	TxValues(ctx context.Context, number uint64) (map[common.Hash]*big.Int, error)
}

// BlocksExtractor walks every receipt of every block in the range. On top of
// the decoded logs it synthesizes a native transfer event for each
// value-moving transaction; native moves from contract-internal calls are
// not visible without tracing.
type BlocksExtractor struct {
	source   BlockSource
	decoder  *Decoder
	chainKey string
}

// NewBlocksExtractor builds a Blocks-mode extractor.
func NewBlocksExtractor(source BlockSource, decoder *Decoder, chainKey string) *BlocksExtractor {
	return &BlocksExtractor{source: source, decoder: decoder, chainKey: chainKey}
}

// Extract emits events block by block in ascending order. Any RPC failure
// aborts the whole range so the cursor is not advanced past it.
func (b *BlocksExtractor) Extract(ctx context.Context, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	var events []model.TransferEvent
	for number := fromBlock; number <= toBlock; number++ {
		blockEvents, err := b.extractBlock(ctx, number)
		if err != nil {
			return nil, err
		}
		events = append(events, blockEvents...)
	}
	return events, nil
}

func (b *BlocksExtractor) extractBlock(ctx context.Context, number uint64) ([]model.TransferEvent, error) {
	receipts, err := b.source.BlockReceipts(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("block %d receipts: %w", number, err)
	}
	values, err := b.source.TxValues(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("block %d transactions: %w", number, err)
	}

	var events []model.TransferEvent
	for _, receipt := range receipts {
		if receipt.Status == 0 {
			// Reverted: no logs, no value movement.
			continue
		}

		var decoded []model.TransferEvent
		for _, lg := range receipt.Logs {
			decoded = append(decoded, b.decoder.Decode(*lg)...)
		}

		if native := b.nativeEvent(receipt, values, number); native != nil {
			decoded = append(decoded, *native)
		}

		if len(decoded) == 0 {
			if fallback := b.fallbackEvent(receipt, number); fallback != nil {
				decoded = append(decoded, *fallback)
			}
		}

		events = append(events, decoded...)
	}
	return events, nil
}

func (b *BlocksExtractor) nativeEvent(receipt chain.Receipt, values map[common.Hash]*big.Int, number uint64) *model.TransferEvent {
	value := values[receipt.TxHash]
	if value == nil || value.Sign() <= 0 || receipt.To == nil {
		return nil
	}
	return &model.TransferEvent{
		ChainKey:    b.chainKey,
		BlockNumber: number,
		TxHash:      receipt.TxHash,
		Kind:        model.KindNative,
		Source:      model.SourceReceipt,
		From:        receipt.From,
		To:          *receipt.To,
		HasParties:  true,
		Value:       value,
	}
}

// fallbackEvent covers transactions with no decodable logs and no value. A
// bare 21000-gas transaction is a zero-value send; anything else surfaces as
// an unknown operation so watched senders still get notified.
func (b *BlocksExtractor) fallbackEvent(receipt chain.Receipt, number uint64) *model.TransferEvent {
	ev := model.TransferEvent{
		ChainKey:    b.chainKey,
		BlockNumber: number,
		TxHash:      receipt.TxHash,
		Source:      model.SourceReceipt,
	}

	if receipt.To == nil {
		// Contract creation.
		ev.Kind = model.KindUnknown
		ev.Involved = []common.Address{receipt.From}
		return &ev
	}

	ev.From = receipt.From
	ev.To = *receipt.To
	ev.HasParties = true
	if uint64(receipt.GasUsed) == plainSendGas {
		ev.Kind = model.KindNative
		ev.Value = new(big.Int)
	} else {
		ev.Kind = model.KindUnknown
	}
	return &ev
}
