package extract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/Ktl-XV/account-monitor/internal/metrics"
	"github.com/Ktl-XV/account-monitor/internal/model"
)

// Decoder converts raw chain logs into TransferEvents. Malformed logs are
// skipped and counted, never fatal for the extraction.
type Decoder struct {
	chainKey string
	logger   *zap.Logger

	transferID common.Hash
	approvalID common.Hash
	singleID   common.Hash
	batchID    common.Hash

	singleArgs abi.Arguments
	batchArgs  abi.Arguments
}

// NewDecoder builds a decoder for one chain.
func NewDecoder(chainKey string, logger *zap.Logger) (*Decoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	transferAbi, err := TransferABI()
	if err != nil {
		return nil, fmt.Errorf("parse transfer abi: %w", err)
	}

	return &Decoder{
		chainKey:   chainKey,
		logger:     logger.With(zap.String("chain", chainKey)),
		transferID: transferAbi.Events["Transfer"].ID,
		approvalID: transferAbi.Events["Approval"].ID,
		singleID:   transferAbi.Events["TransferSingle"].ID,
		batchID:    transferAbi.Events["TransferBatch"].ID,
		singleArgs: transferAbi.Events["TransferSingle"].Inputs.NonIndexed(),
		batchArgs:  transferAbi.Events["TransferBatch"].Inputs.NonIndexed(),
	}, nil
}

// Decode converts one log into zero or more transfer events. An ERC-1155
// batch yields one event per element; an unrecognized log yields a single
// unknown event listing its address-shaped topics so that watched accounts
// still surface.
func (d *Decoder) Decode(lg types.Log) []model.TransferEvent {
	if lg.Removed || len(lg.Topics) == 0 {
		return nil
	}

	base := model.TransferEvent{
		ChainKey:    d.chainKey,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		Source:      model.SourceLog,
	}

	switch lg.Topics[0] {
	case d.transferID:
		return d.decodeTransfer(lg, base)
	case d.approvalID:
		return d.decodeApproval(lg, base)
	case d.singleID:
		return d.decodeSingle(lg, base)
	case d.batchID:
		return d.decodeBatch(lg, base)
	default:
		return d.decodeUnknown(lg, base)
	}
}

// decodeTransfer handles the shared ERC-20/ERC-721 Transfer signature. Three
// topics mean the value rides in data (ERC-20); four mean the third argument
// is indexed and is a token id (ERC-721).
func (d *Decoder) decodeTransfer(lg types.Log, base model.TransferEvent) []model.TransferEvent {
	switch len(lg.Topics) {
	case 3:
		if len(lg.Data) != 32 {
			return d.warn(lg, "erc20 transfer data is not 32 bytes")
		}
		base.Kind = model.KindERC20
		base.Value = new(big.Int).SetBytes(lg.Data)
	case 4:
		base.Kind = model.KindERC721
		base.TokenID = new(big.Int).SetBytes(lg.Topics[3].Bytes())
		base.Value = big.NewInt(1)
	default:
		return d.warn(lg, "transfer log has unexpected topic count")
	}

	base.From = topicAddress(lg.Topics[1])
	base.To = topicAddress(lg.Topics[2])
	base.HasParties = true
	contract := lg.Address
	base.Token = &contract
	return []model.TransferEvent{base}
}

func (d *Decoder) decodeApproval(lg types.Log, base model.TransferEvent) []model.TransferEvent {
	switch len(lg.Topics) {
	case 3:
		if len(lg.Data) != 32 {
			return d.warn(lg, "approval data is not 32 bytes")
		}
		base.Value = new(big.Int).SetBytes(lg.Data)
	case 4:
		base.TokenID = new(big.Int).SetBytes(lg.Topics[3].Bytes())
	default:
		return d.warn(lg, "approval log has unexpected topic count")
	}

	base.Kind = model.KindApproval
	base.From = topicAddress(lg.Topics[1])
	base.To = topicAddress(lg.Topics[2])
	base.HasParties = true
	contract := lg.Address
	base.Token = &contract
	return []model.TransferEvent{base}
}

func (d *Decoder) decodeSingle(lg types.Log, base model.TransferEvent) []model.TransferEvent {
	if len(lg.Topics) != 4 {
		return d.warn(lg, "transferSingle log has unexpected topic count")
	}

	values, err := d.singleArgs.Unpack(lg.Data)
	if err != nil || len(values) != 2 {
		return d.warn(lg, "transferSingle data unpack failed")
	}
	id, okID := values[0].(*big.Int)
	amount, okAmount := values[1].(*big.Int)
	if !okID || !okAmount {
		return d.warn(lg, "transferSingle data type mismatch")
	}

	base.Kind = model.KindERC1155
	base.From = topicAddress(lg.Topics[2])
	base.To = topicAddress(lg.Topics[3])
	base.HasParties = true
	base.TokenID = id
	base.Value = amount
	contract := lg.Address
	base.Token = &contract
	return []model.TransferEvent{base}
}

func (d *Decoder) decodeBatch(lg types.Log, base model.TransferEvent) []model.TransferEvent {
	if len(lg.Topics) != 4 {
		return d.warn(lg, "transferBatch log has unexpected topic count")
	}

	values, err := d.batchArgs.Unpack(lg.Data)
	if err != nil || len(values) != 2 {
		return d.warn(lg, "transferBatch data unpack failed")
	}
	ids, okIDs := values[0].([]*big.Int)
	amounts, okAmounts := values[1].([]*big.Int)
	if !okIDs || !okAmounts || len(ids) != len(amounts) {
		return d.warn(lg, "transferBatch ids/values mismatch")
	}

	from := topicAddress(lg.Topics[2])
	to := topicAddress(lg.Topics[3])
	contract := lg.Address

	events := make([]model.TransferEvent, 0, len(ids))
	for i := range ids {
		ev := base
		ev.Kind = model.KindERC1155
		ev.From = from
		ev.To = to
		ev.HasParties = true
		ev.TokenID = ids[i]
		ev.Value = amounts[i]
		ev.Token = &contract
		events = append(events, ev)
	}
	return events
}

// decodeUnknown surfaces logs of unrecognized events. Any topic that looks
// like a padded address is a candidate for registry matching; the match
// stage drops the event unless one of them is watched.
func (d *Decoder) decodeUnknown(lg types.Log, base model.TransferEvent) []model.TransferEvent {
	var involved []common.Address
	seen := make(map[common.Address]struct{})
	for _, topic := range lg.Topics[1:] {
		if !isAddressShaped(topic) {
			continue
		}
		addr := topicAddress(topic)
		if addr == model.ZeroAddress {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		involved = append(involved, addr)
	}
	if len(involved) == 0 {
		return nil
	}

	base.Kind = model.KindUnknown
	base.Involved = involved
	return []model.TransferEvent{base}
}

func (d *Decoder) warn(lg types.Log, reason string) []model.TransferEvent {
	metrics.DecodeWarnings.WithLabelValues(d.chainKey).Inc()
	d.logger.Debug("skipping malformed log",
		zap.String("reason", reason),
		zap.String("tx", lg.TxHash.Hex()),
		zap.Uint("log_index", lg.Index),
	)
	return nil
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}

func isAddressShaped(topic common.Hash) bool {
	for _, b := range topic[:12] {
		if b != 0 {
			return false
		}
	}
	return true
}
