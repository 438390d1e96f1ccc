package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt is the subset of a transaction receipt the extractor needs. Both
// eth_getBlockReceipts and the Alchemy batch variant include from/to, which
// go-ethereum's own receipt type drops.
type Receipt struct {
	TxHash  common.Hash     `json:"transactionHash"`
	From    common.Address  `json:"from"`
	To      *common.Address `json:"to"`
	GasUsed hexutil.Uint64  `json:"gasUsed"`
	Status  hexutil.Uint64  `json:"status"`
	Logs    []*types.Log    `json:"logs"`
}

type alchemyReceiptsParam struct {
	BlockNumber string `json:"blockNumber"`
}

type alchemyReceiptsResult struct {
	Receipts []Receipt `json:"receipts"`
}
