package extract

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const transferABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "spender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "Approval",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "operator", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "id", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "TransferSingle",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "operator", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256[]", "name": "ids", "type": "uint256[]"},
      {"indexed": false, "internalType": "uint256[]", "name": "values", "type": "uint256[]"}
    ],
    "name": "TransferBatch",
    "type": "event"
  }
]`

var (
	transferABI     abi.ABI
	transferABIOnce sync.Once
	transferABIErr  error
)

// TransferABI returns the parsed transfer event ABI.
func TransferABI() (abi.ABI, error) {
	transferABIOnce.Do(func() {
		transferABI, transferABIErr = abi.JSON(strings.NewReader(transferABIJSON))
	})
	return transferABI, transferABIErr
}

// TransferTopics returns the topic0 OR-filter for Events mode: ERC-20/721
// Transfer plus both ERC-1155 transfer events. Approval logs are only seen
// in Blocks mode, where receipts carry every log anyway.
func TransferTopics() []common.Hash {
	transferAbi, err := TransferABI()
	if err != nil {
		// The ABI literal is fixed at compile time.
		panic(err)
	}
	return []common.Hash{
		transferAbi.Events["Transfer"].ID,
		transferAbi.Events["TransferSingle"].ID,
		transferAbi.Events["TransferBatch"].ID,
	}
}
