package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/Ktl-XV/account-monitor/internal/metrics"
)

const (
	methodBlockNumber     = "eth_blockNumber"
	methodChainID         = "eth_chainId"
	methodGetLogs         = "eth_getLogs"
	methodGetBlockByNum   = "eth_getBlockByNumber"
	methodBlockReceipts   = "eth_getBlockReceipts"
	methodAlchemyReceipts = "alchemy_getTransactionReceipts"

	minCallTimeout = 10 * time.Second
	maxCallTimeout = 60 * time.Second
)

// Client wraps a per-chain JSON-RPC connection. Every method retries
// transient failures with exponential backoff; permanent errors surface
// after the first attempt. Requests never carry watched addresses.
type Client struct {
	key     string
	rpcConn *rpc.Client
	eth     *ethclient.Client
	logger  *zap.Logger
	timeout time.Duration
	backoff Backoff

	mu             sync.Mutex
	receiptsMethod string
}

// Dial connects to the chain endpoint. blockTime sizes the per-call timeout.
func Dial(ctx context.Context, key, rpcURL string, blockTime time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rpcConn, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	timeout := blockTime
	if timeout < minCallTimeout {
		timeout = minCallTimeout
	}
	if timeout > maxCallTimeout {
		timeout = maxCallTimeout
	}

	return &Client{
		key:     key,
		rpcConn: rpcConn,
		eth:     ethclient.NewClient(rpcConn),
		logger:  logger.With(zap.String("chain", key)),
		timeout: timeout,
		backoff: DefaultBackoff(),
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	if c.rpcConn != nil {
		c.rpcConn.Close()
	}
}

// BlockNumber returns the current head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.call(ctx, methodBlockNumber, func(ctx context.Context) error {
		var err error
		head, err = c.eth.BlockNumber(ctx)
		return err
	})
	return head, err
}

// ChainID returns the chain id reported by the endpoint.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.call(ctx, methodChainID, func(ctx context.Context) error {
		var err error
		id, err = c.eth.ChainID(ctx)
		return err
	})
	return id, err
}

// TransferLogs fetches logs for the inclusive block range filtered only by
// topic0. No address filter is ever sent.
func (c *Client) TransferLogs(ctx context.Context, fromBlock, toBlock uint64, topic0 []common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}

	var logs []types.Log
	err := c.call(ctx, methodGetLogs, func(ctx context.Context) error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// BlockReceipts fetches every transaction receipt of a block. The first call
// probes eth_getBlockReceipts and falls back to the Alchemy batch method on a
// method-not-found error; the outcome is reused for the life of the client.
func (c *Client) BlockReceipts(ctx context.Context, number uint64) ([]Receipt, error) {
	method := c.currentReceiptsMethod()

	if method == "" {
		receipts, err := c.standardBlockReceipts(ctx, number)
		if err == nil {
			c.setReceiptsMethod(methodBlockReceipts)
			return receipts, nil
		}
		if !IsMethodNotFound(err) {
			return nil, err
		}
		c.logger.Info("eth_getBlockReceipts not supported, switching to alchemy_getTransactionReceipts")
		c.setReceiptsMethod(methodAlchemyReceipts)
		method = methodAlchemyReceipts
	}

	if method == methodAlchemyReceipts {
		return c.alchemyBlockReceipts(ctx, number)
	}
	return c.standardBlockReceipts(ctx, number)
}

func (c *Client) standardBlockReceipts(ctx context.Context, number uint64) ([]Receipt, error) {
	var receipts []Receipt
	err := c.call(ctx, methodBlockReceipts, func(ctx context.Context) error {
		return c.rpcConn.CallContext(ctx, &receipts, methodBlockReceipts, hexutil.EncodeUint64(number))
	})
	return receipts, err
}

func (c *Client) alchemyBlockReceipts(ctx context.Context, number uint64) ([]Receipt, error) {
	param := alchemyReceiptsParam{BlockNumber: hexutil.EncodeUint64(number)}
	var result alchemyReceiptsResult
	err := c.call(ctx, methodAlchemyReceipts, func(ctx context.Context) error {
		return c.rpcConn.CallContext(ctx, &result, methodAlchemyReceipts, param)
	})
	return result.Receipts, err
}

// TxValues returns the native value of every transaction in a block, keyed
// by hash. Receipts do not carry the value field, so Blocks mode joins
// against this map to surface native transfers.
func (c *Client) TxValues(ctx context.Context, number uint64) (map[common.Hash]*big.Int, error) {
	var block struct {
		Transactions []struct {
			Hash  common.Hash  `json:"hash"`
			Value *hexutil.Big `json:"value"`
		} `json:"transactions"`
	}

	err := c.call(ctx, methodGetBlockByNum, func(ctx context.Context) error {
		return c.rpcConn.CallContext(ctx, &block, methodGetBlockByNum, hexutil.EncodeUint64(number), true)
	})
	if err != nil {
		return nil, err
	}

	values := make(map[common.Hash]*big.Int, len(block.Transactions))
	for _, tx := range block.Transactions {
		if tx.Value != nil {
			values[tx.Hash] = tx.Value.ToInt()
		}
	}
	return values, nil
}

func (c *Client) currentReceiptsMethod() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receiptsMethod
}

func (c *Client) setReceiptsMethod(method string) {
	c.mu.Lock()
	c.receiptsMethod = method
	c.mu.Unlock()
}

func (c *Client) call(ctx context.Context, method string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		metrics.RPCRequests.WithLabelValues(c.key, method).Inc()

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.RPCErrors.WithLabelValues(c.key).Inc()

		if !Transient(err) || attempt >= c.backoff.MaxAttempts {
			return err
		}

		delay := c.backoff.Delay(attempt)
		c.logger.Warn("rpc call failed, retrying",
			zap.String("method", method),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
