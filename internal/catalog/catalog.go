package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// TokenMeta captures token metadata from the packaged database.
type TokenMeta struct {
	Symbol   string
	Decimals uint8
}

type key struct {
	chainID uint64
	address string // lowercase hex with 0x prefix
}

// Catalog is a read-only lookup of token metadata by (chain id, contract).
// The packaged sqlite database is read once at startup; there is no refresh.
type Catalog struct {
	tokens map[key]TokenMeta
}

const tokenQuery = `SELECT
	  lower(evm_tokens.address),
	  evm_tokens.chain,
	  evm_tokens.decimals,
	  common_asset_details.symbol
	FROM evm_tokens
	JOIN common_asset_details ON evm_tokens.identifier = common_asset_details.identifier`

// Open loads the token database at path into memory. A missing file yields an
// empty catalogue: every lookup misses, which the KnownAssets filter treats
// as spam.
func Open(path string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("token database not found, catalogue is empty", zap.String("path", path))
		return &Catalog{tokens: make(map[key]TokenMeta)}, nil
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open token db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(tokenQuery)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	tokens := make(map[key]TokenMeta)
	for rows.Next() {
		var (
			address  string
			chainID  uint64
			decimals sql.NullInt64
			symbol   sql.NullString
		)
		if err := rows.Scan(&address, &chainID, &decimals, &symbol); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		if !symbol.Valid || address == "" {
			continue
		}
		meta := TokenMeta{Symbol: symbol.String, Decimals: 18}
		if decimals.Valid && decimals.Int64 >= 0 && decimals.Int64 <= 255 {
			meta.Decimals = uint8(decimals.Int64)
		}
		tokens[key{chainID: chainID, address: strings.ToLower(address)}] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read token rows: %w", err)
	}

	logger.Info("token catalogue loaded", zap.String("path", path), zap.Int("tokens", len(tokens)))
	return &Catalog{tokens: tokens}, nil
}

// FromEntries builds a catalogue from explicit entries.
func FromEntries(entries map[uint64]map[common.Address]TokenMeta) *Catalog {
	tokens := make(map[key]TokenMeta)
	for chainID, byAddr := range entries {
		for addr, meta := range byAddr {
			tokens[key{chainID: chainID, address: strings.ToLower(addr.Hex())}] = meta
		}
	}
	return &Catalog{tokens: tokens}
}

// Lookup returns metadata for a token contract on a chain.
func (c *Catalog) Lookup(chainID uint64, contract common.Address) (TokenMeta, bool) {
	meta, ok := c.tokens[key{chainID: chainID, address: strings.ToLower(contract.Hex())}]
	return meta, ok
}

// Len returns the number of catalogued tokens.
func (c *Catalog) Len() int {
	return len(c.tokens)
}
