package model

import (
	"fmt"
	"math/big"
	"time"
)

// ChainMode selects how a chain pipeline extracts transfer events.
type ChainMode string

const (
	// ModeBlocks fetches every transaction receipt per block. Detects native
	// transfers in addition to token logs.
	ModeBlocks ChainMode = "Blocks"

	// ModeEvents fetches transfer logs for a whole block range in one call.
	// Cheaper against rate-limited providers; cannot see native transfers.
	ModeEvents ChainMode = "Events"
)

// ParseChainMode parses a mode string from configuration.
func ParseChainMode(s string) (ChainMode, error) {
	switch ChainMode(s) {
	case ModeBlocks, ModeEvents:
		return ChainMode(s), nil
	default:
		return "", fmt.Errorf("invalid chain mode: %q", s)
	}
}

// SpamFilterLevel decides which matched transfer events become notifications.
type SpamFilterLevel string

const (
	// SpamFilterNone keeps every matched event.
	SpamFilterNone SpamFilterLevel = "None"

	// SpamFilterKnownAssets keeps events sent by a watched account, native
	// transfers, and tokens present in the catalogue.
	SpamFilterKnownAssets SpamFilterLevel = "KnownAssets"

	// SpamFilterSelfSubmittedTxs keeps only events sent by a watched account.
	SpamFilterSelfSubmittedTxs SpamFilterLevel = "SelfSubmittedTxs"
)

// ParseSpamFilterLevel parses a spam filter level from configuration.
func ParseSpamFilterLevel(s string) (SpamFilterLevel, error) {
	switch SpamFilterLevel(s) {
	case SpamFilterNone, SpamFilterKnownAssets, SpamFilterSelfSubmittedTxs:
		return SpamFilterLevel(s), nil
	default:
		return "", fmt.Errorf("invalid spam filter level: %q", s)
	}
}

// Chain is the immutable per-chain configuration.
type Chain struct {
	Key        string
	Name       string
	RPCURL     string
	Explorer   string
	ChainID    *big.Int // nil means adopt the id reported by the endpoint
	BlockTime  time.Duration
	Mode       ChainMode
	SpamFilter SpamFilterLevel
}

// ExplorerTxURL returns the explorer link for a transaction, or "" when the
// chain has no explorer configured.
func (c Chain) ExplorerTxURL(txHash string) string {
	if c.Explorer == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", c.Explorer, txHash)
}
