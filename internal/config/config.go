package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Ktl-XV/account-monitor/internal/model"
)

// Global holds process-wide configuration read from the environment.
type Global struct {
	NtfyURL            string
	NtfyTopic          string
	NtfyToken          string
	NtfyDisabled       bool
	StaticAccountsPath string
	TokenDBPath        string
	LogLevel           string
	DebugBlock         *uint64
}

// Load reads the global settings and one chain config per key listed in
// CHAINS. A missing required variable is a fatal error naming the key.
func Load() (Global, []model.Chain, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("TOKEN_DB_PATH", "rotki_db.db")
	v.SetDefault("LOG_LEVEL", "info")

	global := Global{
		NtfyURL:            v.GetString("NTFY_URL"),
		NtfyTopic:          v.GetString("NTFY_TOPIC"),
		NtfyToken:          v.GetString("NTFY_TOKEN"),
		NtfyDisabled:       v.GetBool("NTFY_DISABLE"),
		StaticAccountsPath: v.GetString("STATIC_ACCOUNTS_PATH"),
		TokenDBPath:        v.GetString("TOKEN_DB_PATH"),
		LogLevel:           v.GetString("LOG_LEVEL"),
	}

	if !global.NtfyDisabled {
		for _, k := range []string{"NTFY_URL", "NTFY_TOPIC", "NTFY_TOKEN"} {
			if v.GetString(k) == "" {
				return Global{}, nil, fmt.Errorf("missing %s", k)
			}
		}
	}

	if raw := v.GetString("DEBUG_BLOCK"); raw != "" {
		block := v.GetUint64("DEBUG_BLOCK")
		if block == 0 {
			return Global{}, nil, fmt.Errorf("invalid DEBUG_BLOCK: %q", raw)
		}
		global.DebugBlock = &block
	}

	rawChains := v.GetString("CHAINS")
	if rawChains == "" {
		return Global{}, nil, fmt.Errorf("missing CHAINS")
	}

	var chains []model.Chain
	for _, chainKey := range strings.Split(rawChains, ",") {
		chainKey = strings.TrimSpace(chainKey)
		if chainKey == "" {
			continue
		}
		chain, err := loadChain(v, chainKey)
		if err != nil {
			return Global{}, nil, err
		}
		chains = append(chains, chain)
	}
	if len(chains) == 0 {
		return Global{}, nil, fmt.Errorf("CHAINS lists no chains")
	}

	return global, chains, nil
}

func loadChain(v *viper.Viper, chainKey string) (model.Chain, error) {
	suffix := "_" + chainKey

	chain := model.Chain{
		Key:      chainKey,
		Explorer: v.GetString("CHAIN_EXPLORER" + suffix),
	}

	chain.Name = v.GetString("CHAIN_NAME" + suffix)
	if chain.Name == "" {
		return model.Chain{}, fmt.Errorf("missing CHAIN_NAME%s", suffix)
	}

	chain.RPCURL = v.GetString("CHAIN_RPC" + suffix)
	if chain.RPCURL == "" {
		return model.Chain{}, fmt.Errorf("missing CHAIN_RPC%s", suffix)
	}

	// The BLOCKTME misspelling is part of the deployed interface.
	blockTimeKey := "CHAIN_BLOCKTME" + suffix
	if v.GetString(blockTimeKey) == "" {
		return model.Chain{}, fmt.Errorf("missing %s", blockTimeKey)
	}
	blockTimeMs := v.GetUint64(blockTimeKey)
	if blockTimeMs == 0 {
		return model.Chain{}, fmt.Errorf("invalid %s: %q", blockTimeKey, v.GetString(blockTimeKey))
	}
	chain.BlockTime = time.Duration(blockTimeMs) * time.Millisecond

	mode := v.GetString("CHAIN_MODE" + suffix)
	if mode == "" {
		mode = string(model.ModeBlocks)
	}
	parsedMode, err := model.ParseChainMode(mode)
	if err != nil {
		return model.Chain{}, fmt.Errorf("CHAIN_MODE%s: %w", suffix, err)
	}
	chain.Mode = parsedMode

	level := v.GetString("CHAIN_SPAM_FILTER_LEVEL" + suffix)
	if level == "" {
		level = string(model.SpamFilterKnownAssets)
	}
	parsedLevel, err := model.ParseSpamFilterLevel(level)
	if err != nil {
		return model.Chain{}, fmt.Errorf("CHAIN_SPAM_FILTER_LEVEL%s: %w", suffix, err)
	}
	chain.SpamFilter = parsedLevel

	if raw := v.GetString("CHAIN_ID" + suffix); raw != "" {
		id, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return model.Chain{}, fmt.Errorf("invalid CHAIN_ID%s: %q", suffix, raw)
		}
		chain.ChainID = id
	}

	return chain, nil
}
