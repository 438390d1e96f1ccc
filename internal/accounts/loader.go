package accounts

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Ktl-XV/account-monitor/internal/model"
	"github.com/Ktl-XV/account-monitor/internal/registry"
)

type staticAccount struct {
	Address string `yaml:"address"`
	Label   string `yaml:"label"`
}

// LoadStatic reads the YAML bootstrap file and inserts each entry through
// the same idempotent path the admin endpoint uses. Malformed entries are
// logged and skipped; a missing or unreadable file is an error.
func LoadStatic(path string, reg *registry.Registry, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read accounts file: %w", err)
	}

	var entries []staticAccount
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parse accounts file: %w", err)
	}

	loaded := 0
	for i, entry := range entries {
		if !validAddress(entry.Address) {
			logger.Warn("skipping account with invalid address",
				zap.Int("entry", i),
				zap.String("address", entry.Address),
			)
			continue
		}
		if entry.Label == "" {
			logger.Warn("skipping account with empty label", zap.Int("entry", i))
			continue
		}
		reg.Insert(model.Account{
			Address: common.HexToAddress(entry.Address),
			Label:   entry.Label,
		})
		loaded++
	}

	logger.Info("static accounts loaded",
		zap.String("path", path),
		zap.Int("loaded", loaded),
		zap.Int("watched", reg.Len()),
	)
	return loaded, nil
}

func validAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && len(s) == 42 && common.IsHexAddress(s)
}
