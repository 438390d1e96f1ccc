package monitor

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Ktl-XV/account-monitor/internal/catalog"
	"github.com/Ktl-XV/account-monitor/internal/model"
)

const (
	unknownSymbol   = "UNK"
	unknownDecimals = 18
	nativeDecimals  = 18
)

func (m *Matcher) render(account common.Address, group *matchGroup) model.Notification {
	ev := group.primary
	body := m.renderBody(ev, account)
	if group.extra > 0 {
		body = fmt.Sprintf("%s +%d more", body, group.extra)
	}

	return model.Notification{
		ChainName: m.chain.Name,
		TxHash:    ev.TxHash,
		Direction: group.direction,
		Body:      body,
		Link:      m.chain.ExplorerTxURL(ev.TxHash.Hex()),
	}
}

func (m *Matcher) renderBody(ev model.TransferEvent, account common.Address) string {
	snapshot := m.registry.Snapshot()
	from := addressName(snapshot, ev.From)
	to := addressName(snapshot, ev.To)

	switch ev.Kind {
	case model.KindNative:
		if ev.Value != nil && ev.Value.Sign() > 0 {
			return fmt.Sprintf("Sending %s native from %s to %s on %s",
				scaleAmount(ev.Value, nativeDecimals), from, to, m.chain.Name)
		}
		return fmt.Sprintf("Sending native from %s to %s on %s", from, to, m.chain.Name)

	case model.KindERC20:
		meta := m.tokenMeta(ev.Token)
		return fmt.Sprintf("Transferring %s %s from %s to %s on %s",
			scaleAmount(ev.Value, meta.Decimals), meta.Symbol, from, to, m.chain.Name)

	case model.KindERC721:
		meta := m.tokenMeta(ev.Token)
		return fmt.Sprintf("Transferring %s #%s from %s to %s on %s",
			meta.Symbol, ev.TokenID, from, to, m.chain.Name)

	case model.KindERC1155:
		meta := m.tokenMeta(ev.Token)
		return fmt.Sprintf("Transferring %s of %s #%s from %s to %s on %s",
			ev.Value, meta.Symbol, ev.TokenID, from, to, m.chain.Name)

	case model.KindApproval:
		meta := m.tokenMeta(ev.Token)
		if ev.TokenID != nil {
			return fmt.Sprintf("Approving %s for %s #%s on %s", to, meta.Symbol, ev.TokenID, m.chain.Name)
		}
		return fmt.Sprintf("Approving %s to spend %s %s on %s",
			to, scaleAmount(ev.Value, meta.Decimals), meta.Symbol, m.chain.Name)

	default:
		return fmt.Sprintf("Unknown operation involving %s on %s",
			addressName(snapshot, account), m.chain.Name)
	}
}

func (m *Matcher) tokenMeta(contract *common.Address) catalog.TokenMeta {
	if contract != nil {
		if meta, ok := m.catalog.Lookup(m.chainID, *contract); ok {
			return meta
		}
	}
	return catalog.TokenMeta{Symbol: unknownSymbol, Decimals: unknownDecimals}
}

// addressName renders an address as its registry label when watched, NULL
// for the zero address, and full lowercase hex otherwise.
func addressName(snapshot map[common.Address]string, addr common.Address) string {
	if label, ok := snapshot[addr]; ok {
		return label
	}
	if addr == model.ZeroAddress {
		return "NULL"
	}
	return strings.ToLower(addr.Hex())
}

// scaleAmount renders amount divided by 10^decimals, trimming trailing
// zeros; the integer part is always kept.
func scaleAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	s := amount.String()
	if decimals == 0 {
		return s
	}

	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}

	intPart := s[:len(s)-d]
	frac := strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return intPart
	}
	return intPart + "." + frac
}
