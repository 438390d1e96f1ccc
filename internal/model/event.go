package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind classifies a transfer event. Higher values take precedence when
// several events of the same transaction are coalesced into one notification.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindApproval
	KindERC1155
	KindERC721
	KindERC20
	KindNative
)

// String returns the kind name used in logs and notification bodies.
func (k EventKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindERC20:
		return "erc20"
	case KindERC721:
		return "erc721"
	case KindERC1155:
		return "erc1155"
	case KindApproval:
		return "approval"
	default:
		return "unknown"
	}
}

// EventSource records where an event was extracted from.
type EventSource int

const (
	SourceLog EventSource = iota
	SourceReceipt
)

// TransferEvent is the normalized record emitted by the extractors and
// consumed by the match stage. From/To are only meaningful when HasParties
// is set; unknown operations carry the involved address candidates instead.
type TransferEvent struct {
	ChainKey    string
	BlockNumber uint64
	TxHash      common.Hash
	Kind        EventKind
	Source      EventSource

	From       common.Address
	To         common.Address
	HasParties bool

	// Value is the token amount for fungible transfers, the amount for an
	// ERC-1155 element, or the native value in wei.
	Value *big.Int

	// TokenID is set for ERC-721 and ERC-1155 events.
	TokenID *big.Int

	// Token is the emitting contract, nil for native and unknown events.
	Token *common.Address

	// Involved lists address candidates for unknown operations, extracted
	// from address-shaped log topics or the sender of a contract-creation
	// receipt.
	Involved []common.Address
}

// Candidates returns the addresses the match stage must test against the
// registry.
func (e TransferEvent) Candidates() []common.Address {
	if e.HasParties {
		return []common.Address{e.From, e.To}
	}
	return e.Involved
}

// Direction classifies a notification from the matched account's perspective.
type Direction string

const (
	DirectionIn      Direction = "In"
	DirectionOut     Direction = "Out"
	DirectionSelf    Direction = "Self"
	DirectionUnknown Direction = "Unknown"
)

// Notification is a fully rendered message ready for the ntfy transport.
type Notification struct {
	ChainName string
	TxHash    common.Hash
	Direction Direction
	Body      string
	Link      string
}
