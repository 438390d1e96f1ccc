package model

import "github.com/ethereum/go-ethereum/common"

// Account is a watched address with a human-readable label.
type Account struct {
	Address common.Address `json:"address" yaml:"address"`
	Label   string         `json:"label" yaml:"label"`
}

// ZeroAddress is the canonical null address.
var ZeroAddress = common.Address{}
