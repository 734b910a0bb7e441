// Package protocol enumerates the supported staking protocols.
package protocol

import (
	"fmt"
	"strings"
)

type Protocol string

const (
	Solana Protocol = "solana"
	Cosmos Protocol = "cosmos"
)

// Parse converts a user-supplied protocol name, case-insensitively.
func Parse(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case Solana:
		return Solana, nil
	case Cosmos:
		return Cosmos, nil
	}
	return "", fmt.Errorf("protocol: unsupported protocol %q", s)
}

func (p Protocol) String() string { return string(p) }

// CoinGeckoID returns the coin id used in CoinGecko API paths.
func (p Protocol) CoinGeckoID() string {
	switch p {
	case Solana:
		return "solana"
	case Cosmos:
		return "cosmos"
	}
	return string(p)
}
