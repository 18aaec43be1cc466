package x402

import (
	"fmt"
	"math/big"
	"strings"
)

// Network is a registry key for a supported chain, e.g. "base-mainnet".
type Network string

const (
	NetworkBaseMainnet Network = "base-mainnet"
	NetworkBaseSepolia Network = "base-sepolia"
)

// StablecoinDecimals is fixed for every supported network: the registry
// carries exactly one stablecoin per chain and it always has 6 decimals.
const StablecoinDecimals = 6

// StablecoinName and StablecoinVersion feed the EIP-712 domain for every
// registered network's stablecoin.
const (
	StablecoinName    = "USD Coin"
	StablecoinVersion = "2"
)

// NetworkEntry is one row of the chain registry (§6, "Chain registry").
type NetworkEntry struct {
	Key               Network
	ChainID           int64
	CAIP2             string
	StablecoinAddress string
}

// networkRegistry is the authoritative, closed set of supported chains.
var networkRegistry = map[Network]NetworkEntry{
	NetworkBaseMainnet: {
		Key:               NetworkBaseMainnet,
		ChainID:           8453,
		CAIP2:             "eip155:8453",
		StablecoinAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	},
	NetworkBaseSepolia: {
		Key:               NetworkBaseSepolia,
		ChainID:           84532,
		CAIP2:             "eip155:84532",
		StablecoinAddress: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	},
}

// caip2Index resolves a CAIP-2 string (e.g. "eip155:8453") back to its
// registry key.
var caip2Index = func() map[string]Network {
	idx := make(map[string]Network, len(networkRegistry))
	for key, entry := range networkRegistry {
		idx[entry.CAIP2] = key
	}
	return idx
}()

// LookupCAIP2 resolves a CAIP-2 network identifier to its registry entry.
// This is the network-resolution step of the facilitator pipeline (§4.2 step 2).
func LookupCAIP2(caip2 string) (NetworkEntry, error) {
	key, ok := caip2Index[caip2]
	if !ok {
		return NetworkEntry{}, fmt.Errorf("Unsupported network: %s", caip2)
	}
	return networkRegistry[key], nil
}

// LookupNetwork resolves a registry key (e.g. "base-mainnet") to its entry.
func LookupNetwork(key Network) (NetworkEntry, error) {
	entry, ok := networkRegistry[key]
	if !ok {
		return NetworkEntry{}, fmt.Errorf("Unsupported network: %s", key)
	}
	return entry, nil
}

// ChainIDBig returns the numeric chain id as a *big.Int, suitable for the
// EIP-712 domain.
func (e NetworkEntry) ChainIDBig() *big.Int {
	return big.NewInt(e.ChainID)
}

// SupportedNetworks returns every registered network entry, sorted by
// chain id, for discovery-style endpoints.
func SupportedNetworks() []NetworkEntry {
	entries := make([]NetworkEntry, 0, len(networkRegistry))
	for _, entry := range networkRegistry {
		entries = append(entries, entry)
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].ChainID < entries[j-1].ChainID; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries
}

// EqualAddress compares two hex Ethereum addresses case-insensitively, the
// comparison rule the spec requires when matching a recovered signer against
// authorization.from or a payload's `to` against payTo.
func EqualAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "0x"), strings.TrimPrefix(b, "0x"))
}
