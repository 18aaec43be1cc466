package x402

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupCAIP2ResolvesRegisteredNetworks(t *testing.T) {
	entry, err := LookupCAIP2("eip155:8453")
	require.NoError(t, err)
	require.Equal(t, NetworkBaseMainnet, entry.Key)
	require.Equal(t, int64(8453), entry.ChainID)
}

func TestLookupCAIP2RejectsUnknownNetwork(t *testing.T) {
	_, err := LookupCAIP2("eip155:1")
	require.Error(t, err)
}

func TestLookupNetworkRoundTripsWithCAIP2(t *testing.T) {
	for _, key := range []Network{NetworkBaseMainnet, NetworkBaseSepolia} {
		entry, err := LookupNetwork(key)
		require.NoError(t, err)

		byCAIP2, err := LookupCAIP2(entry.CAIP2)
		require.NoError(t, err)
		require.Equal(t, entry, byCAIP2)
	}
}

func TestSupportedNetworksSortedByChainID(t *testing.T) {
	entries := SupportedNetworks()
	require.Len(t, entries, len(networkRegistry))
	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i-1].ChainID < entries[i].ChainID)
	}
}

func TestEqualAddressIsCaseAndPrefixInsensitive(t *testing.T) {
	require.True(t, EqualAddress("0xAbCd1234", "0xabcd1234"))
	require.True(t, EqualAddress("AbCd1234", "0xabcd1234"))
	require.False(t, EqualAddress("0xAbCd1234", "0xdeadbeef"))
}
