package eip712

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testDomain() Domain {
	return Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           big.NewInt(8453),
		VerifyingContract: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	}
}

func testAuthorization(from, to string) Authorization {
	return Authorization{
		From:        from,
		To:          to,
		Value:       "100000",
		ValidAfter:  "0",
		ValidBefore: "9999999999",
		Nonce:       "0xabababababababababababababababababababababababababababababababab",
	}
}

func TestHashAuthorizationDeterministic(t *testing.T) {
	auth := testAuthorization("0x0000000000000000000000000000000000000001", "0x0000000000000000000000000000000000000002")
	h1, err := HashAuthorization(testDomain(), auth)
	require.NoError(t, err)
	h2, err := HashAuthorization(testDomain(), auth)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 32)
}

func TestSignatureRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey).Hex()
	to := "0x0000000000000000000000000000000000000002"

	auth := testAuthorization(from, to)
	digest, err := HashAuthorization(testDomain(), auth)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	sig[64] += 27

	recovered, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	require.Equal(t, from, recovered)
}

func TestSignatureRoundTripWrongSignerFails(t *testing.T) {
	signerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	claimedFrom := crypto.PubkeyToAddress(otherKey.PublicKey).Hex()
	auth := testAuthorization(claimedFrom, "0x0000000000000000000000000000000000000002")
	digest, err := HashAuthorization(testDomain(), auth)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest, signerKey)
	require.NoError(t, err)
	sig[64] += 27

	recovered, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	require.NotEqual(t, claimedFrom, recovered)
}

func TestRecoverSignerRejectsBadLength(t *testing.T) {
	_, err := RecoverSigner([]byte("digest"), []byte{1, 2, 3})
	require.Error(t, err)
}
