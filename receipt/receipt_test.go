package receipt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleReceipt(contentID string, now time.Time) Receipt {
	return New(contentID, "0xPayer", "0xPayee", "500000", "USDC", 8453, "0xdeadbeef", "https://facilitator.example", now, time.Minute)
}

func TestHS256RoundTrip(t *testing.T) {
	secret := []byte("test-secret-at-least-32-bytes-long")
	now := time.Unix(1_700_000_000, 0)
	r := sampleReceipt("content-1", now)

	token, err := SignHS256(r, secret)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	result := VerifyHS256(token, secret, "content-1", now.Add(30*time.Second))
	require.True(t, result.Valid)
	require.Equal(t, r.ID, result.Receipt.ID)
	require.Equal(t, r.Payer, result.Receipt.Payer)
}

func TestHS256WrongContentID(t *testing.T) {
	secret := []byte("test-secret-at-least-32-bytes-long")
	now := time.Unix(1_700_000_000, 0)
	r := sampleReceipt("content-1", now)

	token, err := SignHS256(r, secret)
	require.NoError(t, err)

	result := VerifyHS256(token, secret, "content-2", now.Add(time.Second))
	require.False(t, result.Valid)
	require.Contains(t, result.Reason, "content id mismatch")
}

func TestHS256Expired(t *testing.T) {
	secret := []byte("test-secret-at-least-32-bytes-long")
	now := time.Unix(1_700_000_000, 0)
	r := sampleReceipt("content-1", now)

	token, err := SignHS256(r, secret)
	require.NoError(t, err)

	result := VerifyHS256(token, secret, "content-1", now.Add(2*time.Minute))
	require.False(t, result.Valid)
	require.Contains(t, result.Reason, "expired")
}

func TestHS256WrongSecretFails(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := sampleReceipt("content-1", now)

	token, err := SignHS256(r, []byte("secret-one-long-enough-for-hmacc"))
	require.NoError(t, err)

	result := VerifyHS256(token, []byte("secret-two-long-enough-for-hmacc"), "content-1", now.Add(time.Second))
	require.False(t, result.Valid)
}

func TestES256RoundTrip(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	r := sampleReceipt("content-1", now)

	token, err := SignES256(r, key)
	require.NoError(t, err)

	result := VerifyES256(token, &key.PublicKey, "content-1", now.Add(time.Second))
	require.True(t, result.Valid)
	require.Equal(t, r.Amount, result.Receipt.Amount)
}

func TestDecodeUnverified(t *testing.T) {
	secret := []byte("test-secret-at-least-32-bytes-long")
	now := time.Unix(1_700_000_000, 0)
	r := sampleReceipt("content-1", now)

	token, err := SignHS256(r, secret)
	require.NoError(t, err)

	decoded, err := DecodeUnverified(token)
	require.NoError(t, err)
	require.Equal(t, r.ContentID, decoded.ContentID)
}
