package facilitator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/x402rail/facilitator/eip712"
	"github.com/x402rail/facilitator/evmchain"
)

// TransferExecutor is the pluggable transfer-execution seam named in §4.2
// step 6 and §9's "Pluggable executor" note: a single method taking the
// authorization, its signature, and the target chain, returning the
// realized transaction hash.
type TransferExecutor interface {
	Execute(ctx context.Context, tokenAddress string, auth eip712.Authorization, signature []byte, chainID int64) (txHash string, err error)
}

// MockExecutor returns a deterministic fake transaction hash derived from
// the authorization's nonce, without touching a chain. It is stateless,
// matching §5's note that the mock executor needs no serialization.
type MockExecutor struct{}

// Execute never fails; it stands in for chain settlement in tests and
// local development.
func (MockExecutor) Execute(_ context.Context, _ string, auth eip712.Authorization, _ []byte, _ int64) (string, error) {
	sum := sha256.Sum256([]byte("mock-transfer:" + auth.Nonce))
	return "0x" + hex.EncodeToString(sum[:]), nil
}

// OnChainAdapter wraps an evmchain.OnChainExecutor to satisfy
// TransferExecutor, parsing the authorization's string fields and nonce
// hex into the shapes the chain client expects.
type OnChainAdapter struct {
	executor *evmchain.OnChainExecutor
}

// NewOnChainAdapter wraps executor for use as a facilitator TransferExecutor.
func NewOnChainAdapter(executor *evmchain.OnChainExecutor) *OnChainAdapter {
	return &OnChainAdapter{executor: executor}
}

// Execute broadcasts the transfer on-chain via the wrapped executor.
func (a *OnChainAdapter) Execute(ctx context.Context, tokenAddress string, auth eip712.Authorization, signature []byte, _ int64) (string, error) {
	nonceBytes, err := decodeNonce(auth.Nonce)
	if err != nil {
		return "", err
	}
	return a.executor.Execute(ctx, tokenAddress, auth.From, auth.To, auth.Value, auth.ValidAfter, auth.ValidBefore, nonceBytes, signature)
}

func decodeNonce(nonceHex string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimPrefix(nonceHex, "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid nonce: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("nonce must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
