// Package evmchain adapts coinbase-x402's go/signers/evm/client.go into two
// roles this facilitator needs: a client-side Wallet that signs EIP-712
// authorizations (the agent's held key), and an on-chain TransferExecutor
// that broadcasts transferWithAuthorization calls (the facilitator's
// signing key). Both wrap github.com/ethereum/go-ethereum.
package evmchain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/x402rail/facilitator/eip712"
)

// Wallet signs EIP-712 TransferWithAuthorization digests with a held ECDSA
// private key. This is the agent client's signing collaborator (§4.3).
type Wallet struct {
	privateKeyHex string
	address       string
}

// NewWallet parses a hex-encoded secp256k1 private key (with or without a
// "0x" prefix) and derives its address, mirroring
// NewClientSignerFromPrivateKey in the teacher's signers/evm/client.go.
func NewWallet(privateKeyHex string) (*Wallet, error) {
	trimmed := strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Wallet{
		privateKeyHex: trimmed,
		address:       crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// Address returns the wallet's Ethereum address.
func (w *Wallet) Address() string {
	return w.address
}

// SignAuthorization signs the EIP-712 digest of a TransferWithAuthorization
// message and returns the 65-byte (r,s,v) signature with v adjusted to
// Ethereum's 27/28 convention, matching what the facilitator's
// eip712.RecoverSigner expects.
func (w *Wallet) SignAuthorization(domain eip712.Domain, auth eip712.Authorization) ([]byte, error) {
	key, err := crypto.HexToECDSA(w.privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	digest, err := eip712.HashAuthorization(domain, auth)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
