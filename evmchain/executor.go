package evmchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// transferWithAuthorizationABI is the EIP-3009 transferWithAuthorization
// signature accepting a (v,r,s) EOA signature, taken from the teacher's
// mechanisms/evm/constants.go TransferWithAuthorizationVRSABI.
const transferWithAuthorizationABI = `[
	{
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "validAfter", "type": "uint256"},
			{"name": "validBefore", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		],
		"name": "transferWithAuthorization",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "authorizer", "type": "address"},
			{"name": "nonce", "type": "bytes32"}
		],
		"name": "authorizationState",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// OnChainExecutor broadcasts transferWithAuthorization calls against a real
// chain via ethclient, signing with the facilitator's own key. It serializes
// every broadcast behind a mutex: a single facilitator key must never race
// itself on transaction nonce assignment (§5, §9).
type OnChainExecutor struct {
	client     *ethclient.Client
	privateKey string
	address    common.Address
	contractABI abi.ABI

	mu sync.Mutex
}

// NewOnChainExecutor dials rpcURL and prepares a signer around
// privateKeyHex for broadcasting transferWithAuthorization calls.
func NewOnChainExecutor(ctx context.Context, rpcURL, privateKeyHex string) (*OnChainExecutor, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC %s: %w", rpcURL, err)
	}

	trimmed := strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid facilitator private key: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(transferWithAuthorizationABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &OnChainExecutor{
		client:      client,
		privateKey:  trimmed,
		address:     crypto.PubkeyToAddress(key.PublicKey),
		contractABI: parsedABI,
	}, nil
}

// Address is the facilitator's on-chain signing address.
func (e *OnChainExecutor) Address() string {
	return e.address.Hex()
}

// AuthorizationUsed reads the stablecoin's authorizationState to check
// whether a nonce has already been redeemed for the given authorizer,
// mirroring the teacher's checkNonceUsed pre-flight check.
func (e *OnChainExecutor) AuthorizationUsed(ctx context.Context, tokenAddress, authorizer string, nonce [32]byte) (bool, error) {
	data, err := e.contractABI.Pack("authorizationState", common.HexToAddress(authorizer), nonce)
	if err != nil {
		return false, fmt.Errorf("failed to pack authorizationState call: %w", err)
	}

	addr := common.HexToAddress(tokenAddress)
	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("authorizationState call failed: %w", err)
	}

	outputs, err := e.contractABI.Unpack("authorizationState", result)
	if err != nil {
		return false, fmt.Errorf("failed to unpack authorizationState result: %w", err)
	}
	if len(outputs) != 1 {
		return false, fmt.Errorf("unexpected authorizationState output count: %d", len(outputs))
	}
	used, ok := outputs[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState output type")
	}
	return used, nil
}

// Execute broadcasts transferWithAuthorization on tokenAddress and waits for
// it to be mined, returning the transaction hash. Its signature differs from
// facilitator.TransferExecutor; facilitator.OnChainAdapter wraps it to
// provide that interface for the on-chain (non-mock) mode.
func (e *OnChainExecutor) Execute(ctx context.Context, tokenAddress string, from, to, value, validAfter, validBefore string, nonce [32]byte, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("invalid signature length: got %d, want 65", len(signature))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	used, err := e.AuthorizationUsed(ctx, tokenAddress, from, nonce)
	if err != nil {
		return "", fmt.Errorf("authorizationState pre-check failed: %w", err)
	}
	if used {
		return "", fmt.Errorf("authorization already redeemed for %s", from)
	}

	valueBig, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return "", fmt.Errorf("invalid value: %s", value)
	}
	validAfterBig, ok := new(big.Int).SetString(validAfter, 10)
	if !ok {
		return "", fmt.Errorf("invalid validAfter: %s", validAfter)
	}
	validBeforeBig, ok := new(big.Int).SetString(validBefore, 10)
	if !ok {
		return "", fmt.Errorf("invalid validBefore: %s", validBefore)
	}

	var r, s [32]byte
	copy(r[:], signature[0:32])
	copy(s[:], signature[32:64])
	v := signature[64]

	data, err := e.contractABI.Pack(
		"transferWithAuthorization",
		common.HexToAddress(from),
		common.HexToAddress(to),
		valueBig,
		validAfterBig,
		validBeforeBig,
		nonce,
		v,
		r,
		s,
	)
	if err != nil {
		return "", fmt.Errorf("failed to pack transferWithAuthorization: %w", err)
	}

	key, err := crypto.HexToECDSA(e.privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid facilitator private key: %w", err)
	}

	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch chain id: %w", err)
	}
	nonceAt, err := e.client.PendingNonceAt(ctx, e.address)
	if err != nil {
		return "", fmt.Errorf("failed to fetch account nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch gas price: %w", err)
	}
	tokenAddr := common.HexToAddress(tokenAddress)
	gasLimit, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: e.address,
		To:   &tokenAddr,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonceAt,
		To:       &tokenAddr,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	txHash := signedTx.Hash().Hex()

	receipt, err := waitForReceipt(ctx, e.client, signedTx.Hash())
	if err != nil {
		return txHash, fmt.Errorf("failed to confirm transaction %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("transaction %s reverted", txHash)
	}

	return txHash, nil
}
