package facilitator

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	x402 "github.com/x402rail/facilitator"
	"github.com/x402rail/facilitator/eip712"
	"github.com/x402rail/facilitator/receipt"
)

// Stage names the pipeline's state machine positions (§4.2 "State machine").
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StageValidated     Stage = "VALIDATED"
	StageSignatureOK   Stage = "SIGNATURE_OK"
	StageTimeOK        Stage = "TIME_OK"
	StageTransferOK    Stage = "TRANSFER_OK"
	StageReceiptSigned Stage = "RECEIPT_SIGNED"
	StageResponded     Stage = "RESPONDED"
	StageRejected      Stage = "REJECTED"
	StageFailed        Stage = "FAILED"
)

// Outcome carries the terminal stage, HTTP status, and body for a single
// pipeline run, letting callers (HTTP handlers, tests) inspect exactly
// where a request stopped.
type Outcome struct {
	Stage      Stage
	StatusCode int
	Response   x402.FacilitatorResponse
	ErrorBody  x402.ErrorResponse
}

// Pipeline runs the sequential validate→settle→mint flow described in
// §4.2. Each dependency is injected so tests can substitute a MockExecutor
// and a fixed clock-free secret.
type Pipeline struct {
	cfg      *Config
	executor TransferExecutor
}

// NewPipeline builds a Pipeline from a validated Config and executor.
func NewPipeline(cfg *Config, executor TransferExecutor) *Pipeline {
	return &Pipeline{cfg: cfg, executor: executor}
}

// Handle runs the eight-step pipeline against payload, short-circuiting on
// the first failing step (§4.2).
func (p *Pipeline) Handle(ctx context.Context, payload x402.FacilitatorPayload) Outcome {
	stage := StageReceived

	if err := validateShape(payload); err != nil {
		return reject(stage, err)
	}
	stage = StageValidated

	entry, err := x402.LookupCAIP2(payload.Network)
	if err != nil {
		return reject(stage, err)
	}

	auth := eip712.Authorization{
		From:        payload.Payload.Authorization.From,
		To:          payload.Payload.Authorization.To,
		Value:       payload.Payload.Authorization.Value,
		ValidAfter:  payload.Payload.Authorization.ValidAfter,
		ValidBefore: payload.Payload.Authorization.ValidBefore,
		Nonce:       payload.Payload.Authorization.Nonce,
	}
	domain := eip712.Domain{
		Name:              x402.StablecoinName,
		Version:           x402.StablecoinVersion,
		ChainID:           entry.ChainIDBig(),
		VerifyingContract: entry.StablecoinAddress,
	}

	sig, err := decodeSignature(payload.Payload.Signature)
	if err != nil {
		return reject(stage, err)
	}

	digest, err := eip712.HashAuthorization(domain, auth)
	if err != nil {
		return reject(stage, fmt.Errorf("failed to hash authorization: %w", err))
	}
	recovered, err := eip712.RecoverSigner(digest, sig)
	if err != nil {
		return reject(stage, fmt.Errorf("signature recovery failed: %w", err))
	}
	if !x402.EqualAddress(recovered, auth.From) {
		return reject(stage, fmt.Errorf("Signature mismatch: recovered %s, expected %s", recovered, auth.From))
	}
	stage = StageSignatureOK

	now := time.Now().Unix()
	validAfter, _ := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)
	if validBefore.Int64() <= now {
		return reject(stage, fmt.Errorf("authorization expired: validBefore %s <= now %d", auth.ValidBefore, now))
	}
	if validAfter.Int64() > now {
		return reject(stage, fmt.Errorf("authorization not yet valid: validAfter %s > now %d", auth.ValidAfter, now))
	}
	stage = StageTimeOK

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return reject(stage, fmt.Errorf("invalid value: %s", auth.Value))
	}
	fee, publisherAmount, err := x402.SplitFee(value.String(), p.cfg.FeePercent)
	if err != nil {
		return reject(stage, fmt.Errorf("fee split failed: %w", err))
	}
	if sum := new(big.Int).Add(fee, publisherAmount); sum.Cmp(value) != 0 {
		return fail(stage, fmt.Errorf("fee split invariant violated: fee %s + publisher %s != value %s", fee, publisherAmount, value))
	}

	txHash, err := p.executor.Execute(ctx, entry.StablecoinAddress, auth, sig, entry.ChainID)
	if err != nil {
		return fail(stage, fmt.Errorf("transfer execution failed: %w", err))
	}
	stage = StageTransferOK

	paidAt := time.Now()
	r := receipt.New(payload.Resource, auth.From, auth.To, publisherAmount.String(), "USDC", entry.ChainID, txHash, p.cfg.FacilitatorURL, paidAt, time.Duration(p.cfg.ReceiptTTLSecs)*time.Second)
	token, err := receipt.SignHS256(r, []byte(p.cfg.JWTSecret))
	if err != nil {
		return fail(stage, fmt.Errorf("receipt signing failed: %w", err))
	}
	stage = StageReceiptSigned

	stage = StageResponded
	return Outcome{
		Stage:      stage,
		StatusCode: 200,
		Response:   x402.FacilitatorResponse{Receipt: token, TxHash: txHash},
	}
}

// reject builds a 400 Outcome for a validation failure at lastStage, logging
// the terminal REJECTED state and the failing stage plus reason (§10.1, §12).
func reject(lastStage Stage, err error) Outcome {
	log.Printf("pipeline: REJECTED at %s: %v", lastStage, err)
	return Outcome{Stage: StageRejected, StatusCode: 400, ErrorBody: x402.ErrorResponse{Error: err.Error()}}
}

// fail builds a 500 Outcome for an operational failure at lastStage,
// logging the terminal FAILED state and the failing stage plus reason.
func fail(lastStage Stage, err error) Outcome {
	log.Printf("pipeline: FAILED at %s: %v", lastStage, err)
	return Outcome{Stage: StageFailed, StatusCode: 500, ErrorBody: x402.ErrorResponse{Error: err.Error()}}
}

func validateShape(payload x402.FacilitatorPayload) error {
	if payload.X402Version != 1 {
		return fmt.Errorf("x402Version must be 1, got %d", payload.X402Version)
	}
	if payload.Scheme != "exact" {
		return fmt.Errorf("scheme must be \"exact\", got %q", payload.Scheme)
	}
	if payload.Network == "" {
		return fmt.Errorf("network is required")
	}
	if payload.Resource == "" {
		return fmt.Errorf("resource is required")
	}
	sig := payload.Payload.Signature
	if sig == "" || !strings.HasPrefix(sig, "0x") {
		return fmt.Errorf("payload.signature must be 0x-prefixed")
	}
	auth := payload.Payload.Authorization
	if !strings.HasPrefix(auth.From, "0x") {
		return fmt.Errorf("authorization.from must be 0x-prefixed")
	}
	if !strings.HasPrefix(auth.To, "0x") {
		return fmt.Errorf("authorization.to must be 0x-prefixed")
	}
	if auth.Value == "" {
		return fmt.Errorf("authorization.value is required")
	}
	if auth.ValidAfter == "" {
		return fmt.Errorf("authorization.validAfter is required")
	}
	if auth.ValidBefore == "" {
		return fmt.Errorf("authorization.validBefore is required")
	}
	if !strings.HasPrefix(auth.Nonce, "0x") {
		return fmt.Errorf("authorization.nonce must be 0x-prefixed")
	}
	return nil
}

func decodeSignature(sigHex string) ([]byte, error) {
	trimmed := strings.TrimPrefix(sigHex, "0x")
	sig, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length: got %d, want 65", len(sig))
	}
	return sig, nil
}
