// Package receipt builds, signs, verifies, and caches the short-lived
// tokens a facilitator mints as proof of payment (§3, §4.2 step 7, §4.4).
//
// Signing is grounded on capiscio-capiscio-core's pkg/badge/issuer.go and
// pkg/badge/verifier.go: that package signs a claims struct into a compact
// JWS with go-jose and verifies it back, peeking the payload before
// signature verification to decide which key to check against. This
// package narrows that pattern to a single symmetric algorithm (HS256) by
// default, with ES256 as a verify-side alternate, matching this system's
// receipt format rather than badge's EdDSA-only scheme.
package receipt

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"time"

	josejwt "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// Receipt is the facilitator-minted proof of payment (§3).
type Receipt struct {
	ID          string `json:"id"`
	ContentID   string `json:"contentId"`
	Payer       string `json:"payer"`
	Payee       string `json:"payee"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	ChainID     int64  `json:"chainId"`
	TxHash      string `json:"txHash"`
	PaidAt      int64  `json:"paidAt"`
	ExpiresAt   int64  `json:"expiresAt"`
	Facilitator string `json:"facilitator"`
}

// claims is the JWT payload shape: every receipt field plus the standard
// sub/iat/exp claims mirroring payer/paidAt/expiresAt (§6).
type claims struct {
	Receipt
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// New builds a Receipt for a settled payment. Its ID is always a freshly
// generated uuid; the caller cannot supply one.
func New(contentID, payer, payee, amountSmallest, currency string, chainID int64, txHash, facilitatorURL string, paidAt time.Time, ttl time.Duration) Receipt {
	return Receipt{
		ID:          uuid.NewString(),
		ContentID:   contentID,
		Payer:       payer,
		Payee:       payee,
		Amount:      amountSmallest,
		Currency:    currency,
		ChainID:     chainID,
		TxHash:      txHash,
		PaidAt:      paidAt.Unix(),
		ExpiresAt:   paidAt.Add(ttl).Unix(),
		Facilitator: facilitatorURL,
	}
}

// SignHS256 signs r as a compact JWS with header {"alg":"HS256","typ":"JWT"}
// using an HMAC-SHA256 key, the default receipt-signing mode (§3, §6).
func SignHS256(r Receipt, secret []byte) (string, error) {
	signer, err := josejwt.NewSigner(josejwt.SigningKey{Algorithm: josejwt.HS256, Key: secret}, (&josejwt.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("failed to build HS256 signer: %w", err)
	}
	return signAndSerialize(signer, r)
}

// SignES256 signs r with an ECDSA P-256 private key, the asymmetric
// alternative mode named in §3.
func SignES256(r Receipt, key *ecdsa.PrivateKey) (string, error) {
	signer, err := josejwt.NewSigner(josejwt.SigningKey{Algorithm: josejwt.ES256, Key: key}, (&josejwt.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("failed to build ES256 signer: %w", err)
	}
	return signAndSerialize(signer, r)
}

func signAndSerialize(signer josejwt.Signer, r Receipt) (string, error) {
	c := claims{
		Receipt:   r,
		Subject:   r.Payer,
		IssuedAt:  r.PaidAt,
		ExpiresAt: r.ExpiresAt,
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt claims: %w", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign receipt: %w", err)
	}
	return jws.CompactSerialize()
}

// VerifyResult is the outcome of verifying a receipt token (§8 "Receipt
// round-trip").
type VerifyResult struct {
	Valid   bool
	Receipt Receipt
	Reason  string
}

// VerifyHS256 verifies token's signature with secret, then enforces
// exp > now and, if expectedContentID is non-empty, contentId ==
// expectedContentID (§4.4 "Receipt verification").
func VerifyHS256(token string, secret []byte, expectedContentID string, now time.Time) VerifyResult {
	parsed, err := jwt.ParseSigned(token, []josejwt.SignatureAlgorithm{josejwt.HS256})
	if err != nil {
		return VerifyResult{Reason: fmt.Sprintf("malformed token: %v", err)}
	}
	var c claims
	if err := parsed.Claims(secret, &c); err != nil {
		return VerifyResult{Reason: fmt.Sprintf("signature verification failed: %v", err)}
	}
	return finishVerify(c, expectedContentID, now)
}

// VerifyES256 verifies token's signature against an ECDSA P-256 public key.
func VerifyES256(token string, pub *ecdsa.PublicKey, expectedContentID string, now time.Time) VerifyResult {
	parsed, err := jwt.ParseSigned(token, []josejwt.SignatureAlgorithm{josejwt.ES256})
	if err != nil {
		return VerifyResult{Reason: fmt.Sprintf("malformed token: %v", err)}
	}
	var c claims
	if err := parsed.Claims(pub, &c); err != nil {
		return VerifyResult{Reason: fmt.Sprintf("signature verification failed: %v", err)}
	}
	return finishVerify(c, expectedContentID, now)
}

// DecodeUnverified reads the claims of token without checking its
// signature. Per §4.4, callers must treat the result as display-only.
func DecodeUnverified(token string) (Receipt, error) {
	parsed, err := jwt.ParseSigned(token, []josejwt.SignatureAlgorithm{josejwt.HS256, josejwt.ES256})
	if err != nil {
		return Receipt{}, fmt.Errorf("malformed token: %w", err)
	}
	var c claims
	if err := parsed.UnsafeClaimsWithoutVerification(&c); err != nil {
		return Receipt{}, fmt.Errorf("failed to decode claims: %w", err)
	}
	return c.Receipt, nil
}

func finishVerify(c claims, expectedContentID string, now time.Time) VerifyResult {
	if c.ExpiresAt <= now.Unix() {
		return VerifyResult{Reason: "receipt expired"}
	}
	if expectedContentID != "" && c.ContentID != expectedContentID {
		return VerifyResult{Reason: fmt.Sprintf("content id mismatch: receipt is for %q", c.ContentID)}
	}
	return VerifyResult{Valid: true, Receipt: c.Receipt}
}
