package agent

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	x402 "github.com/x402rail/facilitator"
	"github.com/x402rail/facilitator/eip712"
	"github.com/x402rail/facilitator/receipt"
)

// Wallet signs EIP-712 TransferWithAuthorization digests. Satisfied by
// *evmchain.Wallet; kept as an interface here so tests can substitute a
// fake signer without pulling in go-ethereum.
type Wallet interface {
	Address() string
	SignAuthorization(domain eip712.Domain, auth eip712.Authorization) ([]byte, error)
}

// RetryConfig configures the facilitator-call retry loop (§4.3 step 5).
type RetryConfig struct {
	MaxRetries int // default 2
	BackoffMs  int // default 1000, doubled per attempt
}

// DefaultRetryConfig matches the spec's stated defaults.
var DefaultRetryConfig = RetryConfig{MaxRetries: 2, BackoffMs: 1000}

// Client is the reusable stateful agent object described in §4.3: wallet,
// network, budget, receipt cache, facilitator URL, retry policy, and
// listeners.
type Client struct {
	Wallet         Wallet
	Network        x402.Network
	Budget         *Budget
	ReceiptCache   *ReceiptCache
	FacilitatorURL string
	Retry          RetryConfig
	Events         *Emitter
	HTTPClient     *http.Client
}

// NewClient builds a Client with sane defaults for Retry/Events/HTTPClient.
func NewClient(wallet Wallet, network x402.Network, budget *Budget, facilitatorURL string) *Client {
	return &Client{
		Wallet:         wallet,
		Network:        network,
		Budget:         budget,
		ReceiptCache:   NewReceiptCache(),
		FacilitatorURL: facilitatorURL,
		Retry:          DefaultRetryConfig,
		Events:         NewEmitter(),
		HTTPClient:     http.DefaultClient,
	}
}

// FetchOptions parameterizes an outbound request the way the spec's
// fetch(url, options) does.
type FetchOptions struct {
	Method string
	Body   []byte
	Header http.Header
}

// Fetch implements the five-step contract of §4.3: cache lookup, request
// with cached receipt, plain request, 402 parse, payment sub-flow, retry.
func (c *Client) Fetch(ctx context.Context, target string, opts FetchOptions) (*http.Response, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, x402.NewNetworkError(x402.CodeNetworkError, "invalid URL: "+err.Error(), nil)
	}
	contentID := parsed.Host + parsed.Path
	domain := parsed.Host

	if token, ok := c.ReceiptCache.Get(contentID); ok {
		resp, err := doRequestWith(ctx, c.httpClient(), target, opts, token)
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode == http.StatusPaymentRequired:
			c.ReceiptCache.Delete(contentID)
			resp.Body.Close()
		default:
			return resp, nil
		}
	}

	resp, err := doRequestWith(ctx, c.httpClient(), target, opts, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var parsedBody x402.PaymentRequest
	var bodyPtr *x402.PaymentRequest
	if len(body) > 0 && json.Unmarshal(body, &parsedBody) == nil {
		bodyPtr = &parsedBody
	}
	req := x402.ParsePaymentRequired(resp.Header, bodyPtr)
	if req == nil {
		return nil, x402.NewPaymentError(x402.CodeInvalid402Response, "invalid 402 response", nil)
	}

	token, err := c.pay(ctx, *req, contentID, domain)
	if err != nil {
		return nil, err
	}

	return doRequestWith(ctx, c.httpClient(), target, opts, token)
}

// pay runs the payment sub-flow of §4.3: budget check, sign, submit to the
// facilitator with retry, cache, and record.
func (c *Client) pay(ctx context.Context, req x402.PaymentRequest, contentID, domain string) (string, error) {
	c.Events.Emit(EventPaymentStarted, map[string]interface{}{"contentId": contentID, "price": req.Price})

	smallest, err := x402.ParsePrice(req.Price)
	if err != nil {
		failErr := x402.NewPaymentError(x402.CodeInvalid402Response, "invalid price: "+err.Error(), nil)
		c.Events.Emit(EventPaymentFailed, map[string]interface{}{"error": failErr.Error()})
		return "", failErr
	}
	amount, ok := new(big.Int).SetString(smallest, 10)
	if !ok {
		failErr := x402.NewPaymentError(x402.CodeInvalid402Response, "invalid price amount", nil)
		c.Events.Emit(EventPaymentFailed, map[string]interface{}{"error": failErr.Error()})
		return "", failErr
	}

	if c.Budget != nil {
		if budgetErr := c.Budget.AssertSpend(amount, domain); budgetErr != nil {
			c.Events.Emit(EventPaymentFailed, map[string]interface{}{"error": budgetErr.Error()})
			return "", budgetErr
		}
	}

	entry, err := findNetworkEntry(req.Network)
	if err != nil {
		c.Events.Emit(EventPaymentFailed, map[string]interface{}{"error": err.Error()})
		return "", err
	}

	auth, domainData, err := buildAuthorization(c.Wallet, req.PayTo, smallest, entry)
	if err != nil {
		signErr := x402.NewPaymentError(x402.CodeSigningFailed, "failed to generate nonce: "+err.Error(), nil)
		c.Events.Emit(EventPaymentFailed, map[string]interface{}{"error": signErr.Error()})
		return "", signErr
	}

	sig, err := c.Wallet.SignAuthorization(domainData, auth)
	if err != nil {
		signErr := x402.NewPaymentError(x402.CodeSigningFailed, "signing failed: "+err.Error(), nil)
		c.Events.Emit(EventPaymentFailed, map[string]interface{}{"error": signErr.Error()})
		return "", signErr
	}

	payload := buildPayload(entry, auth, sig, contentID)

	facilitatorURL := c.FacilitatorURL
	if req.FacilitatorURL != "" {
		facilitatorURL = req.FacilitatorURL
	}

	token, txHash, err := submitPayment(ctx, c.httpClient(), c.Retry, facilitatorURL, payload)
	if err != nil {
		c.Events.Emit(EventPaymentFailed, map[string]interface{}{"error": err.Error()})
		return "", err
	}

	if c.Budget != nil {
		c.Budget.RecordSpend(amount, contentID, domain, time.Now().Unix())
	}
	c.ReceiptCache.Set(contentID, token, cacheTTLFromToken(token))
	c.Events.Emit(EventPaymentSuccess, map[string]interface{}{
		"contentId":       contentID,
		"txHash":          txHash,
		"budgetRemaining": c.budgetRemaining(),
	})

	return token, nil
}

// buildAuthorization fills in an EIP-712 authorization for a payment of
// valueSmallest to payTo on entry's chain, drawing a fresh nonce and
// defaulting validAfter/validBefore per §4.3 step 3.
func buildAuthorization(wallet Wallet, payTo, valueSmallest string, entry x402.NetworkEntry) (eip712.Authorization, eip712.Domain, error) {
	nonce, err := x402.NewNonce()
	if err != nil {
		return eip712.Authorization{}, eip712.Domain{}, err
	}
	auth := eip712.Authorization{
		From:        wallet.Address(),
		To:          payTo,
		Value:       valueSmallest,
		ValidAfter:  "0",
		ValidBefore: fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix()),
		Nonce:       nonce,
	}
	domain := eip712.Domain{
		Name:              x402.StablecoinName,
		Version:           x402.StablecoinVersion,
		ChainID:           entry.ChainIDBig(),
		VerifyingContract: entry.StablecoinAddress,
	}
	return auth, domain, nil
}

// buildPayload assembles the facilitator wire request from a signed
// authorization (§3).
func buildPayload(entry x402.NetworkEntry, auth eip712.Authorization, signature []byte, resource string) x402.FacilitatorPayload {
	return x402.FacilitatorPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     entry.CAIP2,
		Resource:    resource,
		Payload: x402.ExactPayload{
			Signature: "0x" + hex.EncodeToString(signature),
			Authorization: x402.TransferAuthorization{
				From:        auth.From,
				To:          auth.To,
				Value:       auth.Value,
				ValidAfter:  auth.ValidAfter,
				ValidBefore: auth.ValidBefore,
				Nonce:       auth.Nonce,
			},
		},
	}
}

// submitPayment POSTs the signed payload to the facilitator, retrying up to
// retry.MaxRetries times with exponential backoff on facilitator (5xx)
// errors and on transport failures; any other non-200 status is returned
// at once without a retry (§4.3 step 5, §7 "Agent retry"). It returns the
// signed receipt token and the settlement transaction hash.
func submitPayment(ctx context.Context, httpClient *http.Client, retry RetryConfig, facilitatorURL string, payload x402.FacilitatorPayload) (token, txHash string, err error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", x402.NewPaymentError(x402.CodePaymentFailed, "failed to marshal payload: "+err.Error(), nil)
	}

	maxRetries := retry.MaxRetries
	backoff := retry.BackoffMs
	if backoff <= 0 {
		backoff = DefaultRetryConfig.BackoffMs
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, facilitatorURL, bytes.NewReader(body))
		if err != nil {
			return "", "", x402.NewNetworkError(x402.CodeNetworkError, err.Error(), nil)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = x402.NewNetworkError(x402.CodeNetworkError, err.Error(), nil)
			if !waitBackoff(ctx, backoff, attempt) {
				return "", "", ctx.Err()
			}
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			var facResp x402.FacilitatorResponse
			if err := json.Unmarshal(respBody, &facResp); err != nil {
				return "", "", x402.NewPaymentError(x402.CodePaymentFailed, "invalid facilitator response", nil)
			}
			return facResp.Receipt, facResp.TxHash, nil
		}

		var errBody x402.ErrorResponse
		_ = json.Unmarshal(respBody, &errBody)
		message := errBody.Error
		if message == "" {
			message = fmt.Sprintf("facilitator returned status %d", resp.StatusCode)
		}

		if resp.StatusCode >= 500 {
			lastErr = x402.NewPaymentError(x402.CodeFacilitatorError, message, nil)
			if attempt < maxRetries {
				if !waitBackoff(ctx, backoff, attempt) {
					return "", "", ctx.Err()
				}
				continue
			}
			return "", "", lastErr
		}

		return "", "", x402.NewPaymentError(x402.CodePaymentFailed, message, nil)
	}

	return "", "", lastErr
}

func waitBackoff(ctx context.Context, backoffMs, attempt int) bool {
	delay := time.Duration(backoffMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// doRequestWith issues target with opts, attaching receiptToken (if any) to
// both the X-402-Receipt and X-PAYMENT headers. Shared by Client.Fetch and
// Standalone.
func doRequestWith(ctx context.Context, httpClient *http.Client, target string, opts FetchOptions, receiptToken string) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, x402.NewNetworkError(x402.CodeNetworkError, err.Error(), nil)
	}
	for k, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if receiptToken != "" {
		req.Header.Set(x402.HeaderReceipt, receiptToken)
		req.Header.Set(x402.HeaderPayment, receiptToken)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, x402.NewNetworkError(x402.CodeNetworkError, err.Error(), nil)
	}
	return resp, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) budgetRemaining() string {
	if c.Budget == nil {
		return ""
	}
	remaining := c.Budget.Remaining()
	if remaining == nil {
		return ""
	}
	return remaining.String()
}

// cacheTTLFromToken derives the agent-side cache lifetime from the
// receipt's own expiresAt claim rather than assuming a fixed duration, so
// the client never treats a receipt as fresh past the facilitator's TTL.
func cacheTTLFromToken(token string) time.Duration {
	decoded, err := receipt.DecodeUnverified(token)
	if err != nil {
		return 0
	}
	ttl := time.Until(time.Unix(decoded.ExpiresAt, 0))
	if ttl < 0 {
		return 0
	}
	return ttl
}

// findNetworkEntry resolves the network named by a 402, given either as a
// registry key (e.g. "base-mainnet", as BuildPaymentRequired emits it) or
// as a CAIP-2 identifier (e.g. "eip155:8453").
func findNetworkEntry(network string) (x402.NetworkEntry, error) {
	if entry, err := x402.LookupNetwork(x402.Network(network)); err == nil {
		return entry, nil
	}
	entry, err := x402.LookupCAIP2(network)
	if err != nil {
		return x402.NetworkEntry{}, x402.NewNetworkError(x402.CodeNetworkError, err.Error(), nil)
	}
	return entry, nil
}
