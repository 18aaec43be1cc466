package agent

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/url"

	x402 "github.com/x402rail/facilitator"
	"github.com/x402rail/facilitator/evmchain"
)

// Standalone runs the stateless one-shot variant of the fetch/pay pipeline
// (§4.3 "Standalone mode"): the same request→402→pay→retry flow as
// Client.Fetch, but with no receipt cache, no budget manager, and no event
// listeners. privateKeyHex is used to derive a temporary wallet that lives
// only for the duration of this call. maxPrice, if non-empty, caps what
// this single call is willing to pay; it is enforced before any signing or
// facilitator call is made.
func Standalone(ctx context.Context, privateKeyHex string, facilitatorURL, target, maxPrice string, opts FetchOptions) (*http.Response, error) {
	wallet, err := evmchain.NewWallet(privateKeyHex)
	if err != nil {
		return nil, x402.NewPaymentError(x402.CodeSigningFailed, "invalid private key: "+err.Error(), nil)
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return nil, x402.NewNetworkError(x402.CodeNetworkError, "invalid URL: "+err.Error(), nil)
	}
	contentID := parsed.Host + parsed.Path

	httpClient := http.DefaultClient

	resp, err := doRequestWith(ctx, httpClient, target, opts, "")
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

	smallest, err := x402.ParsePrice(req.Price)
	if err != nil {
		return nil, x402.NewPaymentError(x402.CodeInvalid402Response, "invalid price: "+err.Error(), nil)
	}
	amount, ok := new(big.Int).SetString(smallest, 10)
	if !ok {
		return nil, x402.NewPaymentError(x402.CodeInvalid402Response, "invalid price amount", nil)
	}

	if maxPrice != "" {
		maxSmallest, err := x402.ParsePrice(maxPrice)
		if err != nil {
			return nil, x402.NewBudgetError(x402.CodePerRequestLimit, "invalid maxPrice: "+err.Error(), nil)
		}
		maxAmount, ok := new(big.Int).SetString(maxSmallest, 10)
		if !ok {
			return nil, x402.NewBudgetError(x402.CodePerRequestLimit, "invalid maxPrice amount", nil)
		}
		if amount.Cmp(maxAmount) > 0 {
			return nil, x402.NewBudgetError(x402.CodePerRequestLimit, "price "+req.Price+" exceeds maxPrice "+maxPrice, nil)
		}
	}

	entry, err := findNetworkEntry(req.Network)
	if err != nil {
		return nil, err
	}

	auth, domain, err := buildAuthorization(wallet, req.PayTo, smallest, entry)
	if err != nil {
		return nil, x402.NewPaymentError(x402.CodeSigningFailed, "failed to generate nonce: "+err.Error(), nil)
	}

	sig, err := wallet.SignAuthorization(domain, auth)
	if err != nil {
		return nil, x402.NewPaymentError(x402.CodeSigningFailed, "signing failed: "+err.Error(), nil)
	}

	payload := buildPayload(entry, auth, sig, contentID)

	facilitator := facilitatorURL
	if req.FacilitatorURL != "" {
		facilitator = req.FacilitatorURL
	}

	token, _, err := submitPayment(ctx, httpClient, DefaultRetryConfig, facilitator, payload)
	if err != nil {
		return nil, err
	}

	return doRequestWith(ctx, httpClient, target, opts, token)
}
