package x402

import (
	"net/http"
	"strings"
)

// HTTP header names used by the 402 protocol (§6).
const (
	HeaderPayTo          = "X-402-PayTo"
	HeaderPrice          = "X-402-Price"
	HeaderCurrency       = "X-402-Currency"
	HeaderNetwork        = "X-402-Network"
	HeaderFacilitator    = "X-402-Facilitator"
	HeaderContentID      = "X-402-Content-Id"
	HeaderDescription    = "X-402-Description"
	HeaderReceipt        = "X-402-Receipt"
	HeaderPayment        = "X-PAYMENT"
	HeaderAuthorization  = "Authorization"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// x402AuthScheme is the Authorization-header scheme prefix recognized for
// receipt extraction: "Authorization: X402 <token>".
const x402AuthScheme = "X402 "

// PublisherConfig is the per-resource configuration the response assembler
// needs to build a 402.
type PublisherConfig struct {
	PayTo          string
	Price          string // human-readable, e.g. "0.01"
	Currency       string
	Network        Network
	FacilitatorURL string
	Description    string
}

// BuildPaymentRequired assembles the 402 status, headers, and body for a
// given publisher config and content id (§4.1 "Response assembler").
func BuildPaymentRequired(cfg PublisherConfig, contentID string) (status int, headers http.Header, body PaymentRequest, err error) {
	entry, lookupErr := LookupNetwork(cfg.Network)
	if lookupErr != nil {
		return 0, nil, PaymentRequest{}, lookupErr
	}

	smallest, parseErr := ParsePrice(cfg.Price)
	if parseErr != nil {
		return 0, nil, PaymentRequest{}, parseErr
	}

	headers = http.Header{}
	headers.Set(HeaderPayTo, cfg.PayTo)
	headers.Set(HeaderPrice, cfg.Price)
	headers.Set(HeaderCurrency, cfg.Currency)
	headers.Set(HeaderNetwork, string(cfg.Network))
	headers.Set(HeaderFacilitator, cfg.FacilitatorURL)
	headers.Set(HeaderContentID, contentID)
	if cfg.Description != "" {
		headers.Set(HeaderDescription, cfg.Description)
	}

	accept := PaymentAccept{
		Scheme:            "exact",
		Network:           entry.CAIP2,
		MaxAmountRequired: smallest,
		Resource:          contentID,
		Description:       cfg.Description,
		MimeType:          "application/json",
		Payload:           eip712Skeleton(),
	}

	body = PaymentRequest{
		PayTo:          cfg.PayTo,
		Price:          cfg.Price,
		Currency:       cfg.Currency,
		ContentID:      contentID,
		Network:        string(cfg.Network),
		FacilitatorURL: cfg.FacilitatorURL,
		Description:    cfg.Description,
		Accepts:        []PaymentAccept{accept},
	}

	return http.StatusPaymentRequired, headers, body, nil
}

// eip712Skeleton renders the "unfilled" EIP-712 typed-data skeleton the
// spec's §4.1 response assembler embeds in each accept entry: authorization
// fields the client must still fill in (from, validAfter, validBefore,
// nonce) are left as placeholders.
func eip712Skeleton() map[string]interface{} {
	return map[string]interface{}{
		"types": map[string]interface{}{
			"TransferWithAuthorization": []map[string]string{
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
			},
		},
		"primaryType": "TransferWithAuthorization",
	}
}

// ParsePaymentRequired reads a 402 response, body first then headers, per
// §4.1 "Response parser". Returns nil if any required field is missing.
func ParsePaymentRequired(headers http.Header, body *PaymentRequest) *PaymentRequest {
	result := &PaymentRequest{}
	if body != nil {
		*result = *body
	}

	if result.PayTo == "" {
		result.PayTo = headers.Get(HeaderPayTo)
	}
	if result.Price == "" {
		result.Price = headers.Get(HeaderPrice)
	}
	if result.Currency == "" {
		result.Currency = headers.Get(HeaderCurrency)
	}
	if result.ContentID == "" {
		result.ContentID = headers.Get(HeaderContentID)
	}
	if result.Network == "" {
		result.Network = headers.Get(HeaderNetwork)
	}
	if result.FacilitatorURL == "" {
		result.FacilitatorURL = headers.Get(HeaderFacilitator)
	}
	if result.Description == "" {
		result.Description = headers.Get(HeaderDescription)
	}

	if result.PayTo == "" || result.Price == "" || result.ContentID == "" || result.Network == "" {
		return nil
	}
	return result
}

// ExtractReceiptToken inspects, in order, X-402-Receipt, X-PAYMENT, and an
// "Authorization: X402 <token>" header, matching headers case-insensitively
// (§4.1 "Receipt extraction"). Returns "" if none carry a token.
func ExtractReceiptToken(headers http.Header) string {
	if token := headerLookup(headers, HeaderReceipt); token != "" {
		return token
	}
	if token := headerLookup(headers, HeaderPayment); token != "" {
		return token
	}
	if auth := headerLookup(headers, HeaderAuthorization); auth != "" {
		if strings.HasPrefix(auth, x402AuthScheme) {
			return strings.TrimPrefix(auth, x402AuthScheme)
		}
	}
	return ""
}

// headerLookup performs a case-insensitive header lookup; http.Header
// already canonicalizes keys set via Set/Get, but callers may hand us raw
// maps (e.g. parsed from a non-Go client), so normalize defensively.
func headerLookup(headers http.Header, name string) string {
	if v := headers.Get(name); v != "" {
		return v
	}
	for key, values := range headers {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
