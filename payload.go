package x402

// TransferAuthorization carries EIP-3009 TransferWithAuthorization fields,
// all as decimal/hex strings so the struct round-trips through JSON without
// precision loss (§3).
type TransferAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload is the "exact" scheme's payload: a signature over the
// authorization plus the authorization itself.
type ExactPayload struct {
	Signature     string                 `json:"signature"`
	Authorization TransferAuthorization  `json:"authorization"`
}

// FacilitatorPayload is the facilitator's request wire format (§3).
type FacilitatorPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
	Resource    string       `json:"resource"`
}

// PaymentAccept is one entry of a 402 response's "accepts" array (§6).
type PaymentAccept struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType"`
	Payload           map[string]interface{} `json:"payload"`
}

// PaymentRequest is the server→client 402 body (§3, §6).
type PaymentRequest struct {
	PayTo          string          `json:"payTo"`
	Price          string          `json:"price"`
	Currency       string          `json:"currency"`
	ContentID      string          `json:"contentId"`
	Network        string          `json:"network"`
	FacilitatorURL string          `json:"facilitatorUrl"`
	Description    string          `json:"description,omitempty"`
	Accepts        []PaymentAccept `json:"accepts"`
}

// FacilitatorResponse is the facilitator's 200 response body (§3, §6).
type FacilitatorResponse struct {
	Receipt string `json:"receipt"`
	TxHash  string `json:"txHash,omitempty"`
}

// ErrorResponse is the facilitator's and resource-server adapter's uniform
// error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
