// Package resourceserver wraps an echo handler with payment gating: it
// extracts and verifies a receipt token from inbound headers, and emits a
// fresh 402 when one is absent or invalid, per §4.4.
package resourceserver

import (
	"crypto/ecdsa"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	x402 "github.com/x402rail/facilitator"
	"github.com/x402rail/facilitator/receipt"
)

// PaymentContextKey is the echo context key the adapter stores its
// verification result under before invoking the wrapped handler.
const PaymentContextKey = "x402_payment"

// PaymentContext is passed to the wrapped handler on a successful
// verification (§4.4 step 4).
type PaymentContext struct {
	Receipt      receipt.Receipt
	ContentID    string
	ReceiptToken string
}

// Adapter gates an echo route behind receipt verification. Each Adapter is
// configured with exactly one of the HMAC secret (NewAdapter) or the ECDSA
// public key (NewAdapterWithPublicKey); there is no mode that accepts a
// token without verifying its signature.
type Adapter struct {
	publisher x402.PublisherConfig
	verify    func(token, contentID string, now time.Time) receipt.VerifyResult
	cache     *receipt.Cache
	// contentID computes the resource's content id for a request; default
	// is the request path (§4.4 step 1).
	contentID func(c echo.Context) string
}

// NewAdapter builds an Adapter that verifies receipts with HMAC-SHA256
// against secret and emits 402s built from publisher, using the default
// verification cache TTL (§4.4).
func NewAdapter(publisher x402.PublisherConfig, secret string) *Adapter {
	key := []byte(secret)
	return newAdapter(publisher, func(token, contentID string, now time.Time) receipt.VerifyResult {
		return receipt.VerifyHS256(token, key, contentID, now)
	})
}

// NewAdapterWithPublicKey builds an Adapter that verifies receipts with the
// ECDSA P-256 alternate mode from §3/§4.4.
func NewAdapterWithPublicKey(publisher x402.PublisherConfig, pub *ecdsa.PublicKey) *Adapter {
	return newAdapter(publisher, func(token, contentID string, now time.Time) receipt.VerifyResult {
		return receipt.VerifyES256(token, pub, contentID, now)
	})
}

func newAdapter(publisher x402.PublisherConfig, verify func(token, contentID string, now time.Time) receipt.VerifyResult) *Adapter {
	return &Adapter{
		publisher: publisher,
		verify:    verify,
		cache:     receipt.NewCache(receipt.DefaultCacheTTL),
		contentID: func(c echo.Context) string { return c.Request().URL.Path },
	}
}

// WithContentID overrides how the adapter derives a request's content id.
func (a *Adapter) WithContentID(f func(c echo.Context) string) *Adapter {
	a.contentID = f
	return a
}

// WithCacheTTL overrides the verification cache TTL.
func (a *Adapter) WithCacheTTL(ttl time.Duration) *Adapter {
	a.cache = receipt.NewCache(ttl)
	return a
}

// Middleware returns an echo.MiddlewareFunc implementing §4.4's four steps.
func (a *Adapter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			contentID := a.contentID(c)

			token := x402.ExtractReceiptToken(c.Request().Header)
			if token == "" {
				return a.emit402(c, contentID)
			}

			if cached, ok := a.cache.Get(token, contentID); ok {
				if !cached.Valid {
					return a.emit402(c, contentID)
				}
				c.Set(PaymentContextKey, PaymentContext{Receipt: cached.Receipt, ContentID: contentID, ReceiptToken: token})
				return next(c)
			}

			result := a.verify(token, contentID, time.Now())
			if !result.Valid {
				return a.emit402(c, contentID)
			}
			a.cache.Put(token, contentID, result)

			c.Set(PaymentContextKey, PaymentContext{Receipt: result.Receipt, ContentID: contentID, ReceiptToken: token})
			return next(c)
		}
	}
}

func (a *Adapter) emit402(c echo.Context, contentID string) error {
	cfg := a.publisher
	status, headers, body, err := x402.BuildPaymentRequired(cfg, contentID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, x402.ErrorResponse{Error: err.Error()})
	}
	for key, values := range headers {
		for _, v := range values {
			c.Response().Header().Add(key, v)
		}
	}
	return c.JSON(status, body)
}

// FromContext extracts the PaymentContext an Adapter stored, for use in
// wrapped handlers.
func FromContext(c echo.Context) (PaymentContext, bool) {
	v := c.Get(PaymentContextKey)
	if v == nil {
		return PaymentContext{}, false
	}
	pc, ok := v.(PaymentContext)
	return pc, ok
}
