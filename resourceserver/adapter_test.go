package resourceserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402rail/facilitator"
	"github.com/x402rail/facilitator/receipt"
)

func testPublisher() x402.PublisherConfig {
	return x402.PublisherConfig{
		PayTo:          "0xPayee",
		Price:          "0.01",
		Currency:       "USDC",
		Network:        x402.NetworkBaseMainnet,
		FacilitatorURL: "https://facilitator.example",
	}
}

func newEchoContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAdapterRejectsMissingToken(t *testing.T) {
	adapter := NewAdapter(testPublisher(), "secret-at-least-32-bytes-long!!!")
	req := httptest.NewRequest(http.MethodGet, "/article-1", nil)
	c, rec := newEchoContext(req)

	handler := adapter.Middleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	require.NoError(t, handler(c))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestAdapterRejectsWrongContentID(t *testing.T) {
	secret := []byte("secret-at-least-32-bytes-long!!!")
	r := receipt.New("a", "0xPayer", "0xPayee", "1000", "USDC", 8453, "0xdead", "https://facilitator.example", time.Now(), time.Hour)
	token, err := receipt.SignHS256(r, secret)
	require.NoError(t, err)

	adapter := NewAdapter(testPublisher(), string(secret))
	req := httptest.NewRequest(http.MethodGet, "/b", nil)
	req.Header.Set(x402.HeaderReceipt, token)
	c, rec := newEchoContext(req)

	var handlerCalled bool
	handler := adapter.Middleware()(func(c echo.Context) error {
		handlerCalled = true
		return c.String(http.StatusOK, "ok")
	})

	require.NoError(t, handler(c))
	require.False(t, handlerCalled)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestAdapterAcceptsValidReceipt(t *testing.T) {
	secret := []byte("secret-at-least-32-bytes-long!!!")
	r := receipt.New("/article-1", "0xPayer", "0xPayee", "1000", "USDC", 8453, "0xdead", "https://facilitator.example", time.Now(), time.Hour)
	token, err := receipt.SignHS256(r, secret)
	require.NoError(t, err)

	adapter := NewAdapter(testPublisher(), string(secret))
	req := httptest.NewRequest(http.MethodGet, "/article-1", nil)
	req.Header.Set(x402.HeaderReceipt, token)
	c, rec := newEchoContext(req)

	var received PaymentContext
	handler := adapter.Middleware()(func(c echo.Context) error {
		received, _ = FromContext(c)
		return c.String(http.StatusOK, "ok")
	})

	require.NoError(t, handler(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0xPayer", received.Receipt.Payer)
}

func TestAdapterCachesVerificationResult(t *testing.T) {
	secret := []byte("secret-at-least-32-bytes-long!!!")
	r := receipt.New("/article-1", "0xPayer", "0xPayee", "1000", "USDC", 8453, "0xdead", "https://facilitator.example", time.Now(), time.Hour)
	token, err := receipt.SignHS256(r, secret)
	require.NoError(t, err)

	adapter := NewAdapter(testPublisher(), string(secret))
	handler := adapter.Middleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/article-1", nil)
		req.Header.Set(x402.HeaderReceipt, token)
		c, rec := newEchoContext(req)
		require.NoError(t, handler(c))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Equal(t, 1, adapter.cache.Len())
}
