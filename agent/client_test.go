package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	x402 "github.com/x402rail/facilitator"
	"github.com/x402rail/facilitator/eip712"
	"github.com/x402rail/facilitator/receipt"
)

type fakeWallet struct {
	address string
}

func (w *fakeWallet) Address() string { return w.address }

func (w *fakeWallet) SignAuthorization(_ eip712.Domain, _ eip712.Authorization) ([]byte, error) {
	sig := make([]byte, 65)
	sig[64] = 27
	return sig, nil
}

func TestFetchRejectsOverBudgetBeforeAnyFacilitatorCall(t *testing.T) {
	var resourceCalls, facilitatorCalls int32

	resourceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&resourceCalls, 1)
		w.Header().Set(x402.HeaderPayTo, "0xPayee")
		w.Header().Set(x402.HeaderPrice, "5.00")
		w.Header().Set(x402.HeaderContentID, "article-1")
		w.Header().Set(x402.HeaderNetwork, "eip155:8453")
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer resourceServer.Close()

	facilitatorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&facilitatorCalls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer facilitatorServer.Close()

	budget, err := NewBudget(SpendingPolicy{MaxPerRequest: "1.00"}, nil)
	require.NoError(t, err)

	client := NewClient(&fakeWallet{address: "0xPayer"}, x402.NetworkBaseMainnet, budget, facilitatorServer.URL)

	_, err = client.Fetch(context.Background(), resourceServer.URL, FetchOptions{})
	require.Error(t, err)

	xerr, ok := err.(*x402.Error)
	require.True(t, ok)
	require.Equal(t, x402.CodePerRequestLimit, xerr.Code)
	require.EqualValues(t, 0, atomic.LoadInt32(&facilitatorCalls))
}

func TestFetchReusesCachedReceiptWithoutFacilitatorCall(t *testing.T) {
	var resourceCalls, facilitatorCalls int32

	resourceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&resourceCalls, 1)
		token := x402.ExtractReceiptToken(r.Header)
		if token != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if n == 1 {
			w.Header().Set(x402.HeaderPayTo, "0xPayee")
			w.Header().Set(x402.HeaderPrice, "0.01")
			w.Header().Set(x402.HeaderContentID, "article-1")
			w.Header().Set(x402.HeaderNetwork, "eip155:8453")
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer resourceServer.Close()

	facilitatorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&facilitatorCalls, 1)
		r0 := receipt.New("article-1", "0xPayer", "0xPayee", "1000", "USDC", 8453, "0xdead", "https://facilitator.example", time.Now(), time.Hour)
		token, _ := receipt.SignHS256(r0, []byte("secret"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"receipt":"` + token + `","txHash":"0xdead"}`))
	}))
	defer facilitatorServer.Close()

	budget, err := NewBudget(SpendingPolicy{}, nil)
	require.NoError(t, err)

	client := NewClient(&fakeWallet{address: "0xPayer"}, x402.NetworkBaseMainnet, budget, facilitatorServer.URL)

	resp1, err := client.Fetch(context.Background(), resourceServer.URL, FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp1.StatusCode)
	require.EqualValues(t, 1, atomic.LoadInt32(&facilitatorCalls))

	resp2, err := client.Fetch(context.Background(), resourceServer.URL, FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	require.EqualValues(t, 1, atomic.LoadInt32(&facilitatorCalls), "second fetch must not call the facilitator again")
}
