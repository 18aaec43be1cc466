package agent

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402rail/facilitator"
)

func newTestPrivateKeyHex(t *testing.T) string {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(key))
}

func TestStandaloneRejectsOverMaxPriceBeforeAnyFacilitatorCall(t *testing.T) {
	var facilitatorCalls int32

	resourceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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

	_, err := Standalone(context.Background(), newTestPrivateKeyHex(t), facilitatorServer.URL, resourceServer.URL, "1.00", FetchOptions{})
	require.Error(t, err)

	xerr, ok := err.(*x402.Error)
	require.True(t, ok)
	require.Equal(t, x402.CodePerRequestLimit, xerr.Code)
	require.EqualValues(t, 0, atomic.LoadInt32(&facilitatorCalls))
}

func TestStandaloneHappyPathHasNoCacheOrBudgetState(t *testing.T) {
	var paid int32

	resourceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(x402.HeaderReceipt) != "" {
			atomic.AddInt32(&paid, 1)
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set(x402.HeaderPayTo, "0xPayee")
		w.Header().Set(x402.HeaderPrice, "0.50")
		w.Header().Set(x402.HeaderContentID, "article-1")
		w.Header().Set(x402.HeaderNetwork, "eip155:8453")
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer resourceServer.Close()

	facilitatorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := x402.FacilitatorResponse{Receipt: "fake-receipt-token", TxHash: "0xdead"}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer facilitatorServer.Close()

	resp, err := Standalone(context.Background(), newTestPrivateKeyHex(t), facilitatorServer.URL, resourceServer.URL, "1.00", FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, atomic.LoadInt32(&paid))
}
