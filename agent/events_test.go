package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitterDeliversToRegisteredListeners(t *testing.T) {
	e := NewEmitter()
	var received map[string]interface{}
	e.On(EventPaymentSuccess, func(payload map[string]interface{}) {
		received = payload
	})

	e.Emit(EventPaymentSuccess, map[string]interface{}{"contentId": "article-1"})

	require.Equal(t, "article-1", received["contentId"])
}

func TestEmitterSwallowsListenerPanics(t *testing.T) {
	e := NewEmitter()
	called := false
	e.On(EventPaymentFailed, func(payload map[string]interface{}) {
		panic("boom")
	})
	e.On(EventPaymentFailed, func(payload map[string]interface{}) {
		called = true
	})

	require.NotPanics(t, func() {
		e.Emit(EventPaymentFailed, nil)
	})
	require.True(t, called, "later listeners still run after an earlier one panics")
}
