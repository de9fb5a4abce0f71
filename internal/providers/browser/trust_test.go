package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustPolicyDecide(t *testing.T) {
	tests := []struct {
		policy    TrustPolicy
		challenge ChallengeKind
		expected  TrustDecision
	}{
		{TrustSystem, ChallengeServerTrust, TrustDefault},
		{TrustSystem, ChallengeOther, TrustDefault},
		{TrustAcceptAll, ChallengeServerTrust, TrustAcceptPresented},
		{TrustAcceptAll, ChallengeOther, TrustDefault},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("%s/%d", tt.policy, tt.challenge)
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.Decide(Challenge{Kind: tt.challenge, Host: "example.com"}))
		})
	}
}

func TestHeadlessServerTrust(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<title>Secure</title>")
	}))
	t.Cleanup(srv.Close)

	t.Run("system policy rejects an untrusted chain", func(t *testing.T) {
		h := newHeadlessManager(t, Options{Trust: TrustSystem}, 0)
		_, err := h.manager.OpenPrimary(context.Background(), srv.URL)
		require.NoError(t, err)

		s := headlessPrimary(t, h)
		assert.Empty(t, s.CurrentAddress())
	})

	t.Run("accept-all policy loads the page", func(t *testing.T) {
		h := newHeadlessManager(t, Options{Trust: TrustAcceptAll}, 0)
		_, err := h.manager.OpenPrimary(context.Background(), srv.URL)
		require.NoError(t, err)

		s := headlessPrimary(t, h)
		assert.Equal(t, "Secure", s.Title())
	})
}
