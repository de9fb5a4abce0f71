package browser

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/config"
)

// TrustPolicy selects how server-trust challenges are answered
type TrustPolicy string

const (
	// TrustSystem applies default handling to every challenge
	TrustSystem TrustPolicy = config.TrustSystem
	// TrustAcceptAll accepts any presented server trust
	TrustAcceptAll TrustPolicy = config.TrustAcceptAll
)

// ChallengeKind identifies an authentication challenge
type ChallengeKind int

const (
	ChallengeServerTrust ChallengeKind = iota
	ChallengeOther
)

// Challenge is an authentication challenge raised during a load
type Challenge struct {
	Kind ChallengeKind
	Host string
}

// TrustDecision is how a challenge is answered. It is a policy branch, not
// an error.
type TrustDecision int

const (
	TrustDefault TrustDecision = iota
	TrustAcceptPresented
)

// Decide answers a challenge under the policy
func (p TrustPolicy) Decide(ch Challenge) TrustDecision {
	if p == TrustAcceptAll && ch.Kind == ChallengeServerTrust {
		return TrustAcceptPresented
	}
	return TrustDefault
}

// TLSConfig builds a client TLS config that raises a server-trust challenge
// for every connection and verifies the chain unless the delegate accepts
// the presented trust.
func TLSConfig(delegate func(Challenge) TrustDecision) *tls.Config {
	return &tls.Config{
		// Verification happens in VerifyConnection
		InsecureSkipVerify: true, //nolint:gosec
		VerifyConnection: func(cs tls.ConnectionState) error {
			if delegate(Challenge{Kind: ChallengeServerTrust, Host: cs.ServerName}) == TrustAcceptPresented {
				return nil
			}
			return verifyChain(cs)
		},
	}
}

func verifyChain(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return errors.New("no peer certificates")
	}
	intermediates := x509.NewCertPool()
	for _, cert := range cs.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
		DNSName:       cs.ServerName,
		Intermediates: intermediates,
	})
	if err != nil {
		return fmt.Errorf("server trust rejected: %w", err)
	}
	return nil
}
