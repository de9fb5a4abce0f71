/*
Package resilience provides the circuit breaker that guards outbound calls to
the remote configuration and attribution endpoints.

A breaker moves between three states:

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[MaxRequests ok]-> Closed
	                                               |
	                                           [failure]
	                                               v
	                                             Open

While open, Execute and Call fail fast with ErrCircuitOpen so a dead endpoint
cannot stall the launch sequence past its own timeout. OnStateChange is the
hook the HTTP client uses to log transitions.

	breaker := resilience.New("remote", resilience.Settings{Timeout: 30 * time.Second})
	cfg, err := resilience.Call(breaker, func() (*Config, error) {
		return fetch(ctx)
	})
*/
package resilience
