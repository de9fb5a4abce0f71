// Package client provides the outbound HTTP client shared by the remote
// config client, the connectivity prober and the headless browsing surface.
//
// Built on go-resty/resty over the pooled transport from
// hashicorp/go-retryablehttp:
//   - single attempt per request, no internal retry
//   - circuit breaker that fails fast with ErrUnavailable
//   - optional token-bucket rate limiting
//   - redirects returned to the caller unless FollowRedirects is set
//
// Example Usage:
//
//	c := client.NewClient(client.Options{Timeout: 10 * time.Second})
//	resp, err := c.Get(ctx, endpoint, func(r *resty.Request) {
//		r.SetQueryParam("device_id", id)
//	})
package client
