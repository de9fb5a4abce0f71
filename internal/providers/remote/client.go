// Package remote performs the two network calls launch resolution needs:
// the organic-install re-check and the session-config fetch.
//
// Both are single attempts with a fixed timeout. Retry and fallback belong
// to the caller.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/eggprofit/internal/providers/http/client"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// Call names used in errors and metrics
const (
	CallOrganic = "organic_check"
	CallConfig  = "session_config"
)

// Config holds endpoints and install metadata
type Config struct {
	ConfigEndpoint      string
	AttributionEndpoint string
	DevKey              string
	BundleID            string
	OSTag               string
	StoreID             string
	Locale              string
	PushProjectID       string
	OrganicTimeout      time.Duration
	ConfigTimeout       time.Duration
}

// Install carries the per-install values merged into the config request
type Install struct {
	ID        string
	PushToken string
}

// Client talks to the attribution-verification and session-config endpoints
type Client struct {
	http    *client.Client
	cfg     Config
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// New creates a remote client over the shared HTTP client
func New(httpClient *client.Client, cfg Config, metrics *monitoring.Metrics, logger *logging.Logger) *Client {
	if cfg.OrganicTimeout <= 0 {
		cfg.OrganicTimeout = 10 * time.Second
	}
	if cfg.ConfigTimeout <= 0 {
		cfg.ConfigTimeout = 30 * time.Second
	}
	cfg.Locale = NormalizeLocale(cfg.Locale)
	return &Client{
		http:    httpClient,
		cfg:     cfg,
		metrics: metrics,
		logger:  logging.OrNop(logger).Named("remote"),
	}
}

// VerifyOrganicInstall re-queries attribution for installID. Any response
// other than a 200 with a JSON object is an error.
func (c *Client) VerifyOrganicInstall(ctx context.Context, installID string) (types.AttributionPayload, error) {
	timer := monitoring.NewTimer(c.metrics, CallOrganic)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OrganicTimeout)
	defer cancel()

	resp, err := c.http.Get(ctx, c.cfg.AttributionEndpoint, func(r *resty.Request) {
		r.SetQueryParam("devkey", c.cfg.DevKey).
			SetQueryParam("device_id", installID).
			SetHeader("Accept", "application/json")
	})
	if err != nil {
		return nil, c.fail(timer, &FetchError{Call: CallOrganic, Kind: KindTransport, Err: err})
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.fail(timer, &FetchError{Call: CallOrganic, Kind: KindStatus, StatusCode: resp.StatusCode()})
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, c.fail(timer, &FetchError{Call: CallOrganic, Kind: KindMalformed, Err: err})
	}
	if payload == nil {
		return nil, c.fail(timer, &FetchError{Call: CallOrganic, Kind: KindMalformed, Err: errors.New("body is not an object")})
	}

	timer.Stop("ok")
	return types.AttributionPayload(payload), nil
}

// FetchSessionConfig posts the attribution payload merged with install
// metadata. Metadata keys win over payload keys of the same name.
func (c *Client) FetchSessionConfig(ctx context.Context, payload types.AttributionPayload, install Install) (types.SessionConfig, error) {
	timer := monitoring.NewTimer(c.metrics, CallConfig)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfigTimeout)
	defer cancel()

	body := c.RequestBody(payload, install)
	resp, err := c.http.Post(ctx, c.cfg.ConfigEndpoint, func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	})
	if err != nil {
		return types.SessionConfig{}, c.fail(timer, &FetchError{Call: CallConfig, Kind: KindTransport, Err: err})
	}
	if resp.StatusCode() != http.StatusOK {
		return types.SessionConfig{}, c.fail(timer, &FetchError{Call: CallConfig, Kind: KindStatus, StatusCode: resp.StatusCode()})
	}

	cfg, err := DecodeSessionConfig(resp.Body())
	if err != nil {
		return types.SessionConfig{}, c.fail(timer, &FetchError{Call: CallConfig, Kind: KindMalformed, Err: err})
	}

	timer.Stop("ok")
	return cfg, nil
}

// RequestBody builds the session-config request body
func (c *Client) RequestBody(payload types.AttributionPayload, install Install) map[string]interface{} {
	meta := map[string]interface{}{
		"af_id":               install.ID,
		"bundle_id":           c.cfg.BundleID,
		"os":                  c.cfg.OSTag,
		"store_id":            c.cfg.StoreID,
		"locale":              c.cfg.Locale,
		"push_token":          nullable(install.PushToken),
		"firebase_project_id": nullable(c.cfg.PushProjectID),
	}
	return payload.Merge(meta)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (c *Client) fail(timer *monitoring.Timer, err *FetchError) error {
	timer.Stop(string(err.Kind))
	c.logger.Warn("Remote call failed",
		zap.String("call", err.Call),
		zap.String("kind", string(err.Kind)),
		zap.Error(err))
	return err
}

type sessionConfigWire struct {
	OK      *bool    `json:"ok"`
	URL     *string  `json:"url"`
	Expires *float64 `json:"expires"`
}

// DecodeSessionConfig parses a reply and enforces that ok implies an address
func DecodeSessionConfig(data []byte) (types.SessionConfig, error) {
	var wire sessionConfigWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return types.SessionConfig{}, err
	}
	if wire.OK == nil {
		return types.SessionConfig{}, errors.New("missing ok field")
	}
	if !*wire.OK {
		return types.SessionConfig{OK: false}, nil
	}

	if wire.URL == nil || strings.TrimSpace(*wire.URL) == "" {
		return types.SessionConfig{}, errors.New("ok reply without url")
	}
	address := strings.TrimSpace(*wire.URL)
	u, err := url.Parse(address)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return types.SessionConfig{}, fmt.Errorf("invalid url %q", address)
	}

	out := types.SessionConfig{OK: true, Address: address}
	if wire.Expires != nil {
		sec := int64(*wire.Expires)
		nsec := int64((*wire.Expires - float64(sec)) * float64(time.Second))
		exp := time.Unix(sec, nsec).UTC()
		out.ExpiresAt = &exp
	}
	return out, nil
}

// NormalizeLocale keeps the two-letter language prefix, upper-cased
func NormalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if len(locale) < 2 {
		return "EN"
	}
	return strings.ToUpper(locale[:2])
}
