// Package attribution receives the one-time conversion payload delivered by
// the install-attribution SDK.
package attribution

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// ErrNoPayload is returned by Await when the SDK reported failure without
// an error of its own.
var ErrNoPayload = errors.New("attribution payload unavailable")

// Collector holds the SDK outcome. The first Deliver or Fail wins; later
// calls are ignored.
type Collector struct {
	installID string

	once    sync.Once
	ready   chan struct{}
	payload types.AttributionPayload
	err     error
}

// NewCollector creates a collector for the stable install identifier
func NewCollector(installID string) *Collector {
	return &Collector{
		installID: installID,
		ready:     make(chan struct{}),
	}
}

// InstallID returns the stable install identifier
func (c *Collector) InstallID() string {
	return c.installID
}

// Deliver records the conversion payload. It reports whether the call was
// the first outcome.
func (c *Collector) Deliver(payload map[string]interface{}) bool {
	return c.settle(types.AttributionPayload(payload).Clone(), nil)
}

// Fail records an SDK failure
func (c *Collector) Fail(err error) bool {
	if err == nil {
		err = ErrNoPayload
	}
	return c.settle(nil, err)
}

func (c *Collector) settle(payload types.AttributionPayload, err error) bool {
	first := false
	c.once.Do(func() {
		c.payload = payload
		c.err = err
		first = true
		close(c.ready)
	})
	return first
}

// Ready is closed once an outcome is recorded
func (c *Collector) Ready() <-chan struct{} {
	return c.ready
}

// Await blocks until an outcome is recorded or ctx is done. The returned
// payload is a copy.
func (c *Collector) Await(ctx context.Context) (types.AttributionPayload, error) {
	select {
	case <-c.ready:
		if c.err != nil {
			return nil, c.err
		}
		return c.payload.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
