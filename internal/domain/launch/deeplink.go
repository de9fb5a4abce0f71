package launch

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// ExtractDeepLink reads the target address from a push payload. The address
// sits under "url" or under "data.url".
func ExtractDeepLink(payload map[string]interface{}) (string, bool) {
	if link, ok := payload["url"].(string); ok && strings.TrimSpace(link) != "" {
		return strings.TrimSpace(link), true
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if link, ok := data["url"].(string); ok && strings.TrimSpace(link) != "" {
			return strings.TrimSpace(link), true
		}
	}
	return "", false
}

// DeepLinkReceived persists addr as the pending deep link. It is consumed
// by the next resolution pass, never by one already in flight. Subscribers
// hear about it after the settle delay.
func (r *Resolver) DeepLinkReceived(ctx context.Context, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	if _, err := r.store.Update(ctx, func(st *types.LaunchState) error {
		st.PendingDeepLink = addr
		return nil
	}); err != nil {
		return err
	}
	r.logger.Info("Deep link stored", zap.String("address", addr))
	return r.Push(Event{Kind: EventDeepLink, Value: addr})
}

// PushTokenRefreshed persists token so the next config request carries it
func (r *Resolver) PushTokenRefreshed(ctx context.Context, token string) error {
	if _, err := r.store.Update(ctx, func(st *types.LaunchState) error {
		st.PushToken = token
		return nil
	}); err != nil {
		return err
	}
	return r.Push(Event{Kind: EventPushToken, Value: token})
}

func (r *Resolver) scheduleDeepLinkNotice(addr string) {
	time.AfterFunc(r.opts.DeepLinkSettle, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.publishLocked(Update{Kind: UpdateDeepLinkStored, DeepLink: addr})
	})
}
