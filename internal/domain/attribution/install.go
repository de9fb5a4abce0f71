package attribution

import (
	"context"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/eggprofit/internal/providers/storage"
	"github.com/GriffinCanCode/eggprofit/internal/shared/id"
)

// KeyInstallID is the backend key holding the stable install identifier.
// It lives beside the launch state but survives a state reset.
const KeyInstallID = "install_id"

// InstallID returns the stable install identifier. A non-empty configured
// value wins and is persisted; otherwise the stored value is reused, or a
// new one is generated on first launch.
func InstallID(ctx context.Context, backend storage.Backend, configured string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		if err := backend.Set(ctx, KeyInstallID, configured); err != nil {
			return "", fmt.Errorf("persist install id: %w", err)
		}
		return configured, nil
	}

	stored, ok, err := backend.Get(ctx, KeyInstallID)
	if err != nil {
		return "", fmt.Errorf("read install id: %w", err)
	}
	if ok && stored != "" {
		return stored, nil
	}

	generated := id.Default().Generate().String()
	if err := backend.Set(ctx, KeyInstallID, generated); err != nil {
		return "", fmt.Errorf("persist install id: %w", err)
	}
	return generated, nil
}
