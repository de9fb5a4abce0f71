package attribution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/eggprofit/internal/providers/storage"
)

func TestInstallIDStable(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()

	first, err := InstallID(ctx, backend, "")
	require.NoError(t, err)
	assert.Len(t, first, 26)

	second, err := InstallID(ctx, backend, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInstallIDConfiguredWins(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()

	_, err := InstallID(ctx, backend, "")
	require.NoError(t, err)

	got, err := InstallID(ctx, backend, " 1700000000000-abc ")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-abc", got)

	// The configured value is what later launches reuse
	got, err = InstallID(ctx, backend, "")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-abc", got)
}

func TestInstallIDClosedBackend(t *testing.T) {
	backend := storage.NewMemory()
	require.NoError(t, backend.Close())

	_, err := InstallID(context.Background(), backend, "")
	assert.ErrorIs(t, err, storage.ErrClosed)
}
