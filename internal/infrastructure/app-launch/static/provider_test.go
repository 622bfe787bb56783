package static_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/infrastructure/app-launch/static"
)

func TestProvider(t *testing.T) {
	provider := static.NewProvider(nil)

	spec, err := provider.GetAppLaunchSpec(context.Background(), "Polygon")
	require.NoError(t, err)
	require.Equal(t, "Ethereum", spec.ApplicationName)

	_, err = provider.GetAppLaunchSpec(context.Background(), "bitcoin")
	require.ErrorIs(t, err, static.ErrUnknownBlockchain)

	provider = static.NewProvider(map[string]domain.AppLaunchSpec{
		"Bitcoin": {ApplicationName: "Bitcoin"},
	})
	spec, err = provider.GetAppLaunchSpec(context.Background(), "bitcoin")
	require.NoError(t, err)
	require.Equal(t, "Bitcoin", spec.ApplicationName)
}
