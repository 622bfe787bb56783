package ports

import (
	"context"

	"github.com/vulpemventures/hwsign/internal/core/domain"
)

// AppConfigProvider resolves which device app must be opened to sign for a
// given blockchain.
type AppConfigProvider interface {
	GetAppLaunchSpec(
		ctx context.Context, blockchain string,
	) (*domain.AppLaunchSpec, error)
}
