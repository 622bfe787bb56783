package ports

import (
	"context"

	"github.com/vulpemventures/hwsign/internal/core/domain"
)

// Broadcaster submits a signed transaction to the network.
type Broadcaster interface {
	Broadcast(
		ctx context.Context, args domain.BroadcastArgs,
	) (*domain.BroadcastResult, error)
}
