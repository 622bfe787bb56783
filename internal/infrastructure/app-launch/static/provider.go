package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

var (
	ErrUnknownBlockchain = fmt.Errorf("unknown blockchain")

	// DefaultCatalog lists the EVM blockchains signed with the Ethereum app.
	DefaultCatalog = map[string]domain.AppLaunchSpec{
		"ethereum": {ApplicationName: "Ethereum"},
		"sepolia":  {ApplicationName: "Ethereum"},
		"polygon":  {ApplicationName: "Ethereum"},
		"arbitrum": {ApplicationName: "Ethereum"},
		"optimism": {ApplicationName: "Ethereum"},
		"base":     {ApplicationName: "Ethereum"},
		"bsc":      {ApplicationName: "Ethereum"},
	}
)

type provider struct {
	catalog map[string]domain.AppLaunchSpec
}

// NewProvider returns a provider serving the given catalog, or
// DefaultCatalog if nil. Blockchain names are case insensitive.
func NewProvider(catalog map[string]domain.AppLaunchSpec) ports.AppConfigProvider {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	normalized := make(map[string]domain.AppLaunchSpec, len(catalog))
	for name, spec := range catalog {
		normalized[strings.ToLower(name)] = spec
	}
	return &provider{normalized}
}

func (p *provider) GetAppLaunchSpec(
	_ context.Context, blockchain string,
) (*domain.AppLaunchSpec, error) {
	spec, ok := p.catalog[strings.ToLower(blockchain)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlockchain, blockchain)
	}
	return &spec, nil
}
