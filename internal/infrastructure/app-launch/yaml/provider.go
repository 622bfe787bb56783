package yaml

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownBlockchain = fmt.Errorf("unknown blockchain")
	ErrMissingAppName    = fmt.Errorf("missing application name")
)

// catalogFile is the format of the app catalog file:
//
//	blockchains:
//	  ethereum:
//	    application: Ethereum
//	  my-l2:
//	    application: MyL2
//	    dependencies: [Ethereum]
type catalogFile struct {
	Blockchains map[string]domain.AppLaunchSpec `yaml:"blockchains"`
}

type provider struct {
	filename string
	catalog  map[string]domain.AppLaunchSpec
}

// NewProvider loads the catalog from the given YAML file.
func NewProvider(filename string) (ports.AppConfigProvider, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read app catalog: %w", err)
	}
	catalog, err := parseCatalog(buf)
	if err != nil {
		return nil, fmt.Errorf("invalid app catalog %s: %w", filename, err)
	}

	log.Debugf("app catalog: loaded %d blockchains from %s", len(catalog), filename)
	return &provider{filename, catalog}, nil
}

func (p *provider) GetAppLaunchSpec(
	_ context.Context, blockchain string,
) (*domain.AppLaunchSpec, error) {
	spec, ok := p.catalog[strings.ToLower(blockchain)]
	if !ok {
		return nil, fmt.Errorf(
			"%w: %s not found in %s", ErrUnknownBlockchain, blockchain, p.filename,
		)
	}
	return &spec, nil
}

func parseCatalog(buf []byte) (map[string]domain.AppLaunchSpec, error) {
	var file catalogFile
	if err := yaml.Unmarshal(buf, &file); err != nil {
		return nil, err
	}

	catalog := make(map[string]domain.AppLaunchSpec, len(file.Blockchains))
	for name, spec := range file.Blockchains {
		if strings.TrimSpace(spec.ApplicationName) == "" {
			return nil, fmt.Errorf("%w for blockchain %s", ErrMissingAppName, name)
		}
		catalog[strings.ToLower(name)] = spec
	}
	return catalog, nil
}
