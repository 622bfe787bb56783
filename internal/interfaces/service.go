package interfaces

import (
	"fmt"

	appconfig "github.com/vulpemventures/hwsign/internal/app-config"
	websocket_interface "github.com/vulpemventures/hwsign/internal/interfaces/websocket"
)

// Service interface defines the methods that every kind of interface, whether
// WebSocket, REST, or whatever must be compliant with.
type Service interface {
	Start() error
	Stop()
}

type ServiceManager struct {
	Service
}

func NewWebsocketServiceManager(
	config websocket_interface.ServiceConfig, appConfig *appconfig.AppConfig,
) (*ServiceManager, error) {
	svc, err := websocket_interface.NewService(config, appConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initalize websocket service: %s", err)
	}
	return &ServiceManager{svc}, nil
}
