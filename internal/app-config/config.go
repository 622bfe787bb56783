package appconfig

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/config"
	"github.com/vulpemventures/hwsign/internal/core/application"
	"github.com/vulpemventures/hwsign/internal/core/ports"
	"github.com/vulpemventures/hwsign/internal/infrastructure/app-launch/static"
	yaml_catalog "github.com/vulpemventures/hwsign/internal/infrastructure/app-launch/yaml"
	ethclient_broadcaster "github.com/vulpemventures/hwsign/internal/infrastructure/broadcaster/ethclient"
	"github.com/vulpemventures/hwsign/internal/infrastructure/device-action/bridge"
	"github.com/vulpemventures/hwsign/internal/infrastructure/device-action/emulator"
	"github.com/vulpemventures/hwsign/internal/infrastructure/device-action/usbwallet"
	inmemory_guard "github.com/vulpemventures/hwsign/internal/infrastructure/session-guard/inmemory"
	redis_guard "github.com/vulpemventures/hwsign/internal/infrastructure/session-guard/redis"
	dbbadger "github.com/vulpemventures/hwsign/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/hwsign/internal/infrastructure/storage/db/inmemory"
	postgresdb "github.com/vulpemventures/hwsign/internal/infrastructure/storage/db/postgres"
	kafka_sink "github.com/vulpemventures/hwsign/internal/infrastructure/tracking/kafka"
	logger_sink "github.com/vulpemventures/hwsign/internal/infrastructure/tracking/logger"
	multi_sink "github.com/vulpemventures/hwsign/internal/infrastructure/tracking/multi"
	prometheus_sink "github.com/vulpemventures/hwsign/internal/infrastructure/tracking/prometheus"
	redis_sink "github.com/vulpemventures/hwsign/internal/infrastructure/tracking/redis"
)

const dialTimeout = 15 * time.Second

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// AppConfig is the struct holding all configuration options for the signing
// service and the portable services used by it. This data structure acts also
// as a factory of those services.
// Public config args:
//   - RepoManagerType - (required) One of the supported repository manager types.
//   - RepoManagerConfig - (optional) The datadir for badger, a postgresdb.DbConfig for postgres.
//   - DeviceSourceType - (required) One of the supported device source types.
//   - DeviceSourceConfig - (optional) emulator.Opts for the emulator, the url for the bridge.
//   - AppCatalogPath - (optional) YAML catalog of device apps, the built-in one is used if empty.
//   - BroadcasterType - (optional) One of the supported broadcaster types, none by default.
//   - RpcUrl - (optional) Node endpoint, required by the ethclient broadcaster.
//   - TrackingSinks - (optional) List of sinks notified about signing flows.
//   - KafkaConfig, RedisConfig - (optional) Required when the related sink or guard is used.
//   - SessionGuardType - (optional) One of the supported session guard types, inmemory by default.
//   - SessionLockTTL, FlowRetention - (optional) Signing service timings.
//   - MetricsRegisterer - (optional) Registerer of the prometheus sink, the default one if nil.
type AppConfig struct {
	Version string
	Commit  string
	Date    string

	RepoManagerType    string
	RepoManagerConfig  interface{}
	DeviceSourceType   string
	DeviceSourceConfig interface{}
	AppCatalogPath     string
	BroadcasterType    string
	RpcUrl             string
	TrackingSinks      []string
	KafkaConfig        KafkaConfig
	RedisConfig        RedisConfig
	SessionGuardType   string
	SessionLockTTL     time.Duration
	FlowRetention      time.Duration
	MetricsRegisterer  prometheus.Registerer

	rm           ports.RepoManager
	source       ports.DeviceActionSource
	appProvider  ports.AppConfigProvider
	broadcaster  ports.Broadcaster
	trackingSink ports.TrackingSink
	sessionGuard ports.SessionGuard
	redisClient  redis.UniversalClient
	signingSvc   *application.SigningService
	closers      []func()
}

func (c *AppConfig) Validate() error {
	if len(c.RepoManagerType) == 0 {
		return fmt.Errorf("missing repo manager type")
	}
	if _, ok := config.SupportedDbs[c.RepoManagerType]; !ok {
		return fmt.Errorf(
			"repo manager type not supported, must be one of: %s",
			config.SupportedDbs,
		)
	}
	if len(c.DeviceSourceType) == 0 {
		return fmt.Errorf("missing device source type")
	}
	if _, ok := config.SupportedDeviceSources[c.DeviceSourceType]; !ok {
		return fmt.Errorf(
			"device source type not supported, must be one of: %s",
			config.SupportedDeviceSources,
		)
	}
	if c.BroadcasterType != "" {
		if _, ok := config.SupportedBroadcasters[c.BroadcasterType]; !ok {
			return fmt.Errorf(
				"broadcaster type not supported, must be one of: %s",
				config.SupportedBroadcasters,
			)
		}
	}
	for _, sink := range c.TrackingSinks {
		if _, ok := config.SupportedTrackingSinks[sink]; !ok {
			return fmt.Errorf(
				"tracking sink %s not supported, must be one of: %s",
				sink, config.SupportedTrackingSinks,
			)
		}
	}
	if c.SessionGuardType != "" {
		if _, ok := config.SupportedSessionGuards[c.SessionGuardType]; !ok {
			return fmt.Errorf(
				"session guard type not supported, must be one of: %s",
				config.SupportedSessionGuards,
			)
		}
	}

	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.deviceSource(); err != nil {
		return err
	}
	if _, err := c.appConfigProvider(); err != nil {
		return err
	}
	if _, err := c.txBroadcaster(); err != nil {
		return err
	}
	if _, err := c.tracking(); err != nil {
		return err
	}
	if _, err := c.guard(); err != nil {
		return err
	}
	return nil
}

func (c *AppConfig) RepoManager() ports.RepoManager {
	return c.rm
}

func (c *AppConfig) DeviceSource() ports.DeviceActionSource {
	return c.source
}

func (c *AppConfig) SigningService() *application.SigningService {
	return c.signingService()
}

func (c *AppConfig) BuildInfo() BuildInfo {
	version := "dev"
	if c.Version != "" {
		version = c.Version
	}
	commit := "none"
	if c.Commit != "" {
		commit = c.Commit
	}
	date := "unknown"
	if c.Date != "" {
		date = c.Date
	}
	return BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// Close releases every service built so far, in reverse order.
func (c *AppConfig) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func (c *AppConfig) repoManager() (ports.RepoManager, error) {
	if c.rm != nil {
		return c.rm, nil
	}

	switch c.RepoManagerType {
	case "inmemory":
		c.rm = inmemory.NewRepoManager()
	case "badger":
		if c.RepoManagerConfig == nil {
			return nil, fmt.Errorf("missing repo manager config args")
		}
		datadir, ok := c.RepoManagerConfig.(string)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be string")
		}
		rm, err := dbbadger.NewRepoManager(datadir, log.New())
		if err != nil {
			return nil, err
		}
		c.rm = rm
	case "postgres":
		dbConfig, ok := c.RepoManagerConfig.(postgresdb.DbConfig)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be postgresdb.DbConfig")
		}
		rm, err := postgresdb.NewRepoManager(dbConfig)
		if err != nil {
			return nil, err
		}
		c.rm = rm
	default:
		return nil, fmt.Errorf("unknown repo manager type")
	}

	c.addCloser(c.rm.Close)
	return c.rm, nil
}

func (c *AppConfig) deviceSource() (ports.DeviceActionSource, error) {
	if c.source != nil {
		return c.source, nil
	}

	var (
		source ports.DeviceActionSource
		err    error
	)
	switch c.DeviceSourceType {
	case "emulator":
		opts := emulator.Opts{}
		if c.DeviceSourceConfig != nil {
			o, ok := c.DeviceSourceConfig.(emulator.Opts)
			if !ok {
				return nil, fmt.Errorf(
					"invalid device source config type, must be emulator.Opts",
				)
			}
			opts = o
		}
		source, err = emulator.NewService(opts)
	case "bridge":
		url, ok := c.DeviceSourceConfig.(string)
		if !ok || url == "" {
			return nil, fmt.Errorf(
				"invalid device source config type, must be the bridge url",
			)
		}
		source, err = bridge.NewService(url)
	case "usb":
		source, err = usbwallet.NewService()
	default:
		return nil, fmt.Errorf("unknown device source type")
	}
	if err != nil {
		return nil, err
	}

	c.source = source
	if closer, ok := source.(interface{ Close() }); ok {
		c.addCloser(closer.Close)
	}
	return c.source, nil
}

func (c *AppConfig) appConfigProvider() (ports.AppConfigProvider, error) {
	if c.appProvider != nil {
		return c.appProvider, nil
	}

	if c.AppCatalogPath == "" {
		c.appProvider = static.NewProvider(nil)
		return c.appProvider, nil
	}
	provider, err := yaml_catalog.NewProvider(c.AppCatalogPath)
	if err != nil {
		return nil, err
	}
	c.appProvider = provider
	return c.appProvider, nil
}

func (c *AppConfig) txBroadcaster() (ports.Broadcaster, error) {
	if c.broadcaster != nil {
		return c.broadcaster, nil
	}

	switch c.BroadcasterType {
	case "", "none":
		return nil, nil
	case "ethclient":
		if c.RpcUrl == "" {
			return nil, fmt.Errorf("missing rpc url")
		}
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		broadcaster, err := ethclient_broadcaster.NewService(ctx, c.RpcUrl)
		if err != nil {
			return nil, err
		}
		c.broadcaster = broadcaster
		if closer, ok := broadcaster.(interface{ Close() }); ok {
			c.addCloser(closer.Close)
		}
		return c.broadcaster, nil
	default:
		return nil, fmt.Errorf("unknown broadcaster type")
	}
}

func (c *AppConfig) tracking() (ports.TrackingSink, error) {
	if c.trackingSink != nil || len(c.TrackingSinks) == 0 {
		return c.trackingSink, nil
	}

	sinks := make([]ports.TrackingSink, 0, len(c.TrackingSinks))
	for _, name := range c.TrackingSinks {
		switch strings.ToLower(name) {
		case "log":
			sinks = append(sinks, logger_sink.NewSink(log.StandardLogger()))
		case "prometheus":
			reg := c.MetricsRegisterer
			if reg == nil {
				reg = prometheus.DefaultRegisterer
			}
			sinks = append(sinks, prometheus_sink.NewSink(reg))
		case "kafka":
			sink, err := kafka_sink.NewSink(c.KafkaConfig.Brokers, c.KafkaConfig.Topic)
			if err != nil {
				return nil, err
			}
			if closer, ok := sink.(io.Closer); ok {
				c.addCloser(func() {
					if err := closer.Close(); err != nil {
						log.WithError(err).Warn("app config: failed to close kafka sink")
					}
				})
			}
			sinks = append(sinks, sink)
		case "redis":
			client, err := c.redis()
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, redis_sink.NewSink(client, c.RedisConfig.Stream))
		default:
			return nil, fmt.Errorf("unknown tracking sink %s", name)
		}
	}

	if len(sinks) == 1 {
		c.trackingSink = sinks[0]
	} else {
		c.trackingSink = multi_sink.NewSink(sinks...)
	}
	return c.trackingSink, nil
}

func (c *AppConfig) guard() (ports.SessionGuard, error) {
	if c.sessionGuard != nil {
		return c.sessionGuard, nil
	}

	switch c.SessionGuardType {
	case "", "inmemory":
		c.sessionGuard = inmemory_guard.NewGuard()
	case "redis":
		client, err := c.redis()
		if err != nil {
			return nil, err
		}
		c.sessionGuard = redis_guard.NewGuard(client)
	default:
		return nil, fmt.Errorf("unknown session guard type")
	}
	return c.sessionGuard, nil
}

// redis returns the client shared by the redis sink and session guard.
func (c *AppConfig) redis() (redis.UniversalClient, error) {
	if c.redisClient != nil {
		return c.redisClient, nil
	}
	if c.RedisConfig.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{c.RedisConfig.Addr},
		Password: c.RedisConfig.Password,
		DB:       c.RedisConfig.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c.redisClient = client
	c.addCloser(func() { client.Close() })
	return c.redisClient, nil
}

func (c *AppConfig) signingService() *application.SigningService {
	if c.signingSvc != nil {
		return c.signingSvc
	}

	rm, _ := c.repoManager()
	source, _ := c.deviceSource()
	appProvider, _ := c.appConfigProvider()
	broadcaster, _ := c.txBroadcaster()
	sink, _ := c.tracking()
	guard, _ := c.guard()
	c.signingSvc = application.NewSigningService(
		source, appProvider, broadcaster, sink, guard, rm,
		c.SessionLockTTL, c.FlowRetention,
	)
	return c.signingSvc
}

func (c *AppConfig) addCloser(fn func()) {
	c.closers = append(c.closers, fn)
}
