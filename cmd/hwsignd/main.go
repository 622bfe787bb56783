package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	appconfig "github.com/vulpemventures/hwsign/internal/app-config"
	"github.com/vulpemventures/hwsign/internal/config"
	"github.com/vulpemventures/hwsign/internal/infrastructure/device-action/emulator"
	postgresdb "github.com/vulpemventures/hwsign/internal/infrastructure/storage/db/postgres"
	"github.com/vulpemventures/hwsign/internal/interfaces"
	websocket_interface "github.com/vulpemventures/hwsign/internal/interfaces/websocket"
	"github.com/vulpemventures/hwsign/pkg/profiler"
)

var (
	// Build info.
	version string
	commit  string
	date    string

	// Config from env vars.
	dbType           = config.GetString(config.DatabaseTypeKey)
	logLevel         = config.GetInt(config.LogLevelKey)
	datadir          = config.GetDatadir()
	port             = config.GetInt(config.PortKey)
	profilerPort     = config.GetInt(config.ProfilerPortKey)
	noProfiler       = config.GetBool(config.NoProfilerKey)
	dbDir            = filepath.Join(datadir, config.DbLocation)
	profilerDir      = filepath.Join(datadir, config.ProfilerLocation)
	statsInterval    = time.Duration(config.GetInt(config.StatsIntervalKey)) * time.Second
	deviceSourceType = config.GetString(config.DeviceSourceTypeKey)
	bridgeUrl        = config.GetString(config.BridgeUrlKey)
	emulatorMnemonic = config.GetString(config.EmulatorMnemonicKey)
	blindSigning     = config.GetBool(config.EmulatorBlindSigningKey)
	appCatalogPath   = config.GetString(config.AppCatalogPathKey)
	broadcasterType  = config.GetString(config.BroadcasterTypeKey)
	rpcUrl           = config.GetString(config.RpcUrlKey)
	trackingSinks    = config.GetTrackingSinks()
	kafkaBrokers     = config.GetList(config.KafkaBrokersKey)
	kafkaTopic       = config.GetString(config.KafkaTopicKey)
	redisAddr        = config.GetString(config.RedisAddrKey)
	redisPassword    = config.GetString(config.RedisPasswordKey)
	redisDb          = config.GetInt(config.RedisDbKey)
	redisStream      = config.GetString(config.RedisStreamKey)
	sessionGuardType = config.GetString(config.SessionGuardTypeKey)
	sessionLockTTL   = time.Duration(config.GetInt(config.SessionLockTTLKey)) * time.Second
	rateLimitRps     = config.GetFloat64(config.RateLimitRpsKey)
	rateLimitBurst   = config.GetInt(config.RateLimitBurstKey)
	dbUser           = config.GetString(config.DbUserKey)
	dbPassword       = config.GetString(config.DbPassKey)
	dbHost           = config.GetString(config.DbHostKey)
	dbPort           = config.GetInt(config.DbPortKey)
	dbName           = config.GetString(config.DbNameKey)
	migrationPath    = config.GetString(config.DbMigrationPath)
)

func main() {
	log.SetLevel(log.Level(logLevel))

	if profilerEnabled := !noProfiler; profilerEnabled {
		profilerSvc, err := profiler.NewService(profiler.ServiceOpts{
			Port:          profilerPort,
			StatsInterval: statsInterval,
			Datadir:       profilerDir,
		})
		if err != nil {
			log.WithError(err).Fatal("profiler: error while starting")
		}

		profilerSvc.Start()
		defer func() {
			profilerSvc.Stop()
		}()
	}

	var repoManagerConfig interface{} = dbDir
	if dbType == "postgres" {
		repoManagerConfig = postgresdb.DbConfig{
			DbUser:             dbUser,
			DbPassword:         dbPassword,
			DbHost:             dbHost,
			DbPort:             dbPort,
			DbName:             dbName,
			MigrationSourceURL: migrationPath,
		}
	}

	var deviceSourceConfig interface{}
	switch deviceSourceType {
	case "emulator":
		opts := emulator.Opts{BlindSigningEnabled: blindSigning}
		if emulatorMnemonic != "" {
			opts.Mnemonic = strings.Fields(emulatorMnemonic)
		}
		deviceSourceConfig = opts
	case "bridge":
		deviceSourceConfig = bridgeUrl
	}

	serviceCfg := websocket_interface.ServiceConfig{
		Port:           port,
		RateLimitRPS:   rateLimitRps,
		RateLimitBurst: rateLimitBurst,
	}
	appCfg := &appconfig.AppConfig{
		Version:            version,
		Commit:             commit,
		Date:               date,
		RepoManagerType:    dbType,
		RepoManagerConfig:  repoManagerConfig,
		DeviceSourceType:   deviceSourceType,
		DeviceSourceConfig: deviceSourceConfig,
		AppCatalogPath:     appCatalogPath,
		BroadcasterType:    broadcasterType,
		RpcUrl:             rpcUrl,
		TrackingSinks:      trackingSinks,
		KafkaConfig: appconfig.KafkaConfig{
			Brokers: kafkaBrokers,
			Topic:   kafkaTopic,
		},
		RedisConfig: appconfig.RedisConfig{
			Addr:     redisAddr,
			Password: redisPassword,
			DB:       redisDb,
			Stream:   redisStream,
		},
		SessionGuardType: sessionGuardType,
		SessionLockTTL:   sessionLockTTL,
	}

	serviceManager, err := interfaces.NewWebsocketServiceManager(serviceCfg, appCfg)
	if err != nil {
		log.WithError(err).Fatal("service: error while initializing")
	}
	defer func() {
		serviceManager.Service.Stop()
	}()

	info := appCfg.BuildInfo()
	log.Infof(
		"hwsignd %s (commit %s, built %s) using %s device source",
		info.Version, info.Commit, info.Date, deviceSourceType,
	)

	if err := serviceManager.Service.Start(); err != nil {
		log.WithError(err).Fatal("service: error while starting")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
}
