package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the key to customize the hwsignd datadir.
	DatadirKey = "DATADIR"
	// PortKey is the key to customize the port the daemon listens to.
	PortKey = "PORT"
	// LogLevelKey is the key to customize the log level to catch more specific
	// or more high level logs.
	LogLevelKey = "LOG_LEVEL"
	// NoProfilerKey is the key to disable Prometheus profiling.
	NoProfilerKey = "NO_PROFILER"
	// ProfilerPortKey is the key to customize the port where the profiler will
	// be listening to.
	ProfilerPortKey = "PROFILER_PORT"
	// StatsIntervalKey is the key to customize the interval for the profiler
	// to gather profiling stats.
	StatsIntervalKey = "STATS_INTERVAL"
	// DatabaseTypeKey is the key to customize the type of database used for
	// the signing history.
	DatabaseTypeKey = "DATABASE_TYPE"
	// DbUserKey is user used to connect to db
	DbUserKey = "DB_USER"
	// DbPassKey is password used to connect to db
	DbPassKey = "DB_PASS"
	// DbHostKey is host where db is installed
	DbHostKey = "DB_HOST"
	// DbPortKey is port on which db is listening
	DbPortKey = "DB_PORT"
	// DbNameKey is name of database
	DbNameKey = "DB_NAME"
	// DbMigrationPath is the path to migration files
	DbMigrationPath = "DB_MIGRATION_PATH"
	// DeviceSourceTypeKey is the key to choose how the daemon talks to the
	// signing device.
	DeviceSourceTypeKey = "DEVICE_SOURCE_TYPE"
	// BridgeUrlKey is the WebSocket url of the device bridge, used with the
	// bridge device source.
	BridgeUrlKey = "BRIDGE_URL"
	// EmulatorMnemonicKey is the seed of the emulated device. Should be used
	// only for testing purposes.
	EmulatorMnemonicKey = "EMULATOR_MNEMONIC"
	// EmulatorBlindSigningKey enables blind signing on the emulated device.
	EmulatorBlindSigningKey = "EMULATOR_BLIND_SIGNING"
	// AppCatalogPathKey is the path of a YAML file mapping blockchains to
	// device apps. The built-in catalog is used if not set.
	AppCatalogPathKey = "APP_CATALOG_PATH"
	// BroadcasterTypeKey is the key to choose whether and how signed
	// transactions are broadcast.
	BroadcasterTypeKey = "BROADCASTER_TYPE"
	// RpcUrlKey is the JSON-RPC endpoint of the node used for broadcasting.
	RpcUrlKey = "RPC_URL"
	// TrackingSinksKey is the comma separated list of sinks notified about
	// signing flows.
	TrackingSinksKey = "TRACKING_SINKS"
	// KafkaBrokersKey is the list of kafka brokers used by the kafka sink.
	KafkaBrokersKey = "KAFKA_BROKERS"
	// KafkaTopicKey is the topic the kafka sink publishes to.
	KafkaTopicKey = "KAFKA_TOPIC"
	// RedisAddrKey is the address of the redis server used by the redis
	// sink and session guard.
	RedisAddrKey = "REDIS_ADDR"
	// RedisPasswordKey is the password of the redis server.
	RedisPasswordKey = "REDIS_PASSWORD"
	// RedisDbKey is the redis logical database.
	RedisDbKey = "REDIS_DB"
	// RedisStreamKey is the stream the redis sink appends to.
	RedisStreamKey = "REDIS_STREAM"
	// SessionGuardTypeKey is the key to choose where device session locks
	// are held.
	SessionGuardTypeKey = "SESSION_GUARD_TYPE"
	// SessionLockTTLKey is the max duration of a device session lock.
	SessionLockTTLKey = "SESSION_LOCK_TTL_IN_SECONDS"
	// RateLimitRpsKey is the number of requests per second accepted from a
	// single client.
	RateLimitRpsKey = "RATE_LIMIT_RPS"
	// RateLimitBurstKey is the burst of requests accepted from a single
	// client.
	RateLimitBurstKey = "RATE_LIMIT_BURST"

	// DbLocation is the folder inside the datadir containing db files.
	DbLocation = "db"
	// ProfilerLocation is the folder inside the datadir containing profiler
	// stats files.
	ProfilerLocation = "stats"
)

var (
	vip *viper.Viper

	defaultDatadir          = btcutil.AppDataDir("hwsignd", false)
	defaultDbType           = "badger"
	defaultDeviceSourceType = "emulator"
	defaultBroadcasterType  = "none"
	defaultSessionGuardType = "inmemory"
	defaultPort             = 18100
	defaultLogLevel         = 4
	defaultProfilerPort     = 18101
	defaultStatsInterval    = 600 // 10 minutes
	defaultSessionLockTTL   = 300 // 5 minutes
	defaultTrackingSinks    = "log"
	defaultKafkaTopic       = "hwsign.tracking"
	defaultRedisStream      = "hwsign:tracking"
	defaultRateLimitRps     = 5
	defaultRateLimitBurst   = 10

	SupportedDbs = supportedType{
		"badger":   {},
		"inmemory": {},
		"postgres": {},
	}
	SupportedDeviceSources = supportedType{
		"emulator": {},
		"bridge":   {},
		"usb":      {},
	}
	SupportedBroadcasters = supportedType{
		"none":      {},
		"ethclient": {},
	}
	SupportedTrackingSinks = supportedType{
		"log":        {},
		"prometheus": {},
		"kafka":      {},
		"redis":      {},
	}
	SupportedSessionGuards = supportedType{
		"inmemory": {},
		"redis":    {},
	}
)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("HWSIGN")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(DatabaseTypeKey, defaultDbType)
	vip.SetDefault(PortKey, defaultPort)
	vip.SetDefault(LogLevelKey, defaultLogLevel)
	vip.SetDefault(NoProfilerKey, false)
	vip.SetDefault(ProfilerPortKey, defaultProfilerPort)
	vip.SetDefault(StatsIntervalKey, defaultStatsInterval)
	vip.SetDefault(DbUserKey, "root")
	vip.SetDefault(DbPassKey, "secret")
	vip.SetDefault(DbHostKey, "127.0.0.1")
	vip.SetDefault(DbPortKey, 5432)
	vip.SetDefault(DbNameKey, "hwsignd-db")
	vip.SetDefault(DbMigrationPath, "file://internal/infrastructure/storage/db/postgres/migration")
	vip.SetDefault(DeviceSourceTypeKey, defaultDeviceSourceType)
	vip.SetDefault(EmulatorBlindSigningKey, false)
	vip.SetDefault(BroadcasterTypeKey, defaultBroadcasterType)
	vip.SetDefault(TrackingSinksKey, defaultTrackingSinks)
	vip.SetDefault(KafkaTopicKey, defaultKafkaTopic)
	vip.SetDefault(RedisAddrKey, "127.0.0.1:6379")
	vip.SetDefault(RedisDbKey, 0)
	vip.SetDefault(RedisStreamKey, defaultRedisStream)
	vip.SetDefault(SessionGuardTypeKey, defaultSessionGuardType)
	vip.SetDefault(SessionLockTTLKey, defaultSessionLockTTL)
	vip.SetDefault(RateLimitRpsKey, defaultRateLimitRps)
	vip.SetDefault(RateLimitBurstKey, defaultRateLimitBurst)

	if err := validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	if err := initDatadir(); err != nil {
		log.Fatalf("config: error while creating datadir: %s", err)
	}
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	dbType := GetString(DatabaseTypeKey)
	if _, ok := SupportedDbs[dbType]; !ok {
		return fmt.Errorf("unsupported database type, must be one of %s", SupportedDbs)
	}

	sourceType := GetString(DeviceSourceTypeKey)
	if _, ok := SupportedDeviceSources[sourceType]; !ok {
		return fmt.Errorf(
			"unsupported device source type, must be one of %s",
			SupportedDeviceSources,
		)
	}
	if sourceType == "bridge" && GetString(BridgeUrlKey) == "" {
		return fmt.Errorf("bridge url must not be null")
	}

	broadcasterType := GetString(BroadcasterTypeKey)
	if _, ok := SupportedBroadcasters[broadcasterType]; !ok {
		return fmt.Errorf(
			"unsupported broadcaster type, must be one of %s", SupportedBroadcasters,
		)
	}
	if broadcasterType == "ethclient" && GetString(RpcUrlKey) == "" {
		return fmt.Errorf("rpc url must not be null")
	}

	for _, sink := range GetTrackingSinks() {
		if _, ok := SupportedTrackingSinks[sink]; !ok {
			return fmt.Errorf(
				"unsupported tracking sink %s, must be one of %s",
				sink, SupportedTrackingSinks,
			)
		}
		if sink == "kafka" && len(GetList(KafkaBrokersKey)) == 0 {
			return fmt.Errorf("kafka brokers list must not be empty")
		}
	}

	guardType := GetString(SessionGuardTypeKey)
	if _, ok := SupportedSessionGuards[guardType]; !ok {
		return fmt.Errorf(
			"unsupported session guard type, must be one of %s",
			SupportedSessionGuards,
		)
	}
	if GetInt(SessionLockTTLKey) <= 0 {
		return fmt.Errorf("session lock ttl must be a positive number of seconds")
	}

	port := GetInt(PortKey)
	noProfiler := GetBool(NoProfilerKey)
	if !noProfiler {
		profilerPort := GetInt(ProfilerPortKey)
		if port == profilerPort {
			return fmt.Errorf("port and profiler port must not be equal")
		}
	}

	return nil
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetTrackingSinks returns the configured sinks, lowercased.
func GetTrackingSinks() []string {
	sinks := GetList(TrackingSinksKey)
	for i, s := range sinks {
		sinks[i] = strings.ToLower(s)
	}
	return sinks
}

// GetList returns the comma separated values of the given key.
func GetList(key string) []string {
	list := make([]string, 0)
	for _, s := range strings.Split(GetString(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	return list
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetFloat64(key string) float64 {
	return vip.GetFloat64(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetStringSlice(key string) []string {
	return vip.GetStringSlice(key)
}

func Set(key string, val interface{}) {
	vip.Set(key, val)
}

func Unset(key string) {
	vip.Set(key, nil)
}

func IsSet(key string) bool {
	return vip.IsSet(key)
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}

	noProfiler := GetBool(NoProfilerKey)
	if noProfiler {
		return nil
	}
	return makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}
