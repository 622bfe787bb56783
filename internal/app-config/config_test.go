package appconfig_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	appconfig "github.com/vulpemventures/hwsign/internal/app-config"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/infrastructure/device-action/emulator"
	path "github.com/vulpemventures/hwsign/pkg/derivation-path"
)

var testMnemonic = strings.Split(
	"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
	" ",
)

func TestAppConfig(t *testing.T) {
	redisSrv := miniredis.RunT(t)

	cfg := &appconfig.AppConfig{
		RepoManagerType:    "badger",
		RepoManagerConfig:  t.TempDir(),
		DeviceSourceType:   "emulator",
		DeviceSourceConfig: emulator.Opts{Mnemonic: testMnemonic},
		TrackingSinks:      []string{"log", "prometheus", "redis"},
		RedisConfig:        appconfig.RedisConfig{Addr: redisSrv.Addr()},
		SessionGuardType:   "redis",
		MetricsRegisterer:  prometheus.NewRegistry(),
	}
	require.NoError(t, cfg.Validate())
	t.Cleanup(cfg.Close)

	svc := cfg.SigningService()
	require.NotNil(t, svc)
	require.Same(t, svc, cfg.SigningService())

	ctx := context.Background()
	flow, err := svc.SignPersonalMessage(
		ctx, path.DefaultEthereumPath, "account", []byte("hello"),
		domain.SessionContext{
			DeviceSessionID: "session",
			ConnectedDevice: &domain.DeviceInfo{ID: "emulator"},
			SelectedAccount: &domain.Account{
				Ref: "account", Address: "0x9858effd232b4033e47d90003d41ec34ecaeda94",
				Blockchain: "ethereum",
			},
		},
	)
	require.NoError(t, err)
	status, err := flow.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.SignFlowSuccess, status.State, "%v", status.Err)

	<-flow.Done()
	history, err := svc.ListSigningHistory(ctx, "account")
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.Eventually(t, func() bool {
		return redisSrv.Exists("hwsign:tracking")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAppConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  appconfig.AppConfig
	}{
		{
			name: "missing repo manager type",
			cfg:  appconfig.AppConfig{DeviceSourceType: "emulator"},
		},
		{
			name: "unknown repo manager type",
			cfg: appconfig.AppConfig{
				RepoManagerType: "sqlite", DeviceSourceType: "emulator",
			},
		},
		{
			name: "missing badger datadir",
			cfg: appconfig.AppConfig{
				RepoManagerType: "badger", DeviceSourceType: "emulator",
			},
		},
		{
			name: "unknown device source",
			cfg: appconfig.AppConfig{
				RepoManagerType: "inmemory", DeviceSourceType: "serial",
			},
		},
		{
			name: "missing bridge url",
			cfg: appconfig.AppConfig{
				RepoManagerType: "inmemory", DeviceSourceType: "bridge",
			},
		},
		{
			name: "missing rpc url",
			cfg: appconfig.AppConfig{
				RepoManagerType: "inmemory", DeviceSourceType: "emulator",
				BroadcasterType: "ethclient",
			},
		},
		{
			name: "unknown tracking sink",
			cfg: appconfig.AppConfig{
				RepoManagerType: "inmemory", DeviceSourceType: "emulator",
				TrackingSinks: []string{"statsd"},
			},
		},
		{
			name: "missing kafka brokers",
			cfg: appconfig.AppConfig{
				RepoManagerType: "inmemory", DeviceSourceType: "emulator",
				TrackingSinks: []string{"kafka"},
			},
		},
		{
			name: "missing redis address",
			cfg: appconfig.AppConfig{
				RepoManagerType: "inmemory", DeviceSourceType: "emulator",
				SessionGuardType: "redis",
			},
		},
		{
			name: "missing app catalog",
			cfg: appconfig.AppConfig{
				RepoManagerType: "inmemory", DeviceSourceType: "emulator",
				AppCatalogPath: "/not/existing/catalog.yaml",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			t.Cleanup(cfg.Close)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestBuildInfo(t *testing.T) {
	cfg := appconfig.AppConfig{Version: "v0.1.0"}
	info := cfg.BuildInfo()
	require.Equal(t, "v0.1.0", info.Version)
	require.Equal(t, "none", info.Commit)
	require.Equal(t, "unknown", info.Date)
}
