package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	datadir := t.TempDir()
	t.Setenv("DLCD_DATADIR", datadir)
	t.Setenv("DLCD_NETWORK", "simnet")
	t.Setenv("DLCD_PEER_NAME", "alice")
	t.Setenv("DLCD_REFUND_DELAY", "48h")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, datadir, cfg.Datadir)
	require.Equal(t, filepath.Join(datadir, "db"), cfg.DbDir)
	require.Equal(t, "simnet", cfg.Network)
	require.Equal(t, "alice", cfg.PeerName)
	require.Equal(t, 48*time.Hour, cfg.RefundDelay)

	require.Equal(t, uint32(DefaultPort), cfg.Port)
	require.Equal(t, defaultDbType, cfg.DbType)
	require.Equal(t, defaultWalletType, cfg.WalletType)
	require.Equal(t, defaultSchedulerType, cfg.SchedulerType)
	require.Equal(t, defaultReconcileInterval, cfg.ReconcileInterval)
	require.Equal(t, int64(defaultConfirmationThreshold), cfg.ConfirmationThreshold)
}

func TestConfigString(t *testing.T) {
	cfg := &Config{PeerName: "alice", PeerPassword: "secret", BitcoindPassword: "rpcpass"}
	str := cfg.String()
	require.Contains(t, str, "alice")
	require.NotContains(t, str, "secret")
	require.NotContains(t, str, "rpcpass")
}

func TestValidate(t *testing.T) {
	validConfig := func(t *testing.T) *Config {
		return &Config{
			Network:               "simnet",
			DbType:                "badger",
			DbDir:                 t.TempDir(),
			WalletType:            "simnet",
			SchedulerType:         "gocron",
			OracleURL:             "http://localhost:7272",
			RelayURL:              "http://localhost:7373",
			PeerName:              "alice",
			PeerPassword:          "password",
			ReconcileInterval:     30 * time.Second,
			ConfirmationThreshold: 6,
			RefundDelay:           24 * time.Hour,
		}
	}

	t.Run("valid", func(t *testing.T) {
		for _, dbType := range []string{"badger", "sqlite"} {
			t.Run(dbType, func(t *testing.T) {
				cfg := validConfig(t)
				cfg.DbType = dbType

				require.NoError(t, cfg.Validate())
				require.NotNil(t, cfg.AppService())
				require.NotNil(t, cfg.Events())
				cfg.AppService().Stop()
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name   string
			update func(*Config)
			err    string
		}{
			{
				name:   "db type",
				update: func(c *Config) { c.DbType = "postgres" },
				err:    "db type not supported",
			},
			{
				name:   "wallet type",
				update: func(c *Config) { c.WalletType = "electrum" },
				err:    "wallet type not supported",
			},
			{
				name:   "scheduler type",
				update: func(c *Config) { c.SchedulerType = "block" },
				err:    "scheduler type not supported",
			},
			{
				name:   "network",
				update: func(c *Config) { c.Network = "liquid" },
				err:    "unknown network",
			},
			{
				name:   "peer name",
				update: func(c *Config) { c.PeerName = "" },
				err:    "missing peer name",
			},
			{
				name:   "relay url",
				update: func(c *Config) { c.RelayURL = "" },
				err:    "missing relay url",
			},
			{
				name:   "oracle url",
				update: func(c *Config) { c.OracleURL = "" },
				err:    "missing oracle url",
			},
			{
				name:   "reconcile interval",
				update: func(c *Config) { c.ReconcileInterval = 100 * time.Millisecond },
				err:    "invalid reconcile interval",
			},
			{
				name:   "confirmation threshold",
				update: func(c *Config) { c.ConfirmationThreshold = 0 },
				err:    "invalid confirmation threshold",
			},
			{
				name:   "refund delay",
				update: func(c *Config) { c.RefundDelay = 0 },
				err:    "invalid refund delay",
			},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				cfg := validConfig(t)
				f.update(cfg)
				err := cfg.Validate()
				require.Error(t, err)
				require.Contains(t, err.Error(), f.err)
			})
		}
	})
}
