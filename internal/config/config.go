package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/dlc-network/dlcd/internal/core/application"
	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/dlc-network/dlcd/internal/infrastructure/db"
	sqlitedb "github.com/dlc-network/dlcd/internal/infrastructure/db/sqlite"
	wsmessaging "github.com/dlc-network/dlcd/internal/infrastructure/messaging/websocket"
	"github.com/dlc-network/dlcd/internal/infrastructure/notifier/broker"
	restoracle "github.com/dlc-network/dlcd/internal/infrastructure/oracle/rest"
	scheduler "github.com/dlc-network/dlcd/internal/infrastructure/scheduler/gocron"
	txbuilder "github.com/dlc-network/dlcd/internal/infrastructure/tx-builder"
	bitcoindwallet "github.com/dlc-network/dlcd/internal/infrastructure/wallet/bitcoind"
	simnetwallet "github.com/dlc-network/dlcd/internal/infrastructure/wallet/simnet"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedWallets = supportedType{
		"bitcoind": {},
		"simnet":   {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
	supportedNetworks = map[string]*chaincfg.Params{
		"mainnet": &chaincfg.MainNetParams,
		"testnet": &chaincfg.TestNet3Params,
		"signet":  &chaincfg.SigNetParams,
		"regtest": &chaincfg.RegressionNetParams,
		"simnet":  &chaincfg.SimNetParams,
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int
	Network  string

	DbType        string
	DbDir         string
	WalletType    string
	SchedulerType string

	BitcoindHost     string
	BitcoindUser     string
	BitcoindPassword string

	OracleURL    string
	RelayURL     string
	PeerName     string
	PeerPassword string

	ReconcileInterval     time.Duration
	ConfirmationThreshold int64
	RefundDelay           time.Duration

	repo      ports.RepoManager
	wallet    ports.WalletService
	engine    ports.CryptoEngine
	oracle    ports.OracleClient
	messaging ports.MessageService
	scheduler ports.SchedulerService
	broker    *broker.Broker
	svc       application.Service
	network   *chaincfg.Params
}

func (c *Config) String() string {
	clone := *c
	if clone.BitcoindPassword != "" {
		clone.BitcoindPassword = "***"
	}
	if clone.PeerPassword != "" {
		clone.PeerPassword = "***"
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir               = "DATADIR"
	Port                  = "PORT"
	LogLevel              = "LOG_LEVEL"
	Network               = "NETWORK"
	DbType                = "DB_TYPE"
	WalletType            = "WALLET_TYPE"
	SchedulerType         = "SCHEDULER_TYPE"
	BitcoindHost          = "BITCOIND_HOST"
	BitcoindUser          = "BITCOIND_USER"
	BitcoindPassword      = "BITCOIND_PASS"
	OracleURL             = "ORACLE_URL"
	RelayURL              = "RELAY_URL"
	PeerName              = "PEER_NAME"
	PeerPassword          = "PEER_PASSWORD"
	ReconcileInterval     = "RECONCILE_INTERVAL"
	ConfirmationThreshold = "CONFIRMATION_THRESHOLD"
	RefundDelay           = "REFUND_DELAY"

	defaultDatadir               = btcutil.AppDataDir("dlcd", false)
	DefaultPort                  = 7171
	defaultLogLevel              = 4
	defaultNetwork               = "regtest"
	defaultDbType                = "badger"
	defaultWalletType            = "bitcoind"
	defaultSchedulerType         = "gocron"
	defaultReconcileInterval     = application.DefaultReconcileInterval
	defaultConfirmationThreshold = application.DefaultConfirmationThreshold
	defaultRefundDelay           = application.DefaultRefundDelay
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("DLCD")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(Network, defaultNetwork)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(WalletType, defaultWalletType)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(ReconcileInterval, defaultReconcileInterval)
	viper.SetDefault(ConfirmationThreshold, defaultConfirmationThreshold)
	viper.SetDefault(RefundDelay, defaultRefundDelay)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	return &Config{
		Datadir:               viper.GetString(Datadir),
		Port:                  viper.GetUint32(Port),
		LogLevel:              viper.GetInt(LogLevel),
		Network:               viper.GetString(Network),
		DbType:                viper.GetString(DbType),
		DbDir:                 filepath.Join(viper.GetString(Datadir), "db"),
		WalletType:            viper.GetString(WalletType),
		SchedulerType:         viper.GetString(SchedulerType),
		BitcoindHost:          viper.GetString(BitcoindHost),
		BitcoindUser:          viper.GetString(BitcoindUser),
		BitcoindPassword:      viper.GetString(BitcoindPassword),
		OracleURL:             viper.GetString(OracleURL),
		RelayURL:              viper.GetString(RelayURL),
		PeerName:              viper.GetString(PeerName),
		PeerPassword:          viper.GetString(PeerPassword),
		ReconcileInterval:     viper.GetDuration(ReconcileInterval),
		ConfirmationThreshold: viper.GetInt64(ConfirmationThreshold),
		RefundDelay:           viper.GetDuration(RefundDelay),
	}, nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// Validate checks the config and builds every service of the daemon.
func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedWallets.supports(c.WalletType) {
		return fmt.Errorf("wallet type not supported, please select one of: %s", supportedWallets)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	network, ok := supportedNetworks[c.Network]
	if !ok {
		return fmt.Errorf("unknown network %s", c.Network)
	}
	c.network = network

	if len(c.PeerName) <= 0 {
		return fmt.Errorf("missing peer name")
	}
	if len(c.RelayURL) <= 0 {
		return fmt.Errorf("missing relay url")
	}
	if len(c.OracleURL) <= 0 {
		return fmt.Errorf("missing oracle url")
	}
	if c.ReconcileInterval < time.Second {
		return fmt.Errorf("invalid reconcile interval, must be at least 1 second")
	}
	if c.ConfirmationThreshold <= 0 {
		return fmt.Errorf("invalid confirmation threshold, must be greater than 0")
	}
	if c.RefundDelay <= 0 {
		return fmt.Errorf("invalid refund delay, must be greater than 0")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.walletService(); err != nil {
		return err
	}
	if err := c.oracleService(); err != nil {
		return err
	}
	if err := c.messagingService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	c.engine = txbuilder.NewTxBuilder(c.network)
	c.broker = broker.NewBroker()
	return c.appService()
}

func (c *Config) AppService() application.Service {
	return c.svc
}

// Events returns the broker notified on every contract update.
func (c *Config) Events() *broker.Broker {
	return c.broker
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, log.New()}
	case "sqlite":
		sqlDb, err := sqlitedb.OpenDb(filepath.Join(c.DbDir, db.SqliteDbFile))
		if err != nil {
			return err
		}
		dataStoreConfig = []interface{}{sqlDb}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}
	c.repo = svc
	return nil
}

func (c *Config) walletService() error {
	switch c.WalletType {
	case "bitcoind":
		svc, err := bitcoindwallet.NewService(bitcoindwallet.Config{
			Host:     c.BitcoindHost,
			User:     c.BitcoindUser,
			Password: c.BitcoindPassword,
			Network:  c.network,
		})
		if err != nil {
			return err
		}
		c.wallet = svc
	case "simnet":
		log.Warn("using an in-process simulated chain, coins are not persisted")
		c.wallet = simnetwallet.NewWallet(simnetwallet.NewChain(c.network))
	default:
		return fmt.Errorf("unknown wallet type")
	}
	return nil
}

func (c *Config) oracleService() error {
	svc, err := restoracle.NewOracleClient(c.OracleURL)
	if err != nil {
		return err
	}
	c.oracle = svc
	return nil
}

func (c *Config) messagingService() error {
	svc, err := wsmessaging.NewService(c.RelayURL, c.PeerName, c.PeerPassword)
	if err != nil {
		return err
	}
	c.messaging = svc
	return nil
}

func (c *Config) schedulerService() error {
	switch c.SchedulerType {
	case "gocron":
		c.scheduler = scheduler.NewScheduler()
	default:
		return fmt.Errorf("unknown scheduler type")
	}
	return nil
}

func (c *Config) appService() error {
	svc, err := application.NewService(
		application.Config{
			ConfirmationThreshold: c.ConfirmationThreshold,
			RefundDelay:           c.RefundDelay,
			ReconcileInterval:     c.ReconcileInterval,
		},
		c.repo, c.wallet, c.engine, c.oracle, c.messaging, c.broker, c.scheduler,
	)
	if err != nil {
		return err
	}
	c.svc = svc
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

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
