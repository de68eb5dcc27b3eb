/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

var ConfigStore atomic.Value

// ServerConfig holds the HTTP settings. AdminKey guards the review endpoints and APIKey guards
// merchant intake; both come from the environment only.
type ServerConfig struct {
	SSL      bool   `json:"ssl" envconfig:"VEXOGATE_SERVER_SSL"`
	AdminKey string `json:"-" envconfig:"VEXOGATE_SERVER_ADMIN_KEY"`
	APIKey   string `json:"-" envconfig:"VEXOGATE_SERVER_API_KEY"`
	Domain   string `json:"domain" envconfig:"VEXOGATE_SERVER_SSL_DOMAIN"`
	Email    string `json:"ssl_email" envconfig:"VEXOGATE_SERVER_SSL_EMAIL"`
	Port     string `json:"port" envconfig:"VEXOGATE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"VEXOGATE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"VEXOGATE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"VEXOGATE_REDIS_SKIP_TLS_VERIFY"`
}

type ChainConfig struct {
	RPCURL                string `json:"rpc_url" envconfig:"VEXOGATE_CHAIN_RPC_URL"`
	Network               string `json:"network" envconfig:"VEXOGATE_CHAIN_NETWORK"`
	ChainID               uint64 `json:"chain_id" envconfig:"VEXOGATE_CHAIN_ID"`
	TokenContract         string `json:"token_contract" envconfig:"VEXOGATE_CHAIN_TOKEN_CONTRACT"`
	TokenDecimals         int32  `json:"token_decimals" envconfig:"VEXOGATE_CHAIN_TOKEN_DECIMALS"`
	TokenSymbol           string `json:"token_symbol" envconfig:"VEXOGATE_CHAIN_TOKEN_SYMBOL"`
	RequestTimeoutSec     int    `json:"request_timeout_sec" envconfig:"VEXOGATE_CHAIN_REQUEST_TIMEOUT_SEC"`
	ExplorerURL           string `json:"explorer_url" envconfig:"VEXOGATE_CHAIN_EXPLORER_URL"`
	InboundLookbackBlocks uint64 `json:"inbound_lookback_blocks" envconfig:"VEXOGATE_CHAIN_INBOUND_LOOKBACK_BLOCKS"`
}

type GasStationConfig struct {
	MasterWalletPrivateKey string          `json:"-" envconfig:"VEXOGATE_MASTER_WALLET_PRIVATE_KEY"`
	InjectionAmount        decimal.Decimal `json:"injection_amount" envconfig:"VEXOGATE_GAS_INJECTION_AMOUNT"`
	MinGasFloor            decimal.Decimal `json:"min_gas_floor" envconfig:"VEXOGATE_GAS_MIN_FLOOR"`
}

type FeeConfig struct {
	WalletAddress string          `json:"wallet_address" envconfig:"VEXOGATE_FEE_WALLET_ADDRESS"`
	Percentage    decimal.Decimal `json:"percentage" envconfig:"VEXOGATE_FEE_PERCENTAGE"`
	Minimum       decimal.Decimal `json:"minimum" envconfig:"VEXOGATE_FEE_MINIMUM"`
}

type SecurityConfig struct {
	ManualApprovalThreshold decimal.Decimal `json:"manual_approval_threshold" envconfig:"VEXOGATE_MANUAL_APPROVAL_THRESHOLD"`
	ForceManualApproval     bool            `json:"force_manual_approval" envconfig:"VEXOGATE_FORCE_MANUAL_APPROVAL"`
	EncryptionKey           string          `json:"-" envconfig:"VEXOGATE_ENCRYPTION_KEY"`
}

type WorkerConfig struct {
	ScanInterval          string `json:"scan_interval" envconfig:"VEXOGATE_WORKER_SCAN_INTERVAL"`
	MaxOrdersPerCycle     int    `json:"max_orders_per_cycle" envconfig:"VEXOGATE_WORKER_MAX_ORDERS_PER_CYCLE"`
	ConfirmationAttempts  int    `json:"confirmation_attempts" envconfig:"VEXOGATE_WORKER_CONFIRMATION_ATTEMPTS"`
	ConfirmationDelaySec  int    `json:"confirmation_delay_sec" envconfig:"VEXOGATE_WORKER_CONFIRMATION_DELAY_SEC"`
	WebhookTimeoutSec     int    `json:"webhook_timeout_sec" envconfig:"VEXOGATE_WORKER_WEBHOOK_TIMEOUT_SEC"`
	WebhookQueue          string `json:"webhook_queue" envconfig:"VEXOGATE_WORKER_WEBHOOK_QUEUE"`
	ScanQueue             string `json:"scan_queue" envconfig:"VEXOGATE_WORKER_SCAN_QUEUE"`
	MonitoringPort        string `json:"monitoring_port" envconfig:"VEXOGATE_WORKER_MONITORING_PORT"`
	OrderLockTimeoutSec   int    `json:"order_lock_timeout_sec" envconfig:"VEXOGATE_WORKER_ORDER_LOCK_TIMEOUT_SEC"`
	GasStationLockWaitSec int    `json:"gas_station_lock_wait_sec" envconfig:"VEXOGATE_WORKER_GAS_STATION_LOCK_WAIT_SEC"`
	DisableInboundLookup  bool   `json:"disable_inbound_lookup" envconfig:"VEXOGATE_WORKER_DISABLE_INBOUND_LOOKUP"`
}

type ProviderConfig struct {
	Default string            `json:"default" envconfig:"VEXOGATE_PROVIDER_DEFAULT"`
	URLs    map[string]string `json:"urls" envconfig:"VEXOGATE_PROVIDER_URLS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"VEXOGATE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"VEXOGATE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"VEXOGATE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"VEXOGATE_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"VEXOGATE_PROJECT_NAME"`
	LegalDisclaimer string           `json:"legal_disclaimer" envconfig:"VEXOGATE_LEGAL_DISCLAIMER"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"VEXOGATE_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Chain           ChainConfig      `json:"chain"`
	GasStation      GasStationConfig `json:"gas_station"`
	Fee             FeeConfig        `json:"fee"`
	Security        SecurityConfig   `json:"security"`
	Worker          WorkerConfig     `json:"worker"`
	Providers       ProviderConfig   `json:"providers"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)

	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// a missing .env file is fine; real environment variables still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	// override config from environment variables
	err = envconfig.Process("vexogate", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called vexogate.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "VexoGate"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Chain.RPCURL = strings.TrimSpace(cnf.Chain.RPCURL)
	cnf.Fee.WalletAddress = strings.TrimSpace(cnf.Fee.WalletAddress)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if err := cnf.chainDefaults(); err != nil {
		return err
	}
	cnf.settlementDefaults()
	cnf.workerDefaults()

	if cnf.Security.EncryptionKey != "" && len(cnf.Security.EncryptionKey) != 32 {
		return errors.New("encryption key must be exactly 32 bytes")
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (cnf *Configuration) chainDefaults() error {
	if cnf.Chain.RPCURL == "" {
		cnf.Chain.RPCURL = "https://polygon-rpc.com"
	}
	switch cnf.Chain.Network {
	case "":
		cnf.Chain.Network = NetworkMainnet
	case NetworkMainnet, NetworkTestnet:
	default:
		return fmt.Errorf("unknown chain network %q", cnf.Chain.Network)
	}
	if cnf.Chain.ChainID == 0 {
		cnf.Chain.ChainID = 137
	}
	if cnf.Chain.TokenContract == "" {
		cnf.Chain.TokenContract = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
	}
	if cnf.Chain.TokenDecimals == 0 {
		cnf.Chain.TokenDecimals = 6
	}
	if cnf.Chain.TokenSymbol == "" {
		cnf.Chain.TokenSymbol = "USDC"
	}
	if cnf.Chain.RequestTimeoutSec <= 0 {
		cnf.Chain.RequestTimeoutSec = 15
	}
	if cnf.Chain.ExplorerURL == "" {
		cnf.Chain.ExplorerURL = "https://polygonscan.com"
		if cnf.Chain.Network == NetworkTestnet {
			cnf.Chain.ExplorerURL = "https://mumbai.polygonscan.com"
		}
	}
	cnf.Chain.ExplorerURL = strings.TrimRight(cnf.Chain.ExplorerURL, "/")
	if cnf.Chain.InboundLookbackBlocks == 0 {
		cnf.Chain.InboundLookbackBlocks = 5000
	}
	return nil
}

func (cnf *Configuration) settlementDefaults() {
	if cnf.GasStation.InjectionAmount.IsZero() {
		cnf.GasStation.InjectionAmount = decimal.RequireFromString("0.03")
	}
	if cnf.GasStation.MinGasFloor.IsZero() {
		cnf.GasStation.MinGasFloor = decimal.RequireFromString("0.01")
	}
	if cnf.Fee.Percentage.IsZero() {
		cnf.Fee.Percentage = decimal.RequireFromString("2.5")
	}
	if cnf.Fee.Minimum.IsZero() {
		cnf.Fee.Minimum = decimal.NewFromInt(1)
	}
	if cnf.Security.ManualApprovalThreshold.IsZero() {
		cnf.Security.ManualApprovalThreshold = decimal.NewFromInt(500)
	}
	if cnf.LegalDisclaimer == "" {
		cnf.LegalDisclaimer = "VexoGate is a technical settlement bridge. Fiat conversion and KYC are handled by the selected payment provider."
	}
	if cnf.Providers.Default == "" {
		cnf.Providers.Default = "transak"
	}
	if cnf.Providers.URLs == nil {
		cnf.Providers.URLs = map[string]string{}
	}
	defaults := map[string]string{
		"transak": "https://global.transak.com",
		"moonpay": "https://buy.moonpay.com",
		"banxa":   "https://checkout.banxa.com",
	}
	for slug, url := range defaults {
		if cnf.Providers.URLs[slug] == "" {
			cnf.Providers.URLs[slug] = url
		}
	}
}

func (cnf *Configuration) workerDefaults() {
	w := &cnf.Worker
	if w.ScanInterval == "" {
		w.ScanInterval = "1m"
	}
	if w.MaxOrdersPerCycle <= 0 {
		w.MaxOrdersPerCycle = 50
	}
	if w.ConfirmationAttempts <= 0 {
		w.ConfirmationAttempts = 30
	}
	if w.ConfirmationDelaySec <= 0 {
		w.ConfirmationDelaySec = 2
	}
	if w.WebhookTimeoutSec <= 0 {
		w.WebhookTimeoutSec = 10
	}
	if w.WebhookQueue == "" {
		w.WebhookQueue = "webhook_queue"
	}
	if w.ScanQueue == "" {
		w.ScanQueue = "scan_queue"
	}
	if w.MonitoringPort == "" {
		w.MonitoringPort = "5004"
	}
	if w.OrderLockTimeoutSec <= 0 {
		w.OrderLockTimeoutSec = 300
	}
	if w.GasStationLockWaitSec <= 0 {
		w.GasStationLockWaitSec = 60
	}
}

// RequestTimeout is the per RPC call deadline.
func (c ChainConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// TxURL links a transaction hash on the block explorer.
func (c ChainConfig) TxURL(hash string) string {
	if hash == "" {
		return ""
	}
	return c.ExplorerURL + "/tx/" + hash
}

func (w WorkerConfig) ConfirmationDelay() time.Duration {
	return time.Duration(w.ConfirmationDelaySec) * time.Second
}

func (w WorkerConfig) WebhookTimeout() time.Duration {
	return time.Duration(w.WebhookTimeoutSec) * time.Second
}

func (w WorkerConfig) OrderLockTimeout() time.Duration {
	return time.Duration(w.OrderLockTimeoutSec) * time.Second
}

func (w WorkerConfig) GasStationLockWait() time.Duration {
	return time.Duration(w.GasStationLockWaitSec) * time.Second
}

// ScanEvery parses ScanInterval, falling back to one minute.
func (w WorkerConfig) ScanEvery() time.Duration {
	d, err := time.ParseDuration(w.ScanInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(logrus.StandardLogger().Writer())
}
