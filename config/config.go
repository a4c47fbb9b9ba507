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
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT                       = "5001"
	DEFAULT_OPERATION_TIMEOUT_SEC      = 10
	DEFAULT_PRECISION                  = 2
	DEFAULT_TOTAL_BALANCE_CACHE_TTL    = 5
	DEFAULT_RECONCILIATION_INTERVAL    = 3600
	DEFAULT_RECONCILIATION_LOCK_TTL    = 300
	DEFAULT_WEBHOOK_QUEUE              = "ledger_webhooks"
	DEFAULT_WEBHOOK_MAX_RETRY          = 5
	DEFAULT_TRACING_SERVICE_NAME       = "ledger"
	DEFAULT_RATE_LIMIT_CLEANUP_SECONDS = 10800
)

var ConfigStore atomic.Value

var supportedDrivers = map[string]bool{
	"memory":   true,
	"postgres": true,
	"sqlite3":  true,
	"redis":    true,
}

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"LEDGER_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"LEDGER_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"LEDGER_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"LEDGER_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"LEDGER_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"LEDGER_SERVER_PORT"`
}

type DataSourceConfig struct {
	Driver string `json:"driver" envconfig:"LEDGER_DATA_SOURCE_DRIVER"`
	Dns    string `json:"dns" envconfig:"LEDGER_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"LEDGER_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"LEDGER_REDIS_SKIP_TLS_VERIFY"`
}

// LedgerConfig holds the knobs of the ledger service itself.
type LedgerConfig struct {
	OperationTimeoutSec     int   `json:"operation_timeout_sec" envconfig:"LEDGER_OPERATION_TIMEOUT_SEC"`
	Precision               int32 `json:"precision" envconfig:"LEDGER_PRECISION"`
	TotalBalanceCacheTTLSec int   `json:"total_balance_cache_ttl_sec" envconfig:"LEDGER_TOTAL_BALANCE_CACHE_TTL_SEC"`
	SeedOnStart             bool  `json:"seed_on_start" envconfig:"LEDGER_SEED_ON_START"`
}

type ReconciliationConfig struct {
	Enabled     bool `json:"enabled" envconfig:"LEDGER_RECONCILIATION_ENABLED"`
	IntervalSec int  `json:"interval_sec" envconfig:"LEDGER_RECONCILIATION_INTERVAL_SEC"`
	LockTTLSec  int  `json:"lock_ttl_sec" envconfig:"LEDGER_RECONCILIATION_LOCK_TTL_SEC"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"LEDGER_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"LEDGER_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"LEDGER_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type WebhookConfig struct {
	Url      string            `json:"url" envconfig:"LEDGER_WEBHOOK_URL"`
	Headers  map[string]string `json:"headers" envconfig:"LEDGER_WEBHOOK_HEADERS"`
	Queue    string            `json:"queue" envconfig:"LEDGER_WEBHOOK_QUEUE"`
	MaxRetry int               `json:"max_retry" envconfig:"LEDGER_WEBHOOK_MAX_RETRY"`
}

type Notification struct {
	Webhook WebhookConfig `json:"webhook"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"LEDGER_TRACING_ENABLED"`
	Endpoint    string `json:"endpoint" envconfig:"LEDGER_TRACING_ENDPOINT"`
	Insecure    bool   `json:"insecure" envconfig:"LEDGER_TRACING_INSECURE"`
	ServiceName string `json:"service_name" envconfig:"LEDGER_TRACING_SERVICE_NAME"`
}

type Configuration struct {
	ProjectName    string               `json:"project_name" envconfig:"LEDGER_PROJECT_NAME"`
	Server         ServerConfig         `json:"server"`
	DataSource     DataSourceConfig     `json:"data_source"`
	Redis          RedisConfig          `json:"redis"`
	Ledger         LedgerConfig         `json:"ledger"`
	Reconciliation ReconciliationConfig `json:"reconciliation"`
	Notification   Notification         `json:"notification"`
	RateLimit      RateLimitConfig      `json:"rate_limit"`
	Tracing        TracingConfig        `json:"tracing"`
}

// OperationTimeout bounds every ledger operation.
func (l LedgerConfig) OperationTimeout() time.Duration {
	return time.Duration(l.OperationTimeoutSec) * time.Second
}

func (l LedgerConfig) TotalBalanceCacheTTL() time.Duration {
	return time.Duration(l.TotalBalanceCacheTTLSec) * time.Second
}

func (r ReconciliationConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSec) * time.Second
}

func (r ReconciliationConfig) LockTTL() time.Duration {
	return time.Duration(r.LockTTLSec) * time.Second
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("ledger", &cnf)
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

// InitConfig loads an optional .env file, then the JSON config overlaid with LEDGER_* variables.
func InitConfig(configFile string) error {
	logger()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called ledger.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Ledger Server"
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Driver = strings.ToLower(strings.TrimSpace(cnf.DataSource.Driver))
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.DataSource.Driver == "" {
		cnf.DataSource.Driver = "postgres"
	}
	if !supportedDrivers[cnf.DataSource.Driver] {
		return fmt.Errorf("unsupported data source driver %q", cnf.DataSource.Driver)
	}

	switch cnf.DataSource.Driver {
	case "postgres", "sqlite3":
		if cnf.DataSource.Dns == "" {
			log.Println("Error: Data source DNS is empty. It's a required field.")
			return errors.New("data source DNS is required")
		}
	case "redis":
		if cnf.Redis.Dns == "" {
			log.Println("Error: Redis DNS is empty. It's required by the redis driver.")
			return errors.New("redis DNS is required")
		}
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Ledger.OperationTimeoutSec <= 0 {
		cnf.Ledger.OperationTimeoutSec = DEFAULT_OPERATION_TIMEOUT_SEC
	}
	if cnf.Ledger.Precision <= 0 {
		cnf.Ledger.Precision = DEFAULT_PRECISION
	}
	if cnf.Ledger.TotalBalanceCacheTTLSec <= 0 {
		cnf.Ledger.TotalBalanceCacheTTLSec = DEFAULT_TOTAL_BALANCE_CACHE_TTL
	}

	if cnf.Reconciliation.IntervalSec <= 0 {
		cnf.Reconciliation.IntervalSec = DEFAULT_RECONCILIATION_INTERVAL
	}
	if cnf.Reconciliation.LockTTLSec <= 0 {
		cnf.Reconciliation.LockTTLSec = DEFAULT_RECONCILIATION_LOCK_TTL
	}

	if cnf.Notification.Webhook.Queue == "" {
		cnf.Notification.Webhook.Queue = DEFAULT_WEBHOOK_QUEUE
	}
	if cnf.Notification.Webhook.MaxRetry <= 0 {
		cnf.Notification.Webhook.MaxRetry = DEFAULT_WEBHOOK_MAX_RETRY
	}

	if cnf.Tracing.ServiceName == "" {
		cnf.Tracing.ServiceName = DEFAULT_TRACING_SERVICE_NAME
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
		defaultCleanup := DEFAULT_RATE_LIMIT_CLEANUP_SECONDS
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
