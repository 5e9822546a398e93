/*
Copyright 2024 NetPlay Hub Authors.

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
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"HUBSYNC_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"HUBSYNC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"HUBSYNC_SERVER_SECRET_KEY"`
	Domain    string `json:"domain,omitempty" envconfig:"HUBSYNC_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email,omitempty" envconfig:"HUBSYNC_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"HUBSYNC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"HUBSYNC_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"HUBSYNC_REDIS_DNS"`
}

// HubSoftConfig holds the connection settings for the HubSoft ERP API.
type HubSoftConfig struct {
	BaseUrl      string `json:"base_url" envconfig:"HUBSYNC_HUBSOFT_BASE_URL"`
	ClientId     string `json:"client_id" envconfig:"HUBSYNC_HUBSOFT_CLIENT_ID"`
	ClientSecret string `json:"client_secret" envconfig:"HUBSYNC_HUBSOFT_CLIENT_SECRET"`
	TimeoutSec   int    `json:"timeout_sec" envconfig:"HUBSYNC_HUBSOFT_TIMEOUT_SEC"`
	// RenewalBufferMin is how long before token expiry a renewal is forced.
	RenewalBufferMin int `json:"renewal_buffer_min" envconfig:"HUBSYNC_HUBSOFT_RENEWAL_BUFFER_MIN"`
}

// CacheTTLConfig configures the time-to-live per cached data category,
// in minutes. Categories are defined in internal/cache.
type CacheTTLConfig struct {
	ClientLookupMin   int `json:"client_lookup_min" envconfig:"HUBSYNC_CACHE_CLIENT_LOOKUP_MIN"`
	ContractStatusMin int `json:"contract_status_min" envconfig:"HUBSYNC_CACHE_CONTRACT_STATUS_MIN"`
	ServiceDataMin    int `json:"service_data_min" envconfig:"HUBSYNC_CACHE_SERVICE_DATA_MIN"`
}

// OutboundRateLimitConfig bounds calls made against the HubSoft API.
type OutboundRateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" envconfig:"HUBSYNC_HUBSOFT_RPM"`
	MaxConcurrent     int `json:"max_concurrent" envconfig:"HUBSYNC_HUBSOFT_MAX_CONCURRENT"`
	MaxRetries        int `json:"max_retries" envconfig:"HUBSYNC_HUBSOFT_MAX_RETRIES"`
	BackoffBaseMs     int `json:"backoff_base_ms" envconfig:"HUBSYNC_HUBSOFT_BACKOFF_BASE_MS"`
	BackoffCapMs      int `json:"backoff_cap_ms" envconfig:"HUBSYNC_HUBSOFT_BACKOFF_CAP_MS"`
}

// ApiRateLimitConfig is the inbound limit applied to the HTTP surface
// the chat bot calls. Disabled when both RPS and Burst are nil.
type ApiRateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"HUBSYNC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"HUBSYNC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"HUBSYNC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

// MonitorConfig drives the background loops: ERP health checks, ticket
// status sync and the defensive recovery scan.
type MonitorConfig struct {
	HealthCheckIntervalSec  int `json:"health_check_interval_sec" envconfig:"HUBSYNC_MONITOR_HEALTH_INTERVAL_SEC"`
	StatusSyncIntervalSec   int `json:"status_sync_interval_sec" envconfig:"HUBSYNC_MONITOR_STATUS_SYNC_INTERVAL_SEC"`
	RecoveryScanIntervalSec int `json:"recovery_scan_interval_sec" envconfig:"HUBSYNC_MONITOR_RECOVERY_SCAN_INTERVAL_SEC"`
	// FlagAfterCycles is how many failed reconciliation cycles a ticket
	// survives before it is flagged for manual admin attention.
	FlagAfterCycles int `json:"flag_after_cycles" envconfig:"HUBSYNC_MONITOR_FLAG_AFTER_CYCLES"`
}

// MigrationConfig lists the tables whose row counts are verified before
// and after each migration. A migration shrinking any of them below the
// threshold ratio is rolled back.
type MigrationConfig struct {
	CriticalTables     []string `json:"critical_tables" envconfig:"HUBSYNC_MIGRATION_CRITICAL_TABLES"`
	IntegrityThreshold float64  `json:"integrity_threshold" envconfig:"HUBSYNC_MIGRATION_INTEGRITY_THRESHOLD"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"HUBSYNC_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type QueueConfig struct {
	NotificationQueue string `json:"notification_queue" envconfig:"HUBSYNC_QUEUE_NOTIFICATION"`
	MaxRetryAttempts  int    `json:"max_retry_attempts" envconfig:"HUBSYNC_QUEUE_MAX_RETRY_ATTEMPTS"`
}

type Configuration struct {
	ProjectName  string                  `json:"project_name" envconfig:"HUBSYNC_PROJECT_NAME"`
	Server       ServerConfig            `json:"server"`
	DataSource   DataSourceConfig        `json:"data_source"`
	Redis        RedisConfig             `json:"redis"`
	HubSoft      HubSoftConfig           `json:"hubsoft"`
	CacheTTL     CacheTTLConfig          `json:"cache_ttl"`
	HubSoftLimit OutboundRateLimitConfig `json:"hubsoft_rate_limit"`
	RateLimit    ApiRateLimitConfig      `json:"rate_limit"`
	Monitor      MonitorConfig           `json:"monitor"`
	Migration    MigrationConfig         `json:"migration"`
	Notification Notification            `json:"notification"`
	Queue        QueueConfig             `json:"queue"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("hubsync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called hubsync.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Hubsync Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.HubSoft.BaseUrl == "" {
		log.Println("Error: HubSoft base URL is empty. It's a required field.")
		return errors.New("hubsoft base URL is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.HubSoft.BaseUrl = strings.TrimRight(strings.TrimSpace(cnf.HubSoft.BaseUrl), "/")

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.applyDefaults()

	// Inbound rate limiting is disabled by default (when both RPS and Burst are nil)
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

func (cnf *Configuration) applyDefaults() {
	setIntDefault(&cnf.HubSoft.TimeoutSec, 15)
	setIntDefault(&cnf.HubSoft.RenewalBufferMin, 5)

	setIntDefault(&cnf.CacheTTL.ClientLookupMin, 30)
	setIntDefault(&cnf.CacheTTL.ContractStatusMin, 240)
	setIntDefault(&cnf.CacheTTL.ServiceDataMin, 60)

	setIntDefault(&cnf.HubSoftLimit.RequestsPerMinute, 30)
	setIntDefault(&cnf.HubSoftLimit.MaxConcurrent, 1)
	setIntDefault(&cnf.HubSoftLimit.MaxRetries, 3)
	setIntDefault(&cnf.HubSoftLimit.BackoffBaseMs, 1000)
	setIntDefault(&cnf.HubSoftLimit.BackoffCapMs, 30000)

	setIntDefault(&cnf.Monitor.HealthCheckIntervalSec, 60)
	setIntDefault(&cnf.Monitor.StatusSyncIntervalSec, 900)
	setIntDefault(&cnf.Monitor.RecoveryScanIntervalSec, 1800)
	setIntDefault(&cnf.Monitor.FlagAfterCycles, 10)

	if len(cnf.Migration.CriticalTables) == 0 {
		cnf.Migration.CriticalTables = []string{"tickets"}
	}
	if cnf.Migration.IntegrityThreshold == 0 {
		cnf.Migration.IntegrityThreshold = 0.95
	}

	if cnf.Queue.NotificationQueue == "" {
		cnf.Queue.NotificationQueue = "hubsync:notifications"
	}
	setIntDefault(&cnf.Queue.MaxRetryAttempts, 5)
}

func setIntDefault(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}

// HubSoftTimeout returns the configured HTTP timeout for ERP calls.
func (cnf *Configuration) HubSoftTimeout() time.Duration {
	return time.Duration(cnf.HubSoft.TimeoutSec) * time.Second
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
