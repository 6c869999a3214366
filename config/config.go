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

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	DefaultWebhookQueue  = "custody_webhooks"
	DefaultDeadlineQueue = "custody_deadlines"
	DefaultSweepSchedule = "@every 1m"
	DefaultSweepBatch    = 100

	DefaultMonitoringPort = "5004"

	DefaultFeeRateBps uint16 = 250

	minDerivationSecret = 32
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"CUSTODY_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"CUSTODY_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CUSTODY_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"CUSTODY_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"CUSTODY_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"CUSTODY_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CUSTODY_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"CUSTODY_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"CUSTODY_REDIS_SKIP_TLS_VERIFY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CUSTODY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CUSTODY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CUSTODY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"CUSTODY_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"CUSTODY_WEBHOOK_URL"`
	Secret  string            `json:"secret" envconfig:"CUSTODY_WEBHOOK_SECRET"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type QueueConfig struct {
	WebhookQueue  string `json:"webhook_queue" envconfig:"CUSTODY_QUEUE_WEBHOOK"`
	DeadlineQueue string `json:"deadline_queue" envconfig:"CUSTODY_QUEUE_DEADLINE"`
	SweepSchedule string `json:"sweep_schedule" envconfig:"CUSTODY_QUEUE_SWEEP_SCHEDULE"`
	SweepBatch    int    `json:"sweep_batch" envconfig:"CUSTODY_QUEUE_SWEEP_BATCH"`
	Concurrency   int    `json:"concurrency" envconfig:"CUSTODY_QUEUE_CONCURRENCY"`

	// MonitoringPort serves the asynqmon dashboard from the workers process.
	MonitoringPort string `json:"monitoring_port" envconfig:"CUSTODY_QUEUE_MONITORING_PORT"`
}

type CustodyConfig struct {
	DerivationSecret string `json:"derivation_secret" envconfig:"CUSTODY_DERIVATION_SECRET"`
	LockTTLSec       int    `json:"lock_ttl_sec" envconfig:"CUSTODY_LOCK_TTL_SEC"`
	LockWaitMs       int    `json:"lock_wait_ms" envconfig:"CUSTODY_LOCK_WAIT_MS"`
}

type PlatformDefaults struct {
	FeeRateBps uint16 `json:"fee_rate_bps" envconfig:"CUSTODY_PLATFORM_FEE_RATE_BPS"`
}

type WagerConfig struct {
	MinStake              uint64 `json:"min_stake"`
	MaxStake              uint64 `json:"max_stake"`
	ExpirySec             int64  `json:"expiry_sec"`
	AllowCreatorCancel    *bool  `json:"allow_creator_cancel"`
	ParticipantResolution bool   `json:"participant_resolution"`
}

type TipConfig struct {
	MinAmount uint64 `json:"min_amount"`
	MaxAmount uint64 `json:"max_amount"`
}

type TicketingConfig struct {
	MinTicketPrice      uint64 `json:"min_ticket_price"`
	MaxTicketPrice      uint64 `json:"max_ticket_price"`
	PremiumHeadStartSec int64  `json:"premium_head_start_sec"`
	CheckInLeadSec      int64  `json:"check_in_lead_sec"`
}

type SubscriptionConfig struct {
	MonthlyPrice uint64 `json:"monthly_price"`
	YearlyPrice  uint64 `json:"yearly_price"`
	MonthSec     int64  `json:"month_sec"`
	YearSec      int64  `json:"year_sec"`
	GraceSec     int64  `json:"grace_sec"`
}

type WorkflowConfig struct {
	Wager        WagerConfig        `json:"wager"`
	Tip          TipConfig          `json:"tip"`
	Ticketing    TicketingConfig    `json:"ticketing"`
	Subscription SubscriptionConfig `json:"subscription"`
}

type TracingConfig struct {
	Enabled      bool   `json:"enabled" envconfig:"CUSTODY_TRACING_ENABLED"`
	ServiceName  string `json:"service_name" envconfig:"CUSTODY_TRACING_SERVICE_NAME"`
	OtlpProtocol string `json:"otlp_protocol" envconfig:"CUSTODY_TRACING_OTLP_PROTOCOL"`
	OtlpEndpoint string `json:"otlp_endpoint" envconfig:"CUSTODY_TRACING_OTLP_ENDPOINT"`
	OtlpHeaders  string `json:"otlp_headers" envconfig:"CUSTODY_TRACING_OTLP_HEADERS"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"CUSTODY_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Queue        QueueConfig      `json:"queue"`
	Custody      CustodyConfig    `json:"custody"`
	Platform     PlatformDefaults `json:"platform"`
	Workflows    WorkflowConfig   `json:"workflows"`
	Tracing      TracingConfig    `json:"tracing"`
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

	// override config from environment variables
	err = envconfig.Process("custody", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called custody.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.ProjectName == "" {
		cnf.ProjectName = "Custody Server"
	}

	if cnf.DataSource.Dns == "" {
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		return errors.New("redis DNS is required")
	}

	if len(cnf.Custody.DerivationSecret) < minDerivationSecret {
		return fmt.Errorf("custody derivation secret must be at least %d bytes", minDerivationSecret)
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	cnf.setQueueDefaults()
	cnf.setCustodyDefaults()
	cnf.Workflows.setDefaults()

	if cnf.Platform.FeeRateBps == 0 {
		cnf.Platform.FeeRateBps = DefaultFeeRateBps
	}
	if cnf.Tracing.ServiceName == "" {
		cnf.Tracing.ServiceName = "custody"
	}

	return cnf.Workflows.validate()
}

func (cnf *Configuration) setQueueDefaults() {
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = DefaultWebhookQueue
	}
	if cnf.Queue.DeadlineQueue == "" {
		cnf.Queue.DeadlineQueue = DefaultDeadlineQueue
	}
	if cnf.Queue.SweepSchedule == "" {
		cnf.Queue.SweepSchedule = DefaultSweepSchedule
	}
	if cnf.Queue.SweepBatch <= 0 {
		cnf.Queue.SweepBatch = DefaultSweepBatch
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 10
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DefaultMonitoringPort
	}
}

func (cnf *Configuration) setCustodyDefaults() {
	if cnf.Custody.LockTTLSec <= 0 {
		cnf.Custody.LockTTLSec = 30
	}
	if cnf.Custody.LockWaitMs <= 0 {
		cnf.Custody.LockWaitMs = 3000
	}
}

func (w *WorkflowConfig) setDefaults() {
	if w.Wager.MinStake == 0 {
		w.Wager.MinStake = 100_000_000
	}
	if w.Wager.MaxStake == 0 {
		w.Wager.MaxStake = 10_000_000_000
	}
	if w.Wager.ExpirySec <= 0 {
		w.Wager.ExpirySec = 86_400
	}
	if w.Wager.AllowCreatorCancel == nil {
		allow := true
		w.Wager.AllowCreatorCancel = &allow
	}

	if w.Tip.MinAmount == 0 {
		w.Tip.MinAmount = 1_000_000
	}
	if w.Tip.MaxAmount == 0 {
		w.Tip.MaxAmount = 10_000_000_000_000
	}

	if w.Ticketing.MinTicketPrice == 0 {
		w.Ticketing.MinTicketPrice = 1
	}
	if w.Ticketing.PremiumHeadStartSec <= 0 {
		w.Ticketing.PremiumHeadStartSec = 43_200
	}
	if w.Ticketing.CheckInLeadSec <= 0 {
		w.Ticketing.CheckInLeadSec = 3_600
	}

	if w.Subscription.MonthlyPrice == 0 {
		w.Subscription.MonthlyPrice = 100_000_000
	}
	if w.Subscription.YearlyPrice == 0 {
		w.Subscription.YearlyPrice = 1_000_000_000
	}
	if w.Subscription.MonthSec <= 0 {
		w.Subscription.MonthSec = 2_592_000
	}
	if w.Subscription.YearSec <= 0 {
		w.Subscription.YearSec = 31_536_000
	}
	if w.Subscription.GraceSec <= 0 {
		w.Subscription.GraceSec = 172_800
	}
}

func (w *WorkflowConfig) validate() error {
	if w.Wager.MinStake > w.Wager.MaxStake {
		return errors.New("wager min_stake is above max_stake")
	}
	if w.Tip.MinAmount > w.Tip.MaxAmount {
		return errors.New("tip min_amount is above max_amount")
	}
	if w.Ticketing.MaxTicketPrice != 0 && w.Ticketing.MinTicketPrice > w.Ticketing.MaxTicketPrice {
		return errors.New("ticketing min_ticket_price is above max_ticket_price")
	}
	return nil
}

// SetExporterEnvs exports the OTLP settings under the variable names the exporter reads.
func SetExporterEnvs() error {
	cnf, err := Fetch()
	if err != nil {
		return err
	}
	envs := map[string]string{
		"OTEL_EXPORTER_OTLP_PROTOCOL": cnf.Tracing.OtlpProtocol,
		"OTEL_EXPORTER_OTLP_ENDPOINT": cnf.Tracing.OtlpEndpoint,
		"OTEL_EXPORTER_OTLP_HEADERS":  cnf.Tracing.OtlpHeaders,
	}
	for k, v := range envs {
		if v == "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (c CustodyConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSec) * time.Second
}

func (c CustodyConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitMs) * time.Millisecond
}

func (w WagerConfig) Expiry() time.Duration {
	return time.Duration(w.ExpirySec) * time.Second
}

func (w WagerConfig) CreatorCancelAllowed() bool {
	return w.AllowCreatorCancel == nil || *w.AllowCreatorCancel
}

func (t TicketingConfig) PremiumHeadStart() time.Duration {
	return time.Duration(t.PremiumHeadStartSec) * time.Second
}

func (t TicketingConfig) CheckInLead() time.Duration {
	return time.Duration(t.CheckInLeadSec) * time.Second
}

func (s SubscriptionConfig) Grace() time.Duration {
	return time.Duration(s.GraceSec) * time.Second
}

// Period returns the billing period and price of a payment type ("monthly" or "yearly").
func (s SubscriptionConfig) Period(paymentType string) (time.Duration, uint64, error) {
	switch paymentType {
	case "monthly":
		return time.Duration(s.MonthSec) * time.Second, s.MonthlyPrice, nil
	case "yearly":
		return time.Duration(s.YearSec) * time.Second, s.YearlyPrice, nil
	}
	return 0, 0, fmt.Errorf("unknown payment type %q", paymentType)
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

// DefaultTestConfig is a complete configuration with every default applied.
func DefaultTestConfig() *Configuration {
	cnf := &Configuration{
		DataSource: DataSourceConfig{Dns: "memory://"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Custody:    CustodyConfig{DerivationSecret: strings.Repeat("s", minDerivationSecret)},
	}
	if err := cnf.validateAndAddDefaults(); err != nil {
		panic(err)
	}
	return cnf
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
