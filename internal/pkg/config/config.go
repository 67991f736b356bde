// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ServiceName = "fulfillment-worker"

	defaultMarketBaseURL    = "https://api.partner.market.yandex.ru"
	defaultEligibility      = `status == "PROCESSING" && payment == "PREPAID" && delivery == "DIGITAL"`
	defaultActivateLayout   = "02-01-2006"
	defaultKafkaTopic       = "fulfillment-events"
	defaultLockKey          = "fulfillment-worker:lease"
	defaultSQLitePath       = "fulfillment.db"
	defaultMetricsAddr      = ":8081"
	defaultRequestTimeout   = 30 * time.Second
	defaultPollInterval     = time.Hour
	defaultOrderTimeout     = 2 * time.Minute
	defaultStaleReservation = 24 * time.Hour
	defaultActivation       = 365 * 24 * time.Hour
	defaultBusyTimeout      = 30 * time.Second
	defaultLockTTL          = 10 * time.Minute
)

// DefaultCodeTemplate 是发给买家的单个账号凭据块，字段来自 digital_accounts 表。
const DefaultCodeTemplate = `Аккаунт:
Почта: {{.Login}}
Пароль от почты: {{.MailPassword}}
Пароль от сервиса: {{.ServicePassword}}
Имя: {{.UserName}}`

// Config 是整个 worker 的显式配置，启动时加载一次，然后通过构造函数传入各组件。
type Config struct {
	Market   MarketConfig   `yaml:"market"`
	Worker   WorkerConfig   `yaml:"worker"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Lock     LockConfig     `yaml:"lock"`
}

type MarketConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIToken       string        `yaml:"api_token"`
	BusinessID     string        `yaml:"business_id"`
	CampaignID     string        `yaml:"campaign_id"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type WorkerConfig struct {
	PollInterval          time.Duration `yaml:"poll_interval"`
	BatchSize             int           `yaml:"batch_size"`
	OrderTimeout          time.Duration `yaml:"order_timeout"`
	StaleReservationAfter time.Duration `yaml:"stale_reservation_after"`
	// Eligibility 是 CEL 表达式，可用变量: status, payment, delivery, items
	Eligibility string `yaml:"eligibility"`
}

type DeliveryConfig struct {
	ActivationValidity time.Duration `yaml:"activation_validity"`
	ActivateTillLayout string        `yaml:"activate_till_layout"`
	CodeTemplate       string        `yaml:"code_template"`
}

type DatabaseConfig struct {
	// Driver 取值 sqlite 或 mysql
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type LogConfig struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Console    bool   `yaml:"console"`
}

type TracingConfig struct {
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LockConfig struct {
	// Backend 取值 none、redis 或 zookeeper
	Backend          string        `yaml:"backend"`
	RedisAddr        string        `yaml:"redis_addr"`
	ZookeeperServers []string      `yaml:"zookeeper_servers"`
	Key              string        `yaml:"key"`
	TTL              time.Duration `yaml:"ttl"`
}

// Default 返回一份带默认值的配置，必填项留空等待文件或环境变量补齐。
func Default() *Config {
	return &Config{
		Market: MarketConfig{
			BaseURL:        defaultMarketBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Worker: WorkerConfig{
			PollInterval:          defaultPollInterval,
			BatchSize:             20,
			OrderTimeout:          defaultOrderTimeout,
			StaleReservationAfter: defaultStaleReservation,
			Eligibility:           defaultEligibility,
		},
		Delivery: DeliveryConfig{
			ActivationValidity: defaultActivation,
			ActivateTillLayout: defaultActivateLayout,
			CodeTemplate:       DefaultCodeTemplate,
		},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			DSN:         defaultSQLitePath,
			BusyTimeout: defaultBusyTimeout,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Console:    true,
		},
		Metrics: MetricsConfig{Addr: defaultMetricsAddr},
		Kafka:   KafkaConfig{Topic: defaultKafkaTopic},
		Lock: LockConfig{
			Backend: "none",
			Key:     defaultLockKey,
			TTL:     defaultLockTTL,
		},
	}
}

// Load 依次应用默认值、YAML 文件（path 为空时跳过）和环境变量，最后做校验。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置，密钥类参数通常只通过环境变量注入。
func (c *Config) applyEnv() error {
	c.Market.BaseURL = getEnv("MARKET_BASE_URL", c.Market.BaseURL)
	c.Market.APIToken = getEnv("MARKET_API_TOKEN", c.Market.APIToken)
	c.Market.BusinessID = getEnv("MARKET_BUSINESS_ID", c.Market.BusinessID)
	c.Market.CampaignID = getEnv("MARKET_CAMPAIGN_ID", c.Market.CampaignID)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_PATH", c.Database.DSN)
	c.Log.Path = getEnv("LOG_PATH", c.Log.Path)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Tracing.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", c.Tracing.JaegerEndpoint)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)
	c.Lock.Backend = getEnv("LOCK_BACKEND", c.Lock.Backend)
	c.Lock.RedisAddr = getEnv("REDIS_ADDR", c.Lock.RedisAddr)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	if servers := getEnv("ZOOKEEPER_SERVERS", ""); servers != "" {
		c.Lock.ZookeeperServers = splitList(servers)
	}

	var err error
	if c.Market.RequestTimeout, err = durationEnv("MARKET_REQUEST_TIMEOUT", c.Market.RequestTimeout); err != nil {
		return err
	}
	if c.Worker.PollInterval, err = durationEnv("WORKER_POLL_INTERVAL", c.Worker.PollInterval); err != nil {
		return err
	}
	if v := getEnv("WORKER_BATCH_SIZE", ""); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return errors.Wrapf(convErr, "invalid WORKER_BATCH_SIZE %q", v)
		}
		c.Worker.BatchSize = n
	}
	return nil
}

// Validate 一次性报告所有缺失或非法的配置项。
func (c *Config) Validate() error {
	var problems []string
	if c.Market.BaseURL == "" {
		problems = append(problems, "market.base_url is required")
	}
	if c.Market.APIToken == "" {
		problems = append(problems, "market.api_token (MARKET_API_TOKEN) is required")
	}
	if c.Market.BusinessID == "" {
		problems = append(problems, "market.business_id (MARKET_BUSINESS_ID) is required")
	}
	if c.Market.CampaignID == "" {
		problems = append(problems, "market.campaign_id (MARKET_CAMPAIGN_ID) is required")
	}
	if c.Market.RequestTimeout <= 0 {
		problems = append(problems, "market.request_timeout must be positive")
	}
	if c.Worker.PollInterval <= 0 {
		problems = append(problems, "worker.poll_interval must be positive")
	}
	if c.Worker.BatchSize < 1 {
		problems = append(problems, "worker.batch_size must be at least 1")
	}
	if c.Worker.OrderTimeout <= 0 {
		problems = append(problems, "worker.order_timeout must be positive")
	}
	if strings.TrimSpace(c.Worker.Eligibility) == "" {
		problems = append(problems, "worker.eligibility must not be empty")
	}
	if c.Delivery.ActivationValidity <= 0 {
		problems = append(problems, "delivery.activation_validity must be positive")
	}
	if c.Delivery.ActivateTillLayout == "" {
		problems = append(problems, "delivery.activate_till_layout is required")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn (DB_PATH) is required")
	}
	switch c.Lock.Backend {
	case "", "none":
	case "redis":
		if c.Lock.RedisAddr == "" {
			problems = append(problems, "lock.redis_addr is required for the redis backend")
		}
	case "zookeeper":
		if len(c.Lock.ZookeeperServers) == 0 {
			problems = append(problems, "lock.zookeeper_servers is required for the zookeeper backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("lock.backend %q is not supported", c.Lock.Backend))
	}
	if c.Lock.Backend != "" && c.Lock.Backend != "none" && c.Lock.TTL <= 0 {
		problems = append(problems, "lock.ttl must be positive")
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
