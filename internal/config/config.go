package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is populated from RESERVE_* environment variables. Defaults mirror
// the recommended operating points: 5 fetch workers, 3 fetch attempts from a
// 5s base delay, 30s per attempt, 5 ledger CAS attempts with 5-50ms jitter
// under a 2.5s call budget.
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	MySQLDSN  string `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/stockreserve?parseTime=true"`
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	SettlementTopic string   `envconfig:"SETTLEMENT_TOPIC" default:"stock.settlements"`
	PriceTopic      string   `envconfig:"PRICE_TOPIC" default:"price.updates"`

	ReserveMaxAttempts int           `envconfig:"RESERVE_MAX_ATTEMPTS" default:"5"`
	ReserveBackoffMin  time.Duration `envconfig:"RESERVE_BACKOFF_MIN" default:"5ms"`
	ReserveBackoffMax  time.Duration `envconfig:"RESERVE_BACKOFF_MAX" default:"50ms"`
	ReserveCallBudget  time.Duration `envconfig:"RESERVE_CALL_BUDGET" default:"2500ms"`

	QuoteTTL        time.Duration `envconfig:"QUOTE_TTL" default:"15m"`
	NegativeTTL     time.Duration `envconfig:"NEGATIVE_TTL" default:"1h"`
	StaleWindow     time.Duration `envconfig:"STALE_WINDOW" default:"24h"`
	RefreshLeaseTTL time.Duration `envconfig:"REFRESH_LEASE_TTL" default:"2m"`
	RefreshBudget   time.Duration `envconfig:"REFRESH_BUDGET" default:"90s"`

	FetchConcurrency    int64         `envconfig:"FETCH_CONCURRENCY" default:"5"`
	FetchAttempts       int           `envconfig:"FETCH_ATTEMPTS" default:"3"`
	FetchBaseDelay      time.Duration `envconfig:"FETCH_BASE_DELAY" default:"5s"`
	FetchAttemptTimeout time.Duration `envconfig:"FETCH_ATTEMPT_TIMEOUT" default:"30s"`
	FetchMaxElapsed     time.Duration `envconfig:"FETCH_MAX_ELAPSED" default:"90s"`

	// Sources in priority order: secondary market first, retail as backup.
	SecondarySourceName string `envconfig:"SECONDARY_SOURCE_NAME" default:"xianyu"`
	SecondarySourceURL  string `envconfig:"SECONDARY_SOURCE_URL" default:"http://localhost:9301"`
	RetailSourceName    string `envconfig:"RETAIL_SOURCE_NAME" default:"pdd"`
	RetailSourceURL     string `envconfig:"RETAIL_SOURCE_URL" default:"http://localhost:9302"`

	FilterExpectedItems int     `envconfig:"FILTER_EXPECTED_ITEMS" default:"10000"`
	FilterFPRate        float64 `envconfig:"FILTER_FP_RATE" default:"0.01"`

	LogPretty bool `envconfig:"LOG_PRETTY" default:"false"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("reserve", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
