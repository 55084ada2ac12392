package config

import "github.com/kelseyhightower/envconfig"

type APIConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// Connection pool tuning; zero values keep the pgx defaults.
	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	// Shared secret for internal callers (scheduler, admin UI backend).
	InternalSecret string `envconfig:"INTERNAL_SECRET" required:"true"`

	// Per-recipient daily send ceiling across all channels.
	MaxSendsPerDay int `envconfig:"MAX_SENDS_PER_DAY" default:"5"`

	// Channel credentials kept in env; WhatsApp/email sender identity live
	// in the integration_settings table instead.
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	SendgridAPIKey   string `envconfig:"SENDGRID_API_KEY"`

	AppBaseURL string `envconfig:"APP_BASE_URL" default:"https://app.tanbih.sa"`

	// AWS / SQS (async dispatch triggers)
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`

	// Provider pacing (local token buckets, not the per-recipient quota)
	TelegramRPS   float64 `envconfig:"TELEGRAM_RPS" default:"25"`
	TelegramBurst int     `envconfig:"TELEGRAM_BURST" default:"5"`
	WhatsAppRPS   float64 `envconfig:"WHATSAPP_RPS" default:"5"`
	WhatsAppBurst int     `envconfig:"WHATSAPP_BURST" default:"3"`
}

type WorkerConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// Connection pool tuning; zero values keep the pgx defaults.
	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	MaxSendsPerDay int `envconfig:"MAX_SENDS_PER_DAY" default:"5"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	SendgridAPIKey   string `envconfig:"SENDGRID_API_KEY"`

	AppBaseURL string `envconfig:"APP_BASE_URL" default:"https://app.tanbih.sa"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"300"`

	// Provider pacing (local token buckets, not the per-recipient quota)
	TelegramRPS   float64 `envconfig:"TELEGRAM_RPS" default:"25"`
	TelegramBurst int     `envconfig:"TELEGRAM_BURST" default:"5"`
	WhatsAppRPS   float64 `envconfig:"WHATSAPP_RPS" default:"5"`
	WhatsAppBurst int     `envconfig:"WHATSAPP_BURST" default:"3"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
