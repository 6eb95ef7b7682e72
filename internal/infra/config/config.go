package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию клиента.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	// Локальный API слушает только loopback: он отдаёт данные сессии
	// оболочке интерфейса на этой же машине.
	APIAddr     string `envconfig:"API_ADDR" default:"127.0.0.1:8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Platform struct {
		AuthURL string `envconfig:"PLATFORM_AUTH_URL"`
		APIKey  string `envconfig:"PLATFORM_API_KEY"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Media struct {
		Endpoint  string        `envconfig:"MEDIA_ENDPOINT"`
		AccessKey string        `envconfig:"MEDIA_ACCESS_KEY"`
		SecretKey string        `envconfig:"MEDIA_SECRET_KEY"`
		Bucket    string        `envconfig:"MEDIA_BUCKET" default:"videos"`
		UseSSL    bool          `envconfig:"MEDIA_USE_SSL" default:"false"`
		URLTTL    time.Duration `envconfig:"MEDIA_URL_TTL" default:"10m"`
	} `envconfig:""`

	SessionFile string `envconfig:"SESSION_FILE" default:".clipstream/session.json"`

	Feed struct {
		Limit int `envconfig:"FEED_LIMIT" default:"50"`
		// TTL кэша ссылок держится ниже срока подписи, чтобы протухшая
		// ссылка не успела выйти наружу.
		URLCacheTTL time.Duration `envconfig:"FEED_URL_CACHE_TTL" default:"5m"`
	} `envconfig:""`

	Chat struct {
		HeartbeatEvery time.Duration `envconfig:"CHAT_HEARTBEAT_EVERY" default:"30s"`
		PollEvery      time.Duration `envconfig:"CHAT_POLL_EVERY" default:"1m"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения. Файл .env, если он есть,
// подхватывается до чтения переменных.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
