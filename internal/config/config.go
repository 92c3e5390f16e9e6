package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv        string        `env:"APP_ENV" envDefault:"development"`
	APIAddr       string        `env:"API_ADDR" envDefault:":3000"`
	PostgresDSN   string        `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr     string        `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	JWTSigningKey string        `env:"JWT_SIGNING_KEY,notEmpty"`
	AdminTokenTTL time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"1h"`

	ProviderDriver string `env:"WA_PROVIDER_DRIVER" envDefault:"loopback"`

	QueueAttempts       int           `env:"WA_QUEUE_ATTEMPTS" envDefault:"3"`
	QueueBackoffDelayMS int           `env:"WA_QUEUE_BACKOFF_DELAY" envDefault:"1000"`
	QueueKeepComplete   int           `env:"WA_QUEUE_REMOVE_ON_COMPLETE" envDefault:"100"`
	QueueKeepFailed     int           `env:"WA_QUEUE_REMOVE_ON_FAIL" envDefault:"500"`
	QueueMoveInterval   time.Duration `env:"WA_QUEUE_MOVE_INTERVAL" envDefault:"1s"`

	WorkerCount       int `env:"WA_WORKER_CONCURRENCY" envDefault:"5"`
	RateLimitMax      int `env:"WA_RATE_LIMIT_MAX" envDefault:"10"`
	RateLimitWindowMS int `env:"WA_RATE_LIMIT_WINDOW_MS" envDefault:"1000"`
	DelayMinMS        int `env:"WA_DELAY_MIN_MS" envDefault:"2000"`
	DelayMaxMS        int `env:"WA_DELAY_MAX_MS" envDefault:"10000"`
	TypingMinMS       int `env:"WA_TYPING_MIN_MS" envDefault:"1000"`
	TypingMaxMS       int `env:"WA_TYPING_MAX_MS" envDefault:"3000"`
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// QueueBackoffDelay returns the base retry backoff as a duration.
func (c Config) QueueBackoffDelay() time.Duration { return ms(c.QueueBackoffDelayMS) }

// RateLimitWindow returns the rolling rate-limit window as a duration.
func (c Config) RateLimitWindow() time.Duration { return ms(c.RateLimitWindowMS) }

func (c Config) DelayMin() time.Duration  { return ms(c.DelayMinMS) }
func (c Config) DelayMax() time.Duration  { return ms(c.DelayMaxMS) }
func (c Config) TypingMin() time.Duration { return ms(c.TypingMinMS) }
func (c Config) TypingMax() time.Duration { return ms(c.TypingMaxMS) }
