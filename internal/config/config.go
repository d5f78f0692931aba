package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// App is the runtime configuration for cmd/api and cmd/notifier.
type App struct {
	HTTPAddr   string `envconfig:"HTTP_ADDR" default:"0.0.0.0:8431"`
	PathPrefix string `envconfig:"HTTP_PATH_PREFIX" default:"/gym-api"`

	// Storage is "postgres" or "memory". Memory keeps everything in process.
	Storage string `envconfig:"STORAGE" default:"postgres"`

	TokenIssuer     string        `envconfig:"TOKEN_ISSUER" default:"gym-api"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"720h"`
	// SigningKeyFile points to a PEM encoded RSA private key. Empty generates one per process.
	SigningKeyFile string `envconfig:"SIGNING_KEY_FILE"`

	InviteTTL time.Duration `envconfig:"INVITE_TTL" default:"168h"`
	InviteURL string        `envconfig:"INVITE_URL" default:"http://localhost:5173/accept-invite"`

	RateLimit RateLimit

	// RedisAddr selects the shared rate limiter store when set.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// RabbitURL enables event publishing when set.
	RabbitURL        string `envconfig:"RABBIT_URL"`
	RabbitExchange   string `envconfig:"RABBIT_EXCHANGE" default:"gym.events"`
	RabbitQueue      string `envconfig:"RABBIT_QUEUE" default:"gym.notifications"`
	RabbitDeadLetter string `envconfig:"RABBIT_DEAD_LETTER_EXCHANGE"`

	SMTP SMTP

	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

type RateLimit struct {
	MaxAttempts int           `envconfig:"LOGIN_MAX_ATTEMPTS" default:"5"`
	Window      time.Duration `envconfig:"LOGIN_WINDOW" default:"15m"`
	Block       time.Duration `envconfig:"LOGIN_BLOCK" default:"1h"`
}

type SMTP struct {
	Host     string `envconfig:"SMTP_HOST"`
	Port     int    `envconfig:"SMTP_PORT" default:"587"`
	Username string `envconfig:"SMTP_USERNAME"`
	Password string `envconfig:"SMTP_PASSWORD"`
	From     string `envconfig:"SMTP_FROM" default:"no-reply@gym.local"`
}

// Load reads a .env file if present, then the process environment.
func Load() (App, error) {
	// best-effort: missing .env is fine
	_ = godotenv.Load()

	var c App
	if err := envconfig.Process("", &c); err != nil {
		return App{}, fmt.Errorf("load config: %w", err)
	}
	if c.Storage != "postgres" && c.Storage != "memory" {
		return App{}, fmt.Errorf("load config: STORAGE must be postgres or memory, got %q", c.Storage)
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return App{}, fmt.Errorf("load config: ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return c, nil
}
