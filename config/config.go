package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName      string `env:"AUTH_APP_NAME" envDefault:"auth-service"`
	AppEnv       string `env:"AUTH_APP_ENV" envDefault:"local"`
	HTTPHost     string `env:"AUTH_HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort     string `env:"AUTH_HTTP_PORT" envDefault:"8081"`
	HTTPBasePath string `env:"AUTH_HTTP_BASE_PATH" envDefault:"/api/v1"`

	DBHost     string `env:"AUTH_DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"AUTH_DB_PORT" envDefault:"5432"`
	DBUser     string `env:"AUTH_DB_USER" envDefault:"app"`
	DBPassword string `env:"AUTH_DB_PASSWORD" envDefault:"app_password"`
	DBName     string `env:"AUTH_DB_NAME" envDefault:"authdb"`
	DBSSLMode  string `env:"AUTH_DB_SSLMODE" envDefault:"disable"`

	RedisAddr     string `env:"AUTH_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"AUTH_REDIS_PASSWORD"`
	RedisDB       int    `env:"AUTH_REDIS_DB" envDefault:"0"`

	// Access and refresh tokens are signed with distinct secrets so one
	// cannot be forged from material of the other.
	JWTAccessSecret  string        `env:"AUTH_JWT_ACCESS_SECRET"`
	JWTRefreshSecret string        `env:"AUTH_JWT_REFRESH_SECRET"`
	JWTAudience      string        `env:"AUTH_JWT_AUDIENCE" envDefault:"frontend"`
	JWTIssuer        string        `env:"AUTH_JWT_ISSUER" envDefault:"auth-service"`
	AccessTTL        time.Duration `env:"AUTH_JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL       time.Duration `env:"AUTH_JWT_REFRESH_TTL" envDefault:"168h"`

	OtpTTL         time.Duration `env:"AUTH_OTP_TTL" envDefault:"5m"`
	OtpLength      int           `env:"AUTH_OTP_LENGTH" envDefault:"6"`
	OtpMaxAttempts int           `env:"AUTH_OTP_MAX_ATTEMPTS" envDefault:"5"`

	WalletSignDomain string        `env:"AUTH_WALLET_SIGN_DOMAIN" envDefault:"auth-service"`
	WalletNonceTTL   time.Duration `env:"AUTH_WALLET_NONCE_TTL" envDefault:"5m"`

	PasskeyRPID          string        `env:"AUTH_PASSKEY_RP_ID" envDefault:"localhost"`
	PasskeyRPDisplayName string        `env:"AUTH_PASSKEY_RP_DISPLAY_NAME" envDefault:"Auth Service"`
	PasskeyRPOrigins     []string      `env:"AUTH_PASSKEY_RP_ORIGINS" envSeparator:"," envDefault:"http://localhost:4005"`
	PasskeyChallengeTTL  time.Duration `env:"AUTH_PASSKEY_CHALLENGE_TTL" envDefault:"5m"`

	OAuthStateMaxAge time.Duration `env:"AUTH_OAUTH_STATE_MAX_AGE" envDefault:"10m"`

	NotifierURL     string        `env:"AUTH_NOTIFIER_URL"`
	NotifierTimeout time.Duration `env:"AUTH_NOTIFIER_TIMEOUT" envDefault:"5s"`

	NATSURL                string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSValidateSubject    string `env:"NATS_SUBJECT_VALIDATE_SESSION" envDefault:"auth.validateSession"`
	NATSUserCreatedSubject string `env:"NATS_SUBJECT_USER_CREATED" envDefault:"auth.user-created"`

	SessionCleanupInterval time.Duration `env:"AUTH_SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	DefaultRole string `env:"AUTH_DEFAULT_ROLE" envDefault:"user"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
