package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	VerificationOTP  = "otp"
	VerificationLink = "link"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	JWTSecret                  string `env:"JWT_SECRET,required,notEmpty"`
	JWTSessionTTLMinutes       int    `env:"JWT_SESSION_TTL_MINUTES" envDefault:"300"`
	VerificationStrategy       string `env:"VERIFICATION_STRATEGY" envDefault:"otp"`
	VerificationLinkTTLMinutes int    `env:"VERIFICATION_LINK_TTL_MINUTES" envDefault:"5"`
	ResetTokenTTLMinutes       int    `env:"RESET_TOKEN_TTL_MINUTES" envDefault:"15"`
	VoteConfirmation           bool   `env:"VOTE_CONFIRMATION" envDefault:"false"`

	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	EmailTimeout         time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`
	OTPRateWindowMinutes int           `env:"OTP_RATE_WINDOW_MINUTES" envDefault:"10"`
	OTPRateMax           int           `env:"OTP_RATE_MAX" envDefault:"3"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Polling API"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normaliza y revisa valores que env no puede validar por sí solo.
func (c *Config) Validate() error {
	c.VerificationStrategy = strings.ToLower(strings.TrimSpace(c.VerificationStrategy))
	switch c.VerificationStrategy {
	case VerificationOTP, VerificationLink:
	default:
		return fmt.Errorf("config: unknown VERIFICATION_STRATEGY %q", c.VerificationStrategy)
	}
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	if c.JWTSessionTTLMinutes <= 0 {
		return fmt.Errorf("config: JWT_SESSION_TTL_MINUTES must be positive")
	}
	return nil
}
