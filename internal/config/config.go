package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	JWTIssuer       string
	JWTSecret       string
	JWTTTL          time.Duration
	AdminJWTSecret  string
	InternalToken   string
	WebSocketOrigin string
	Env             string
	PaymentProvider string
	DisclosureVer   string
	AMOEnabled      bool
}

func Load() (Config, error) {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, err
		}
		c.JWTTTL = d
	}
	c.AdminJWTSecret = os.Getenv("ADMIN_JWT_SECRET")
	if c.AdminJWTSecret == "" {
		c.AdminJWTSecret = c.JWTSecret
	}
	// Optional: the diagnostics endpoint stays disabled without it.
	c.InternalToken = os.Getenv("INTERNAL_TOKEN")
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	c.Env = strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Env != "development" && c.Env != "production" {
		return c, errors.New("invalid APP_ENV: use development or production")
	}
	c.PaymentProvider = strings.ToLower(strings.TrimSpace(os.Getenv("PAYMENT_PROVIDER")))
	if c.PaymentProvider == "" {
		c.PaymentProvider = "simulated"
	}
	c.DisclosureVer = os.Getenv("RISK_DISCLOSURE_VERSION")
	if c.DisclosureVer == "" {
		c.DisclosureVer = "v1"
	}
	amo := os.Getenv("AMO_ENABLED")
	if amo == "" {
		c.AMOEnabled = true
	} else {
		b, err := strconv.ParseBool(amo)
		if err != nil {
			return c, err
		}
		c.AMOEnabled = b
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
