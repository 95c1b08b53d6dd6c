package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	DBDSN              string
	RedisAddr          string
	CustodianURL       string
	CustodianAPIKey    string
	CustodianTimeout   time.Duration
	InternalToken      string
	WebSocketOrigin    string
	Mode               string
	FeeCacheTTL        time.Duration
	SettlePollInterval time.Duration
	ExpirySweepEvery   time.Duration
	HoldingsMaxRetries int
}

func Load() (Config, error) {
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
	c.CustodianURL = os.Getenv("CUSTODIAN_URL")
	if c.CustodianURL == "" {
		missing = append(missing, "CUSTODIAN_URL")
	}
	c.CustodianAPIKey = os.Getenv("CUSTODIAN_API_KEY")
	if c.CustodianAPIKey == "" {
		missing = append(missing, "CUSTODIAN_API_KEY")
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	// Optional: without redis, last-trade prices are served from the DB.
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.Mode = strings.ToLower(strings.TrimSpace(os.Getenv("MODE")))
	if c.Mode == "" {
		c.Mode = "development"
	}
	if c.Mode != "development" && c.Mode != "production" {
		return c, errors.New("invalid MODE: use development or production")
	}
	var err error
	if c.CustodianTimeout, err = durationEnv("CUSTODIAN_TIMEOUT", 10*time.Second); err != nil {
		return c, err
	}
	if c.FeeCacheTTL, err = durationEnv("FEE_CACHE_TTL", time.Minute); err != nil {
		return c, err
	}
	if c.SettlePollInterval, err = durationEnv("SETTLE_POLL_INTERVAL", 15*time.Second); err != nil {
		return c, err
	}
	if c.ExpirySweepEvery, err = durationEnv("EXPIRY_SWEEP_EVERY", time.Minute); err != nil {
		return c, err
	}
	retriesRaw := strings.TrimSpace(os.Getenv("HOLDINGS_MAX_RETRIES"))
	if retriesRaw == "" {
		c.HoldingsMaxRetries = 5
	} else {
		n, err := strconv.Atoi(retriesRaw)
		if err != nil || n < 1 {
			return c, errors.New("invalid HOLDINGS_MAX_RETRIES")
		}
		c.HoldingsMaxRetries = n
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return d, nil
}
