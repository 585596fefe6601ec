// Package config loads application configuration from environment
// variables.  A .env file, when present, is read by cmd/server before
// Load is called.
package config

import (
    "log"
    "os"
    "strconv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env            string // APP_ENV (dev, test, prod)
    Port           string // APP_PORT
    DBUser         string // DB_USER
    DBPass         string // DB_PASS, may be empty
    DBHost         string // DB_HOST
    DBPort         string // DB_PORT
    DBName         string // DB_NAME
    JWTSecret      string // JWT_SECRET
    AccessTTLMin   int    // ACCESS_TOKEN_TTL_MIN
    RefreshTTLDays int    // REFRESH_TOKEN_TTL_DAYS
    BcryptCost     int    // BCRYPT_COST

    Notify NotifyConfig
}

// NotifyConfig controls how reservation notifications leave the server.
// With RabbitMQURL empty, notifications are delivered inline instead of
// through the broker.  Mail is sent only when SMTPHost, SMTPPort and
// SMTPFrom are all set; an append-only log under LogDir is always kept.
type NotifyConfig struct {
    RabbitMQURL string // RABBITMQ_URL (or AMQP_URL)
    SMTPHost    string // SMTP_HOST
    SMTPPort    string // SMTP_PORT
    SMTPUser    string // SMTP_USER
    SMTPPass    string // SMTP_PASS
    SMTPFrom    string // SMTP_FROM
    LogDir      string // NOTIFY_LOG_DIR, default "logs"
    TimeoutSec  int    // NOTIFY_TIMEOUT_SEC, default 10
    RunConsumer bool   // NOTIFY_CONSUMER, default true
}

// Load reads configuration values from environment variables and returns a
// Config.  Missing required variables stop the program.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"),
        DBHost:         must("DB_HOST"),
        DBPort:         must("DB_PORT"),
        DBName:         must("DB_NAME"),
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     mustInt("BCRYPT_COST"),
        Notify:         LoadNotifyConfig(),
    }
}

// LoadNotifyConfig reads the optional notification settings.
func LoadNotifyConfig() NotifyConfig {
    url := os.Getenv("RABBITMQ_URL")
    if url == "" {
        url = os.Getenv("AMQP_URL")
    }
    return NotifyConfig{
        RabbitMQURL: url,
        SMTPHost:    os.Getenv("SMTP_HOST"),
        SMTPPort:    envStr("SMTP_PORT", "587"),
        SMTPUser:    os.Getenv("SMTP_USER"),
        SMTPPass:    os.Getenv("SMTP_PASS"),
        SMTPFrom:    os.Getenv("SMTP_FROM"),
        LogDir:      envStr("NOTIFY_LOG_DIR", "logs"),
        TimeoutSec:  envInt("NOTIFY_TIMEOUT_SEC", 10),
        RunConsumer: envBool("NOTIFY_CONSUMER", true),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
