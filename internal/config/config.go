package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required values are enforced by must(); the
// remaining values fall back to defaults suitable for local development.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for password hashing

    AMQPURL string // RabbitMQ broker for moderation events; empty disables publishing

    Realtime RealtimeConfig
    Storage  StorageConfig
    Log      LogConfig
}

// RealtimeConfig tunes the presence tracker and the unread counter.
type RealtimeConfig struct {
    PresenceChannel    string        // shared presence channel name
    PresenceHeartbeat  time.Duration // how often a connected session re-announces itself
    UnreadPollInterval time.Duration // floor polling interval of the unread counter
}

// Load reads configuration values from environment variables and returns a
// Config.  Missing required variables cause the program to exit with a
// fatal log message.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),                   // environment (dev/test/prod)
        Port:           must("APP_PORT"),                  // port to bind the HTTP server
        DBUser:         must("DB_USER"),                   // database user
        DBPass:         os.Getenv("DB_PASS"),              // database password (empty allowed)
        DBHost:         must("DB_HOST"),                   // database host
        DBPort:         must("DB_PORT"),                   // database port
        DBName:         must("DB_NAME"),                   // database name
        JWTSecret:      must("JWT_SECRET"),                // secret used for signing JWTs
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),   // TTL for access tokens in minutes
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"), // TTL for refresh tokens in days
        BcryptCost:     mustInt("BCRYPT_COST"),            // bcrypt cost factor
        AMQPURL:        amqpURL(),
        Realtime:       LoadRealtimeConfig(),
        Storage:        LoadStorageConfig(),
        Log:            LoadLogConfig(),
    }
}

// LoadRealtimeConfig reads the realtime tuning knobs.
func LoadRealtimeConfig() RealtimeConfig {
    cfg := RealtimeConfig{
        PresenceChannel:    envStr("PRESENCE_CHANNEL", "online-users"),
        PresenceHeartbeat:  envDur("PRESENCE_HEARTBEAT", 20*time.Second),
        UnreadPollInterval: envDur("UNREAD_POLL_INTERVAL", 15*time.Second),
    }
    if cfg.PresenceHeartbeat < time.Second {
        cfg.PresenceHeartbeat = time.Second
    }
    if cfg.UnreadPollInterval < time.Second {
        cfg.UnreadPollInterval = time.Second
    }
    return cfg
}

// amqpURL accepts both RABBITMQ_URL and AMQP_URL.
func amqpURL() string {
    if v := os.Getenv("RABBITMQ_URL"); v != "" {
        return v
    }
    return os.Getenv("AMQP_URL")
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
