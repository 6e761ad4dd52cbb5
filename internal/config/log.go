package config

// LogConfig controls where process logs go and how the file is rotated.
type LogConfig struct {
    Directory  string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool
}

// LoadLogConfig reads LOG_* variables.
func LoadLogConfig() LogConfig {
    return LogConfig{
        Directory:  envStr("LOG_DIR", "logs"),
        MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 10),
        MaxBackups: envInt("LOG_MAX_BACKUPS", 30),
        MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 90),
        Compress:   envBool("LOG_COMPRESS", true),
    }
}
