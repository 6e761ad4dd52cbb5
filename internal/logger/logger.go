// Package logger routes the standard library logger to stdout and a
// size-rotated file.
package logger

import (
    "fmt"
    "io"
    "log"
    "os"
    "path/filepath"

    "gopkg.in/natefinch/lumberjack.v2"

    "github.com/iliyamo/secondhand-market/internal/config"
)

// Setup points the standard logger at stdout and LOG_DIR/<name>.log.
// The returned closer flushes and closes the rotating file.
func Setup(cfg config.LogConfig, name string) (io.Closer, error) {
    if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
        return nil, fmt.Errorf("create log directory: %w", err)
    }
    rotating := NewRotatingWriter(cfg, name)
    log.SetOutput(io.MultiWriter(os.Stdout, rotating))
    log.SetFlags(log.Ldate | log.Ltime | log.LUTC | log.Lshortfile)
    log.Printf("logging initialized: writing to %s", rotating.Filename)
    return rotating, nil
}

// NewRotatingWriter returns a lumberjack writer for LOG_DIR/<name>.log.
// The audit consumer uses it for its own file.
func NewRotatingWriter(cfg config.LogConfig, name string) *lumberjack.Logger {
    return &lumberjack.Logger{
        Filename:   filepath.Join(cfg.Directory, name+".log"),
        MaxSize:    cfg.MaxSizeMB,
        MaxBackups: cfg.MaxBackups,
        MaxAge:     cfg.MaxAgeDays,
        Compress:   cfg.Compress,
    }
}
