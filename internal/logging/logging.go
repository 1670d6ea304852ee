package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saltyorg/routedb/internal/config"
)

const (
	DefaultLogFilePath = "routedb.log"
	DefaultMaxSizeMB   = 50
	DefaultMaxBackups  = 5
	DefaultMaxAgeDays  = 30
)

// Apply sets the global log level and output writers (console + rotating file).
// verbosity raises the configured level: 1 is debug, 2 or more is trace.
func Apply(cfg config.LogConfig, verbosity int) {
	applyLevel(cfg.Level, verbosity)
	applyOutputs(os.Stdout, cfg)
}

// Level returns the zerolog level for a configured level name
func Level(level string, verbosity int) zerolog.Level {
	switch {
	case verbosity >= 2 || level == "trace":
		return zerolog.TraceLevel
	case verbosity == 1 || level == "debug":
		return zerolog.DebugLevel
	case level == "warn":
		return zerolog.WarnLevel
	case level == "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func applyLevel(level string, verbosity int) {
	zerolog.SetGlobalLevel(Level(level, verbosity))
}

func applyOutputs(console io.Writer, cfg config.LogConfig) {
	maxSize := DefaultMaxSizeMB
	maxBackups := DefaultMaxBackups
	maxAgeDays := DefaultMaxAgeDays

	if cfg.MaxSizeMB > 0 {
		maxSize = cfg.MaxSizeMB
	}
	if cfg.MaxBackups >= 0 {
		maxBackups = cfg.MaxBackups
	}
	if cfg.MaxAgeDays >= 0 {
		maxAgeDays = cfg.MaxAgeDays
	}

	consoleOutput := zerolog.ConsoleWriter{Out: console, TimeFormat: "2006-01-02 15:04:05"}
	log.Logger = zerolog.New(consoleOutput).With().Timestamp().Logger()

	// "-" disables the log file
	if cfg.File == "-" {
		return
	}

	logFilePath := cfg.File
	if logFilePath == "" {
		logFilePath = DefaultLogFilePath
	}

	if err := ensureLogDir(logFilePath); err != nil {
		log.Error().Err(err).Str("path", logFilePath).Msg("Failed to prepare log directory; logging to console only")
		return
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   cfg.Compress,
	}

	fileConsole := zerolog.ConsoleWriter{
		Out:        fileWriter,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}

	multi := zerolog.MultiLevelWriter(consoleOutput, fileConsole)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
