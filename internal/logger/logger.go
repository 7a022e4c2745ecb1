package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Options controls where and how log lines are written.
type Options struct {
	Level   string    // debug, info, warn, error
	JSON    bool      // plain JSON lines instead of the console writer
	File    string    // optional log file written alongside the primary output
	Out     io.Writer // primary output, defaults to stdout
	NoColor bool
}

// Initialize sets up the global logger for console output at the given level.
func Initialize(logLevel string) {
	if err := Configure(Options{Level: logLevel}); err != nil {
		log.Error().Err(err).Msg("Failed to configure logger")
	}
}

// Configure sets up the global logger with appropriate configuration
func Configure(opts Options) error {
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var output io.Writer = out
	if !opts.JSON {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
			NoColor:    opts.NoColor,
		}
	}

	if opts.File != "" {
		file, err := FileWriter(opts.File)
		if err != nil {
			return err
		}
		output = zerolog.MultiLevelWriter(output, file)
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	// Replace standard log with zerolog
	log.Logger = Logger
	return nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(logLevel string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter returns a writer to a log file for optional use alongside console logging
func FileWriter(path string) (io.Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return file, nil
}
