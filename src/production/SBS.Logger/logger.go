package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	config "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Config"
)

// Logger wraps zerolog.Logger with additional functionality
type Logger struct {
	*zerolog.Logger
	file *os.File
}

// NewLogger creates a new logger based on configuration. Output goes to stdout
// and, when configured, to a log file.
func NewLogger(cfg *config.LoggingConfig) *Logger {
	// Set log level
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var file *os.File
	var fileErr error
	if cfg.File != "" {
		file, fileErr = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	}

	writers := []io.Writer{}
	if cfg.Format == "json" {
		writers = append(writers, os.Stdout)
		if file != nil {
			writers = append(writers, file)
		}
	} else {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		if file != nil {
			writers = append(writers, zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true})
		}
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	l := &Logger{Logger: &log.Logger, file: file}
	if fileErr != nil {
		l.Logger.Warn().Err(fileErr).Str("path", cfg.File).Msg("Failed to open log file, logging to stdout only")
	} else if file != nil {
		l.Logger.Debug().Str("path", cfg.File).Msg("Logging to file")
	}
	return l
}

// NewWithWriter creates a JSON logger writing to w, leaving the global logger untouched
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{Logger: &logger}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	logger := zerolog.Nop()
	return &Logger{Logger: &logger}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	logger := l.Logger.With().Interface(key, value).Logger()
	return &Logger{Logger: &logger, file: l.file}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	context := l.Logger.With()
	for key, value := range fields {
		context = context.Interface(key, value)
	}
	logger := context.Logger()
	return &Logger{Logger: &logger, file: l.file}
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	logger := l.Logger.With().Err(err).Logger()
	return &Logger{Logger: &logger, file: l.file}
}

// WithSession adds the generator session ID to the logger
func (l *Logger) WithSession(sessionID string) *Logger {
	logger := l.Logger.With().Str("session_id", sessionID).Logger()
	return &Logger{Logger: &logger, file: l.file}
}

// WithComponent adds a component name to the logger
func (l *Logger) WithComponent(component string) *Logger {
	logger := l.Logger.With().Str("component", component).Logger()
	return &Logger{Logger: &logger, file: l.file}
}

// FatalWithError logs a fatal message with error and exits
func (l *Logger) FatalWithError(err error, msg string) {
	l.Logger.Fatal().Err(err).Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.Logger.Error().Msg(msg)
}

// ErrorWithError logs an error message with error
func (l *Logger) ErrorWithError(err error, msg string) {
	l.Logger.Error().Err(err).Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.Logger.Warn().Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.Logger.Info().Msg(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.Logger.Debug().Msg(msg)
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
