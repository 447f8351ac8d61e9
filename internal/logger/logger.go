package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Brownie44l1/damage-api/internal/config"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	logRotationTime = 24 * time.Hour
	logMaxAge       = 7 * 24 * time.Hour
)

// InitLogger configures the global zerolog logger from cfg. The returned
// closer releases the rotating log file, if one was opened.
func InitLogger(cfg *config.Config) (io.Closer, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stdout
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "02-01-2006 15:04:05.000 -0700"}
	}

	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		rl, err := rotatelogs.New(
			cfg.LogFile+"_%Y%m%d",
			rotatelogs.WithLinkName(cfg.LogFile),
			rotatelogs.WithRotationTime(logRotationTime),
			rotatelogs.WithMaxAge(logMaxAge),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open rotating log %s: %w", cfg.LogFile, err)
		}
		// files always get JSON lines regardless of the console format
		out = zerolog.MultiLevelWriter(out, rl)
		closer = rl
	}

	log.Logger = New(out, cfg.ServiceName)
	log.Info().Str("level", level.String()).Str("format", cfg.LogFormat).Msg("logger initialized")
	return closer, nil
}

// New builds a logger writing to w, tagged with the service name.
func New(w io.Writer, service string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("service", service).Logger()
}

func parseLevel(level string) (zerolog.Level, error) {
	switch level {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("incorrect log level %s", level)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
