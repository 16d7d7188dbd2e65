package log

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cuemby/relic/pkg/types"
)

// Logger is the global logger instance, set by Init and read by every
// package-level helper in this file.
var Logger zerolog.Logger

// Level names the severities Init understands. It is a string, not a
// zerolog.Level, so config.FromFlags can parse it straight out of a
// flag value without importing zerolog itself.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init. Output defaults to os.Stdout when nil; tests
// set it to a buffer to assert on emitted log lines.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init builds the global Logger from cfg. An unrecognized Level falls
// back to InfoLevel rather than erroring, since a bad flag value should
// never keep the server from starting.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent scopes the global logger to a subsystem name, e.g.
// "lifecycle" or "server", so every line it emits carries that field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithCaller scopes the global logger to the identity that authorized
// a request. Anonymous callers are logged as such rather than with
// empty tenant/user fields, so a log line never implies a tenant that
// the request didn't actually present.
func WithCaller(caller types.Caller) zerolog.Logger {
	ctx := Logger.With().Bool("anonymous", caller.Anonymous)
	if caller.Anonymous {
		return ctx.Logger()
	}
	return ctx.Str("tenant_id", caller.TenantID).Str("user_id", caller.UserID).Logger()
}

// WithArtifact scopes the global logger to the artifact a lifecycle
// operation acted on. artifactType and artifactID travel together
// because an id alone is ambiguous without knowing which registered
// type it belongs to.
func WithArtifact(artifactType, artifactID string) zerolog.Logger {
	return Logger.With().Str("artifact_type", artifactType).Str("artifact_id", artifactID).Logger()
}

// WithRequestID scopes the global logger to the request id chi's
// middleware.RequestID assigned to ctx. A ctx with no request id
// (requests outside that middleware chain, background goroutines)
// returns the global logger unscoped rather than logging an empty
// field.
func WithRequestID(ctx context.Context) zerolog.Logger {
	id := middleware.GetReqID(ctx)
	if id == "" {
		return Logger
	}
	return Logger.With().Str("request_id", id).Logger()
}

func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

// Errorf logs msg at error level with err attached as the structured
// "error" field. Despite the name it takes no format verbs; the name
// mirrors the sibling Info/Debug/Warn/Error helpers above it.
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
