/*
Package log provides structured logging for the artifact repository using
zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with context-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                      │          │
	│  │  - WithComponent("lifecycle")                │          │
	│  │  - WithCaller(caller)                        │          │
	│  │  - WithArtifact("model", "art-def456")       │          │
	│  │  - WithRequestID(ctx)                        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "lifecycle",                │          │
	│  │    "time": "2026-08-01T10:30:00Z",         │          │
	│  │    "message": "artifact activated"          │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF artifact activated component=lifecycle │  │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all packages in this module
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Context Loggers:
  - WithComponent: Add a subsystem name to all logs
  - WithCaller: Add the resolved tenant/user of an authorized request, or
    anonymous=true when none was presented
  - WithArtifact: Add the type and id of the artifact an operation acted on
  - WithRequestID: Add the chi-assigned request id found in a context.Context

# Usage

Initializing the logger:

	import "github.com/cuemby/relic/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("server listening")
	log.Debug("loaded type descriptor")
	log.Warn("blob lease expired before finalize")
	log.Error("failed to commit artifact update")
	log.Fatal("cannot start without a persistence gateway")

Structured logging:

	log.Logger.Info().
		Str("artifact_id", artifactID).
		Str("status", string(next)).
		Msg("artifact status transitioned")

Context loggers:

	lifecycleLog := log.WithComponent("lifecycle")
	lifecycleLog.Info().Msg("starting lifecycle engine")

	reqLog := log.WithCaller(caller).
		With().Str("request_id", middleware.GetReqID(ctx)).Logger()
	reqLog.Info().Msg("handling request")

	mutationLog := log.WithArtifact(artifact.TypeName, artifact.ID)
	mutationLog.Info().Str("event", "artifact.created").Msg("artifact event")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance initialized once at startup,
    accessible from all packages without being threaded through call sites.

Context Logger Pattern:
  - Child loggers carry fixed fields (component, caller identity, artifact,
    request id) so call sites don't repeat them on every log line. WithCaller
    and WithRequestID take the domain/stdlib types those fields actually come
    from (types.Caller, context.Context) instead of pre-extracted strings, so
    a call site can't log a tenant the caller never presented.

Structured Logging Pattern:
  - Typed fields (.Str, .Int, .Err) rather than string concatenation, so
    logs remain machine-parseable.

# Security

Never log secrets, auth tokens, or blob contents. Of the identity
headers, only the resolved tenant and user ids are logged (WithCaller);
blob payloads are logged by size only, never by value.
*/
package log
