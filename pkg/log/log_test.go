package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/relic/pkg/types"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestInitRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	Info("should be filtered")
	assert.Empty(t, buf.String())

	Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestWithArtifactAddsTypeAndID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	WithArtifact("model", "art-1").Info().Msg("transitioned")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "model", entry["artifact_type"])
	assert.Equal(t, "art-1", entry["artifact_id"])
}

func TestWithCallerDistinguishesAnonymous(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	WithCaller(types.Caller{Anonymous: true}).Info().Msg("request")
	var anon map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &anon))
	assert.Equal(t, true, anon["anonymous"])
	assert.NotContains(t, anon, "tenant_id")

	buf.Reset()
	WithCaller(types.Caller{TenantID: "acme", UserID: "u1"}).Info().Msg("request")
	var named map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &named))
	assert.Equal(t, "acme", named["tenant_id"])
	assert.Equal(t, "u1", named["user_id"])
}

func TestWithRequestIDReadsChiMiddlewareContext(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	assert.Equal(t, Logger, WithRequestID(context.Background()))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-789")
	WithRequestID(ctx).Info().Msg("handled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-789", entry["request_id"])
}

func TestErrorfIncludesErr(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	Errorf("commit failed", assert.AnError)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}
