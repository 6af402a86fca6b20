package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, FormatText)
	logger.SetOutput(&buf)

	logger.Debug("drop me")
	logger.Info("drop me too")
	logger.Warn("keep me")
	logger.Error("and me")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "keep me")
	assert.Contains(t, lines[1], "and me")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.WithField("address", "wallet1").WithError(errors.New("boom")).Info("snapshot degraded")

	var entry struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry.Level)
	assert.Equal(t, "snapshot degraded", entry.Message)
	assert.Equal(t, "wallet1", entry.Fields["address"])
	assert.Equal(t, "boom", entry.Fields["error"])
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(LevelInfo, FormatJSON)
	parent.SetOutput(&buf)

	child := parent.WithField("k", "v")
	require.NotSame(t, parent, child)
	assert.Empty(t, parent.fields)
	assert.Equal(t, "v", child.fields["k"])
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	logger := NewLogger(LevelDebug, FormatText)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLogLevel("nonsense"))
}
