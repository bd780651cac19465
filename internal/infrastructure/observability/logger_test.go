package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestInitLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(InitLogger("reconciler-api", "info", &buf), "webhook")

	logger.Debug().Msg("hidden")
	logger.Info().Str("event_type", "payment.succeeded").Msg("received")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reconciler-api", entry["service"])
	assert.Equal(t, "webhook", entry["component"])
	assert.Equal(t, "payment.succeeded", entry["event_type"])
	assert.Equal(t, "received", entry["message"])
}
