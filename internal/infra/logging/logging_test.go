//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-otp-marketplace/internal/config"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		dev  bool
		want string
	}{
		{in: "+919800000001", want: "+91********01"},
		{in: "+15550001234", want: "+15*******34"},
		{in: "12345", want: "***"},
		{in: "+919800000001", dev: true, want: "+919800000001"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.in, tt.dev), tt.in)
	}
}

func TestWith_ContextFields(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	var buf bytes.Buffer
	base := newLogger(&buf, config.LogConfig{Level: "debug", Format: "json"}, false)

	ctx := WithTgID(WithTraceID(context.Background(), "abc-123"), 42)
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc-123", line["trace_id"])
	assert.EqualValues(t, 42, line["tg_id"])
	assert.Equal(t, "hello", line["message"])

	buf.Reset()
	With(context.Background(), base).Info().Msg("bare")
	line = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "trace_id")
	assert.NotContains(t, line, "tg_id")
}

func TestNew_LevelFallback(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	var buf bytes.Buffer
	l := newLogger(&buf, config.LogConfig{Level: "loud", Format: "json"}, false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	l.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}
