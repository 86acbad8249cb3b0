package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobals(t *testing.T) {
	prevLogger := Logger
	prevStd := log.Logger
	prevCtx := zerolog.DefaultContextLogger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		Logger = prevLogger
		log.Logger = prevStd
		zerolog.DefaultContextLogger = prevCtx
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestCtxFallsBackToProcessLogger(t *testing.T) {
	resetGlobals(t)
	Init(Config{Level: "debug"})

	require.NotNil(t, zerolog.DefaultContextLogger)
	assert.NotEqual(t, zerolog.Disabled, Ctx(context.Background()).GetLevel())

	var buf bytes.Buffer
	Logger = zerolog.New(&buf)

	Ctx(context.Background()).Warn().Msg("dropped delivery")
	assert.Contains(t, buf.String(), "dropped delivery")
}

func TestCtxPrefersContextLogger(t *testing.T) {
	resetGlobals(t)
	Init(Config{Level: "debug"})

	var buf bytes.Buffer
	scoped := zerolog.New(&buf).With().Str("request_id", "r-1").Logger()
	ctx := scoped.WithContext(context.Background())

	Ctx(ctx).Info().Msg("scoped event")
	assert.Contains(t, buf.String(), "r-1")
}

func TestInitDefaultsBadLevelToInfo(t *testing.T) {
	resetGlobals(t)
	Init(Config{Level: "chatty"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
