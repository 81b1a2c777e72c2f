package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		level zerolog.Level
		ok    bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{" INFO ", zerolog.InfoLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.WarnLevel, false},
		{"loud", zerolog.WarnLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, ok := parseLevel(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.level, level)
		})
	}
}

func TestNew_VerboseEmitsDebug(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	var buf bytes.Buffer
	logger := New(&buf, Options{Verbose: true, NoColor: true})
	logger.Debug().Str("step", "guard").Msg("checking")

	assert.Contains(t, buf.String(), "checking")
	assert.Contains(t, buf.String(), "step=guard")
}

func TestNew_DefaultIsQuiet(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	var buf bytes.Buffer
	logger := New(&buf, Options{NoColor: true})
	logger.Info().Msg("hidden")

	assert.Empty(t, buf.String())
}

func TestNew_EnvOverridesVerbose(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")

	var buf bytes.Buffer
	logger := New(&buf, Options{Verbose: true, NoColor: true})
	logger.Debug().Msg("hidden")
	logger.Error().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNoColor(t *testing.T) {
	t.Setenv(EnvNoColor, "")
	t.Setenv(EnvLogNoColor, "")
	assert.False(t, NoColor())

	t.Setenv(EnvLogNoColor, "true")
	assert.True(t, NoColor())

	t.Setenv(EnvLogNoColor, "")
	t.Setenv(EnvNoColor, "1")
	assert.True(t, NoColor())
}
