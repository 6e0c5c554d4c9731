package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Creation(t *testing.T) {
	enabledTopics = map[string]bool{"plateau": true}

	enabledLog := New("plateau")
	disabledLog := New("mc")

	assert.True(t, enabledLog.Enabled(), "Logger for enabled topic should be enabled")
	assert.False(t, disabledLog.Enabled(), "Logger for disabled topic should be disabled")
}

func TestLogger_AllTopics(t *testing.T) {
	setTopics("all")
	defer setTopics("")

	assert.True(t, New("grid").Enabled(), "All topics should be enabled with wildcard")
	assert.True(t, New("wf").Enabled(), "All topics should be enabled with wildcard")
}

func TestSetTopics_CommaSeparated(t *testing.T) {
	setTopics(" grid , wf,,")
	defer setTopics("")

	assert.True(t, New("grid").Enabled())
	assert.True(t, New("wf").Enabled())
	assert.False(t, New("mc").Enabled())
}

func TestLogger_NoTopics(t *testing.T) {
	setTopics("")

	log := New("anything")

	assert.False(t, log.Enabled(), "Logger should be disabled when no topics enabled")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func BenchmarkLogger_Disabled(b *testing.B) {
	enabledTopics = map[string]bool{}
	log := New("benchmark")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.Debug("test message", "key", "value", "number", 42)
	}
}

func BenchmarkLogger_Enabled(b *testing.B) {
	enabledTopics = map[string]bool{"benchmark": true}
	log := New("benchmark")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.Debug("test message", "key", "value", "number", 42)
	}
}
