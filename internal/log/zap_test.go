package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func resetLogger(t *testing.T) {
	t.Helper()
	l = nil
	t.Cleanup(func() { l = nil })
}

func TestLoggerBeforeSetupIsNop(t *testing.T) {
	resetLogger(t)

	lg := Logger()
	require.NotNil(t, lg)
	lg.Info("dropped")
	assert.NoError(t, lg.SetLevel("debug"))
}

func TestSetupZapLoggerWritesFile(t *testing.T) {
	resetLogger(t)

	lOpts := &LogOpts{
		Level:    "info",
		File:     true,
		FileName: filepath.Join(t.TempDir(), "test.log"),
	}
	require.NoError(t, SetupZapLogger(lOpts))

	for i := 0; i < 10; i++ {
		Logger().Info("test", zap.Int("i", i))
	}
	Logger().Close()

	fi, err := os.Stat(lOpts.FileName)
	require.NoError(t, err, "Test log file is not found")
	assert.Positive(t, fi.Size())
	assert.Equal(t, defaultMaxSize, lOpts.MaxFileSizeMB)
	assert.Equal(t, defaultMaxBackups, lOpts.MaxBackups)
	assert.Equal(t, defaultMaxAge, lOpts.MaxAgeDays)
}

func TestSetupZapLoggerRejectsUnknownLevel(t *testing.T) {
	resetLogger(t)

	err := SetupZapLogger(&LogOpts{Level: "verbose"})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestSetLevel(t *testing.T) {
	resetLogger(t)
	require.NoError(t, SetupZapLogger(GetDefaultLogOpts()))

	named := Logger().Named("probe")
	assert.False(t, named.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Logger().SetLevel("debug"))
	assert.True(t, named.Core().Enabled(zapcore.DebugLevel), "named loggers share the level")

	assert.Error(t, Logger().SetLevel("loud"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"fatal", zapcore.FatalLevel, false},
		{"trace", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
