package logger

import (
	"os"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestEnabledOrdersBySeverity(t *testing.T) {
	assert.True(t, Enabled("INFO", "DEBUG"))
	assert.True(t, Enabled("INFO", "INFO"))
	assert.False(t, Enabled("DEBUG", "INFO"))
	assert.True(t, Enabled("FATAL", "ERROR"))
}

func TestFromEnvPrefersDriverSpecificVar(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("TYPEDRIVER_LOG_LEVEL", "WARN")
	assert.Equal(t, "WARN", FromEnv())
}

func TestFromEnvFallsBackToGenericVar(t *testing.T) {
	os.Unsetenv("TYPEDRIVER_LOG_LEVEL")
	t.Setenv("LOG_LEVEL", "ERROR")
	assert.Equal(t, "ERROR", FromEnv())
}

func TestFromEnvDefaultsToInfo(t *testing.T) {
	os.Unsetenv("TYPEDRIVER_LOG_LEVEL")
	os.Unsetenv("LOG_LEVEL")
	assert.Equal(t, "INFO", FromEnv())
}

func TestFromEnvIgnoresUnknownLevel(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")
	t.Setenv("TYPEDRIVER_LOG_LEVEL", "VERBOSE")
	assert.Equal(t, "INFO", FromEnv())
}

func TestFormatServiceNameTruncatesLongNames(t *testing.T) {
	name := formatServiceName("a-very-long-service-name-indeed")
	assert.Equal(t, ServiceNameWidth, utf8.RuneCountInString(name))
	assert.Contains(t, name, "…")
}

func TestFormatServiceNamePadsShortNames(t *testing.T) {
	name := formatServiceName("go")
	assert.Len(t, name, ServiceNameWidth)
}

func TestNewReadsMinLevelFromEnvOnce(t *testing.T) {
	t.Setenv("TYPEDRIVER_LOG_LEVEL", "ERROR")
	l := New("test-service")
	assert.Equal(t, "ERROR", l.minLevel)
}

func TestWithFieldsDoesNotPanic(t *testing.T) {
	l := New("test-service")
	ctx := l.WithFields(map[string]string{"database": "people"})
	assert.NotPanics(t, func() {
		ctx.Info("connected")
		ctx.Warn("retrying")
		ctx.Error("failed")
		ctx.Debug("details")
	})
}
