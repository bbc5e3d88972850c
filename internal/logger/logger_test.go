package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLogLevel("warning"))
	assert.Equal(t, FATAL, ParseLogLevel("fatal"))
	assert.Equal(t, INFO, ParseLogLevel("verbose"))
}

func TestPackageFunctionsUseDefaultLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := defaultLogger
	SetDefaultLogger(NewWithCore(core))
	t.Cleanup(func() { defaultLogger = prev })

	Debug("hidden %d", 1)
	Info("campaign %s approved", "c-1")
	With(zap.String("tx_hash", "0xabc")).Error("reconciliation required")

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "campaign c-1 approved", entries[0].Message)
		assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
		assert.Equal(t, "0xabc", entries[1].ContextMap()["tx_hash"])
	}
}

type fileConfig struct{}

func (fileConfig) GetLevel() string  { return "info" }
func (fileConfig) GetOutput() string { return "file" }
func (fileConfig) GetFile() string   { return "" }

func TestInitRejectsFileOutputWithoutPath(t *testing.T) {
	assert.Error(t, Init(fileConfig{}))
}
