package utils

import (
	"testing"

	logger "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() { SetupLogger("info", "text") })

	SetupLogger("WARN", "json")
	assert.Equal(t, logger.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logger.JSONFormatter{}, logger.StandardLogger().Formatter)

	SetupLogger("nonsense", "")
	assert.Equal(t, logger.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logger.TextFormatter{}, logger.StandardLogger().Formatter)
}
