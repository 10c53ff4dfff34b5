package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flasharb.log")
	logger, err := NewLogger(LoggerOptions{Debug: true, OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Debug("debug enabled")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"debug enabled"`)
	assert.Contains(t, string(data), `"timestamp"`)

	_, err = NewLogger(LoggerOptions{Encoding: "yaml"})
	assert.Error(t, err)
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger())
	assert.Same(t, GetLogger(), GetLogger())
}
