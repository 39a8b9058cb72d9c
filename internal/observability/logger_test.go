package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCLILogger_DefaultIsNop(t *testing.T) {
	assert.NotNil(t, CLILogger)
	assert.NotPanics(t, func() { CLILogger.Info("ignored") })
}

func TestInitCLILogger_File(t *testing.T) {
	orig := CLILogger
	t.Cleanup(func() { CLILogger = orig })

	path := filepath.Join(t.TempDir(), "nimbusurf.log")
	require.NoError(t, InitCLILogger("nimbusurf", "debug", path))

	CLILogger.Debug("listing refreshed", zap.String("uri", "gs://b/"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	require.NotEmpty(t, line)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "listing refreshed", entry["msg"])
	assert.Equal(t, "gs://b/", entry["uri"])
	assert.Equal(t, "nimbusurf", entry["logger"])
}

func TestInitCLILogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	orig := CLILogger
	t.Cleanup(func() { CLILogger = orig })

	path := filepath.Join(t.TempDir(), "nimbusurf.log")
	require.NoError(t, InitCLILogger("nimbusurf", "chatty", path))

	CLILogger.Debug("hidden")
	CLILogger.Info("shown")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}
