package logs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestLogger(t *testing.T) {
	dir := t.TempDir()
	console := false
	conf, err := json.Marshal(LoggerConfig{
		Filename:   filepath.Join(dir, "app.log"),
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
		Level:      -1,
		Console:    &console,
	})
	require.NoError(t, err)
	Init(conf)

	Log.Info("This is an info message")
	Log.Warn("This is a warning message")
	GetLogger("chat").Debug("module message", String("model", "test"))
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "This is an info message")
	assert.Contains(t, string(data), `"module":"chat"`)
}

func TestGetLoggerDefaults(t *testing.T) {
	SetLogger(nil)
	l := GetLogger("default")
	assert.NotNil(t, l)
	SetLogger(zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)))
	t.Cleanup(func() { SetLogger(nil) })
	Info("after swap", ErrorInfo(nil))
}

func TestErrorInfoSkipsNil(t *testing.T) {
	f := ErrorInfo(nil)
	assert.Equal(t, zap.Skip(), f)
}
