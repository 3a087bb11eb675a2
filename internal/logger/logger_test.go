package logger_test

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"client_go/internal/logger"
)

func TestNew(t *testing.T) {
	t.Run("FileSink", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "zchat.log")
		log, err := logger.New("debug", "file:"+path)
		require.NoError(t, err)
		log.Info("hello")
		assert.NoError(t, log.Sync())
		assert.FileExists(t, path)
	})

	t.Run("UnknownSink", func(t *testing.T) {
		_, err := logger.New("info", "syslog")
		assert.Error(t, err)
	})

	t.Run("EmptyFilePath", func(t *testing.T) {
		_, err := logger.New("info", "file:")
		assert.Error(t, err)
	})
}

func TestSafeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Accept", "application/json")

	out := logger.SafeHeaders(h)
	assert.Contains(t, out, "Authorization=<redacted>")
	assert.Contains(t, out, "Accept=application/json")
	assert.NotContains(t, out, "secret")
}
