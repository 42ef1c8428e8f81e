package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger() {
	_ = Configure(Options{Level: "info", Encoding: "console"})
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer resetLogger()

	SetVerbose(false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("test message %s", "arg")

	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "test message arg")
}

func TestDebug_WhenNotVerbose(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("test message")

	assert.Zero(t, buf.Len(), "expected no output when verbose is disabled")
}

func TestSection(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Section("Sync")

	assert.Contains(t, buf.String(), "=== Sync ===")
}

func TestInfoAndWarn_AlwaysLogged(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("connection %s active", "c1")
	Warn("provider %s slow", "fitbit")
	Error("failed: %v", "boom")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "connection c1 active")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "ERROR")
}

func TestSecurity_JSON(t *testing.T) {
	defer resetLogger()

	require.NoError(t, Configure(Options{Encoding: "json"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	Security("webhook signature rejected", "provider", "github")

	out := buf.String()
	assert.Contains(t, out, `"security":true`)
	assert.Contains(t, out, `"provider":"github"`)
	assert.Contains(t, out, `"msg":"webhook signature rejected"`)
}

func TestConfigure_InvalidLevel(t *testing.T) {
	defer resetLogger()

	err := Configure(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestConfigure_File(t *testing.T) {
	defer resetLogger()

	path := filepath.Join(t.TempDir(), "engine.log")
	require.NoError(t, Configure(Options{Level: "debug", File: path, MaxSizeMB: 1}))
	assert.True(t, IsVerbose())

	Info("written to file")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
