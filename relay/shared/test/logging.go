package test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/pennsieve/sftp-relay-service/shared/logging"
	"github.com/stretchr/testify/require"
)

// SetLogLevel sets the log level for a test and restores the original level once the test is complete.
// For example, if you want to avoid a lot of Info logging in a test do
// SetLogLevel(t, slog.LevelError)
func SetLogLevel(t *testing.T, level slog.Level) {
	originalLogLevel := logging.Level.Level()
	logging.Level.Set(level)
	t.Cleanup(func() {
		logging.Level.Set(originalLogLevel)
	})
}

// LogCapture is a JSON logger writing into memory, for tests that assert on what was logged.
type LogCapture struct {
	Logger *slog.Logger
	buffer *bytes.Buffer
}

func NewLogCapture() *LogCapture {
	buffer := &bytes.Buffer{}
	return &LogCapture{
		Logger: logging.New(buffer, slog.LevelDebug),
		buffer: buffer,
	}
}

// Records decodes each captured JSON line.
func (c *LogCapture) Records(t *testing.T) []map[string]any {
	var records []map[string]any
	decoder := json.NewDecoder(bytes.NewReader(c.buffer.Bytes()))
	for decoder.More() {
		var record map[string]any
		require.NoError(t, decoder.Decode(&record))
		records = append(records, record)
	}
	return records
}

// RecordsAt returns the captured records at the given level with the given message.
func (c *LogCapture) RecordsAt(t *testing.T, level slog.Level, msg string) []map[string]any {
	var matching []map[string]any
	for _, r := range c.Records(t) {
		if r[slog.LevelKey] == level.String() && r[slog.MessageKey] == msg {
			matching = append(matching, r)
		}
	}
	return matching
}
