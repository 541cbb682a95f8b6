package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupIsIdempotent(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	var buf bytes.Buffer
	Setup(Config{Level: "debug", Format: FormatJSON, Output: &buf})
	Setup(Config{Level: "error", Format: FormatConsole, Output: &buf})

	l := Get()
	require.NotNil(t, l)
	assert.Equal(t, "debug", l.GetLevel().String())
}

func TestGetInitializesWithDefaults(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	l := Get()
	require.NotNil(t, l)
	assert.Equal(t, "info", l.GetLevel().String())
}

func TestSetupWritesJSONLines(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	var buf bytes.Buffer
	Setup(Config{Level: "info", Format: FormatJSON, Output: &buf})
	Get().Info().Str("book_id", "abc").Msg("scan started")

	var line map[string]interface{}
	// Setup itself logs "logger initialized" first; the event under test is
	// the last line written.
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &line))
	assert.Equal(t, "scan started", line["message"])
	assert.Equal(t, "abc", line["book_id"])
}

func TestWithAttachesStableFields(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	var buf bytes.Buffer
	Setup(Config{Level: "info", Format: FormatJSON, Output: &buf})

	child := Get().With(map[string]interface{}{"provider": "audnex"})
	child.Info().Msg("candidate fetched")

	var line map[string]interface{}
	// Setup itself logs "logger initialized" first; the event under test is
	// the last line written.
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &line))
	assert.Equal(t, "audnex", line["provider"])
}

func TestWithNilFieldsReturnsSameLogger(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	l := Get()
	assert.Same(t, l, l.With(nil))
}

func TestContextRoundTrip(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	l := Get().With(map[string]interface{}{"component": "worker"})
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	assert.Same(t, Get(), FromContext(context.Background()))
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatConsole, ParseLogFormat("console"))
	assert.Equal(t, FormatJSON, ParseLogFormat("json"))
	assert.Equal(t, FormatJSON, ParseLogFormat("unknown"))
	assert.Equal(t, "console", FormatConsole.String())
}
