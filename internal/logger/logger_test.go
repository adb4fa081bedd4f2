package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer

	log := New(&buf, false)
	log.Debug().Msg("hidden")
	log.Info().Str("variant", "dev").Msg("Build started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "dev", line["variant"])
	assert.Equal(t, "Build started", line["message"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer

	log := New(&buf, true)
	log.Debug().Msg("State transition")

	assert.Contains(t, buf.String(), "State transition")
	assert.Contains(t, buf.String(), "DBG")
}
