package logging

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Debug().Msg("hidden")
	log.Info().Str("device", "d1").Int("attendance", 3).Msg("synced")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "synced", line["message"])
	assert.Equal(t, "d1", line["device"])
	assert.Equal(t, float64(3), line["attendance"])
}

func TestNewConsoleDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Output: &buf})

	log.Debug().Str("device", "d1").Msg("connected")
	assert.Contains(t, buf.String(), "connected")
	assert.Contains(t, buf.String(), "device=d1")
}
