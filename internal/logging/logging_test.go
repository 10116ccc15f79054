package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONCarriesPrefix(t *testing.T) {
	var buf bytes.Buffer
	log := New("client", Options{Format: "json", Out: &buf})

	log.WithField("lineNo", 3).Warn("Line 3 is not valid JSON")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "client", entry["prefix"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, float64(3), entry["lineNo"])
}

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New("server", Options{Level: "warn", Out: &buf})

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.True(t, strings.Contains(buf.String(), "shown"))
}

func TestNewBadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New("server", Options{Level: "loud", Out: &buf})

	log.Debug("hidden")
	log.Info("visible")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}
