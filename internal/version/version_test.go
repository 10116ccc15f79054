package version

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	str := String()
	assert.True(t, strings.HasPrefix(str, "ride-booking-ingest "), str)
	assert.Contains(t, str, "commit "+GitCommit)
}

func TestInfo(t *testing.T) {
	info := Info()

	for _, field := range []string{"name", "version", "gitCommit", "buildTime", "goVersion"} {
		assert.Contains(t, info, field)
	}
	assert.Equal(t, "ride-booking-ingest", info["name"])
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["goVersion"])
}

func TestInfoJSON(t *testing.T) {
	jsonData, err := json.Marshal(Info())
	require.NoError(t, err)

	var unmarshaled map[string]string
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, "ride-booking-ingest", unmarshaled["name"])
}

func TestUserAgent(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	assert.Equal(t, "ride-booking-ingest/1.2.3", UserAgent())
}
