package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
[catalog]
base_url = "http://catalog.example/search.aspx"
search_field = "txtLastName"
identifier_field = "txtKey"
`

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 30*time.Second, config.HTTP.RequestTimeout)
	assert.Len(t, config.Discovery.SearchSpace, 26)
	assert.Equal(t, 26, config.Discovery.MaxWorkers)
	assert.Equal(t, 3, config.Discovery.MaxConsecutiveFailures)
	assert.Equal(t, 50, config.Harvest.Concurrency)
	assert.Equal(t, 3, config.Harvest.RetryAttempts)
	assert.Equal(t, []string{"__VIEWSTATE", "__VIEWSTATEGENERATOR", "__EVENTVALIDATION"},
		config.Catalog.CriticalStateFields)
}

func TestLoadFromFiles_Minimal(t *testing.T) {
	path := writeConfig(t, "messis.toml", minimalConfig)

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "http://catalog.example/search.aspx", config.Catalog.BaseURL)
	// Details URL falls back to the base URL when unset.
	assert.Equal(t, config.Catalog.BaseURL, config.Catalog.DetailsURL)
	// Defaults survive a partial file.
	assert.Equal(t, 50, config.Harvest.Concurrency)
}

func TestLoadFromFiles_LaterFileOverrides(t *testing.T) {
	base := writeConfig(t, "base.toml", minimalConfig+`
[harvest]
concurrency = 10
`)
	override := writeConfig(t, "override.toml", `
[harvest]
concurrency = 5
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)
	assert.Equal(t, 5, config.Harvest.Concurrency)
}

func TestLoadFromFiles_MissingRequiredFields(t *testing.T) {
	path := writeConfig(t, "bad.toml", `
[catalog]
base_url = "http://catalog.example/search.aspx"
`)

	_, err := LoadFromFiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadFromFiles_InvalidURL(t *testing.T) {
	path := writeConfig(t, "bad.toml", `
[catalog]
base_url = "not a url"
search_field = "txtLastName"
identifier_field = "txtKey"
`)

	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "messis.toml", minimalConfig)

	t.Setenv("MESSIS_HARVEST_CONCURRENCY", "7")
	t.Setenv("MESSIS_LOG_LEVEL", "debug")
	t.Setenv("MESSIS_DISCOVERY_SEARCH_SPACE", "a, b ,c")
	t.Setenv("MESSIS_HTTP_REQUEST_TIMEOUT", "45s")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 7, config.Harvest.Concurrency)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, []string{"a", "b", "c"}, config.Discovery.SearchSpace)
	assert.Equal(t, 45*time.Second, config.HTTP.RequestTimeout)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/messis.toml")
	assert.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	config := NewDefaultConfig()
	assert.False(t, config.IsProduction())

	config.Environment = "production"
	assert.True(t, config.IsProduction())

	config.Environment = " PROD "
	assert.True(t, config.IsProduction())
}
