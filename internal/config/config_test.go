package config

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func noFile(string) ([]byte, error) { return nil, os.ErrNotExist }

func noHome() (string, error) { return "", errors.New("no home") }

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(WithEnv(noEnv), WithFileReader(noFile), WithHomeDir(noHome))
	require.NoError(t, err)

	assert.Equal(t, DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, DefaultContextLines, cfg.ContextLines)
}

func TestLoad_FileLayer(t *testing.T) {
	read := func(path string) ([]byte, error) {
		if path == "devhub-config.json" {
			return []byte(`{"server_url":"http://example.com/api/runs/","port":9000}`), nil
		}
		return nil, os.ErrNotExist
	}

	cfg, err := Load(WithEnv(noEnv), WithFileReader(read), WithHomeDir(noHome))
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/api/runs", cfg.ServerURL) // trailing slash trimmed
	assert.Equal(t, 9000, cfg.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	read := func(string) ([]byte, error) {
		return []byte(`{"port":9000}`), nil
	}
	env := func(key string) (string, bool) {
		switch key {
		case "DEVHUB_PORT":
			return "9100", true
		case "DEVHUB_ALLOWED_ORIGINS":
			return "https://a.example, https://b.example", true
		}
		return "", false
	}

	cfg, err := Load(WithEnv(env), WithFileReader(read), WithHomeDir(noHome))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_OverrideWinsLast(t *testing.T) {
	env := func(key string) (string, bool) {
		if key == "DEVHUB_PORT" {
			return "9100", true
		}
		return "", false
	}

	cfg, err := Load(
		WithEnv(env),
		WithFileReader(noFile),
		WithHomeDir(noHome),
		WithOverride(func(c *RuntimeConfig) { c.Port = 9200 }),
	)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	read := func(string) ([]byte, error) { return []byte("{nope"), nil }

	_, err := Load(WithEnv(noEnv), WithFileReader(read), WithHomeDir(noHome))
	assert.Error(t, err)
}

func TestLoad_InvalidEnvValuesIgnored(t *testing.T) {
	env := func(key string) (string, bool) {
		if key == "DEVHUB_PORT" {
			return "not-a-number", true
		}
		return "", false
	}

	cfg, err := Load(WithEnv(env), WithFileReader(noFile), WithHomeDir(noHome))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
}
