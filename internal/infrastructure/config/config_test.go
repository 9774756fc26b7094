package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/playerbank/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, 5*time.Minute, cfg.WealthyTTL)
	assert.Equal(t, 20, cfg.WealthyLimit)
	assert.Equal(t, "info", cfg.LogLevel)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityUUIDMajor, mode)
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("IDENTITY_MODE", "name")
	t.Setenv("CURRENCIES", `[{"id":"crowns","name_singular":"crown","name_plural":"crowns"}]`)
	t.Setenv("REMOTE_PROFILES", `[{"type":"sql","id":"sql-main","parameters":{"url":"postgres://localhost/bank"}}]`)

	cfg, err := Load()
	require.NoError(t, err)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityNameMajor, mode)

	currencies, err := cfg.Currencies()
	require.NoError(t, err)
	require.Len(t, currencies, 1)
	assert.Equal(t, "crowns", currencies[0].ID)

	profiles, err := cfg.RemoteProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "sql", profiles[0].Type)
	assert.Equal(t, "sql-main", profiles[0].ID)
}

func TestConfigRejectsMalformedDocuments(t *testing.T) {
	t.Setenv("CURRENCIES", `{`)

	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.Currencies()
	assert.Error(t, err)
}

func TestConfigRejectsUnknownMode(t *testing.T) {
	t.Setenv("IDENTITY_MODE", "sideways")

	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.Mode()
	assert.ErrorIs(t, err, domain.ErrInvalidIdentityMode)
}
