package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValidWithConfigFile(t *testing.T) {
	cfg := Default()
	cfg.Store.ConfigFile = "/etc/authgate/rules.json"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadListenPort(t *testing.T) {
	cfg := Default()
	cfg.Store.ConfigFile = "/etc/authgate/rules.json"
	cfg.Listen.Port = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsRedisBackendWithoutURL(t *testing.T) {
	cfg := Default()
	cfg.Store.ConfigFile = "/etc/authgate/rules.json"
	cfg.Cache.Backend = "redis"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsAdminEnabledWithoutCredentials(t *testing.T) {
	cfg := Default()
	cfg.Store.ConfigFile = "/etc/authgate/rules.json"
	cfg.Admin.Enabled = true
	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsAdminEnabledWithSessionRoles(t *testing.T) {
	cfg := Default()
	cfg.Store.ConfigFile = "/etc/authgate/rules.json"
	cfg.Admin.Enabled = true
	cfg.Admin.SessionRoles = []string{"admin"}
	require.NoError(t, cfg.Validate())
}

func TestAdminMountedRequiresPostgresBackend(t *testing.T) {
	cfg := Default()
	cfg.Admin.Enabled = true
	cfg.Store.Backend = "json"
	require.False(t, cfg.AdminMounted())

	cfg.Store.Backend = "postgres"
	require.True(t, cfg.AdminMounted())

	cfg.Admin.Enabled = false
	require.False(t, cfg.AdminMounted())
}
