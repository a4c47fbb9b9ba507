package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{DataSource: DataSourceConfig{Driver: "postgres"}}
	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	cnf = Configuration{DataSource: DataSourceConfig{Driver: "redis"}}
	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	cnf = Configuration{DataSource: DataSourceConfig{Driver: "mongodb", Dns: "x"}}
	assert.Error(t, cnf.validateAndAddDefaults())

	cnf = Configuration{DataSource: DataSourceConfig{Driver: " Memory "}}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, "memory", cnf.DataSource.Driver)
	assert.Equal(t, "Ledger Server", cnf.ProjectName)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, 10*time.Second, cnf.Ledger.OperationTimeout())
	assert.Equal(t, int32(DEFAULT_PRECISION), cnf.Ledger.Precision)
	assert.Equal(t, 5*time.Second, cnf.Ledger.TotalBalanceCacheTTL())
	assert.Equal(t, time.Hour, cnf.Reconciliation.Interval())
	assert.Equal(t, 5*time.Minute, cnf.Reconciliation.LockTTL())
	assert.Equal(t, DEFAULT_WEBHOOK_QUEUE, cnf.Notification.Webhook.Queue)
	assert.Nil(t, cnf.RateLimit.RequestsPerSecond)
}

func TestValidateAndAddDefaults_RateLimit(t *testing.T) {
	rps := 10.0
	cnf := Configuration{DataSource: DataSourceConfig{Driver: "memory"}, RateLimit: RateLimitConfig{RequestsPerSecond: &rps}}
	require.NoError(t, cnf.validateAndAddDefaults())
	require.NotNil(t, cnf.RateLimit.Burst)
	assert.Equal(t, 20, *cnf.RateLimit.Burst)

	burst := 8
	cnf = Configuration{DataSource: DataSourceConfig{Driver: "memory"}, RateLimit: RateLimitConfig{Burst: &burst}}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, 4.0, *cnf.RateLimit.RequestsPerSecond)
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "ledger.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource:  DataSourceConfig{Driver: "sqlite3", Dns: "file:ledger.db"},
		Ledger:      LedgerConfig{Precision: 3},
	}
	require.NoError(t, json.NewEncoder(tmpFile).Encode(sampleConfig))
	tmpFile.Close()

	t.Setenv("LEDGER_PROJECT_NAME", "Env Project")
	t.Setenv("LEDGER_OPERATION_TIMEOUT_SEC", "3")

	require.NoError(t, loadConfigFromFile(tmpFile.Name()))

	loadedConfig, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "Env Project", loadedConfig.ProjectName)
	assert.Equal(t, "file:ledger.db", loadedConfig.DataSource.Dns)
	assert.Equal(t, int32(3), loadedConfig.Ledger.Precision)
	assert.Equal(t, 3*time.Second, loadedConfig.Ledger.OperationTimeout())
}

func TestInitConfig_EnvOnly(t *testing.T) {
	t.Setenv("LEDGER_DATA_SOURCE_DRIVER", "memory")

	require.NoError(t, InitConfig("does-not-exist.json"))
	loadedConfig, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "memory", loadedConfig.DataSource.Driver)
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{ProjectName: "mock"})
	c, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "mock", c.ProjectName)
}
