package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/SyneHQ/backfill"
)

func TestNewDefaults(t *testing.T) {
	cluster := config.ClusterDetails{ClusterName: "orders-cluster", ProjectID: "acme-data", Region: "us-central1"}
	def, err := New(cluster)
	require.NoError(t, err)

	assert.Equal(t, "orders_backfilling_dag", def.DagID)
	assert.Equal(t, []string{"dev"}, def.Tags)
	assert.Equal(t, "", def.Schedule)
	assert.False(t, def.Catchup)
	assert.Equal(t, time.Date(2024, 12, 14, 0, 0, 0, 0, time.UTC), def.StartDate)
	assert.Equal(t, DefaultArgs{Owner: "airflow", Retries: 1, RetryDelay: 5 * time.Minute}, def.DefaultArgs)
	assert.Equal(t, Param{Default: "NA", Type: "string", Description: "Execution date in yyyymmdd format"}, def.Params[ParamExecutionDate])
	assert.Equal(t, cluster, def.Cluster)
	assert.Equal(t, config.DefaultMainPythonFileURI, def.MainPythonFileURI)
}

func TestNewMissingProjectFails(t *testing.T) {
	_, err := config.ParseClusterDetails([]byte(`{"CLUSTER_NAME":"orders-cluster","REGION":"us-central1"}`))
	require.ErrorIs(t, err, config.ErrInvalidClusterDetails)

	def, err := New(config.ClusterDetails{ClusterName: "orders-cluster", Region: "us-central1"})
	assert.Nil(t, def)
	assert.ErrorIs(t, err, config.ErrInvalidClusterDetails)
	assert.Contains(t, err.Error(), "missing key PROJECT_ID")
	assert.NotContains(t, err.Error(), "CLUSTER_NAME")
}

func TestNewFromConfig(t *testing.T) {
	cluster := config.ClusterDetails{ClusterName: "c", ProjectID: "p", Region: "r"}
	def, err := New(cluster, FromConfig(config.WorkflowConfig{
		Retries:    2,
		RetryDelay: time.Minute,
		Schedule:   "@daily",
	})...)
	require.NoError(t, err)
	assert.Equal(t, 2, def.DefaultArgs.Retries)
	assert.Equal(t, time.Minute, def.DefaultArgs.RetryDelay)
	assert.Equal(t, "@daily", def.Schedule)
	assert.Equal(t, config.DefaultMainPythonFileURI, def.MainPythonFileURI)

	_, err = New(cluster, WithRetries(-1))
	assert.Error(t, err)
}
