package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/infisical/go-sdk/packages/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/SyneHQ/backfill"
)

const clusterJSON = `{"CLUSTER_NAME":"orders-cluster","PROJECT_ID":"acme-data","REGION":"us-central1"}`

func TestEnvVariables(t *testing.T) {
	t.Setenv("CLUSTER_DETAILS", clusterJSON)
	v, err := EnvVariables{}.Get(context.Background(), ClusterDetailsKey)
	require.NoError(t, err)
	assert.Equal(t, clusterJSON, v)

	_, err = EnvVariables{}.Get(context.Background(), "backfill_missing_variable")
	assert.ErrorIs(t, err, ErrVariableNotFound)
}

func TestSecretVariables(t *testing.T) {
	vars := NewSecretVariables([]models.Secret{
		{SecretKey: "CLUSTER_DETAILS", SecretValue: clusterJSON},
		{SecretKey: "other", SecretValue: "x"},
	})
	v, err := vars.Get(context.Background(), ClusterDetailsKey)
	require.NoError(t, err)
	assert.Equal(t, clusterJSON, v)

	_, err = vars.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrVariableNotFound)
}

func TestSecretVariablesLookupOrder(t *testing.T) {
	vars := NewSecretVariables([]models.Secret{
		{SecretKey: "cluster_details", SecretValue: "lower"},
		{SecretKey: "Cluster_Details", SecretValue: "mixed"},
		{SecretKey: "CLUSTER_DETAILS", SecretValue: "upper"},
	})
	ctx := context.Background()

	testList := []struct {
		name string
		key  string
		want string
	}{
		{name: "exact match wins", key: "Cluster_Details", want: "mixed"},
		{name: "upper-case before lower-case", key: "cluster_DETAILS", want: "upper"},
		{name: "lower-case requested", key: "cluster_details", want: "lower"},
	}
	for _, data := range testList {
		t.Run(data.name, func(t *testing.T) {
			// repeat to rule out map iteration order
			for range 20 {
				v, err := vars.Get(ctx, data.key)
				require.NoError(t, err)
				assert.Equal(t, data.want, v)
			}
		})
	}

	only := NewSecretVariables([]models.Secret{
		{SecretKey: "Cluster_details", SecretValue: "first"},
		{SecretKey: "cluster_Details", SecretValue: "second"},
	})
	for range 20 {
		v, err := only.Get(ctx, "CLUSTER_details")
		require.NoError(t, err)
		assert.Equal(t, "first", v)
	}
}

type failingVariables struct{ err error }

func (f failingVariables) Get(context.Context, string) (string, error) { return "", f.err }

func TestChain(t *testing.T) {
	first := NewSecretVariables([]models.Secret{{SecretKey: "a", SecretValue: "from-first"}})
	second := NewSecretVariables([]models.Secret{{SecretKey: "a", SecretValue: "from-second"}, {SecretKey: "b", SecretValue: "b"}})
	chain := Chain{first, second}

	v, err := chain.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "from-first", v)

	v, err = chain.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = chain.Get(context.Background(), "c")
	assert.ErrorIs(t, err, ErrVariableNotFound)

	boom := errors.New("store unreachable")
	_, err = Chain{failingVariables{err: boom}, second}.Get(context.Background(), "b")
	assert.ErrorIs(t, err, boom)
}

func TestLoadClusterDetails(t *testing.T) {
	vars := NewSecretVariables([]models.Secret{{SecretKey: ClusterDetailsKey, SecretValue: clusterJSON}})
	cd, err := LoadClusterDetails(context.Background(), vars)
	require.NoError(t, err)
	assert.Equal(t, config.ClusterDetails{ClusterName: "orders-cluster", ProjectID: "acme-data", Region: "us-central1"}, cd)

	bad := NewSecretVariables([]models.Secret{{SecretKey: ClusterDetailsKey, SecretValue: `{"CLUSTER_NAME":"c","REGION":"r"}`}})
	_, err = LoadClusterDetails(context.Background(), bad)
	assert.ErrorIs(t, err, config.ErrInvalidClusterDetails)
	assert.Contains(t, err.Error(), "PROJECT_ID")

	_, err = LoadClusterDetails(context.Background(), Chain{})
	assert.ErrorIs(t, err, ErrVariableNotFound)
}
