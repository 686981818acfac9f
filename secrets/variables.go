package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/infisical/go-sdk/packages/models"

	config "github.com/SyneHQ/backfill"
)

// ClusterDetailsKey names the variable holding the cluster JSON document.
const ClusterDetailsKey = "cluster_details"

var ErrVariableNotFound = errors.New("variable not found")

// Variables is a read-only key/value store for workflow variables.
type Variables interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvVariables reads variables from the process environment under their
// upper-cased key, e.g. cluster_details from CLUSTER_DETAILS.
type EnvVariables struct{}

func (EnvVariables) Get(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(strings.ToUpper(key))
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrVariableNotFound, key)
	}
	return v, nil
}

// SecretVariables serves variables out of Infisical secrets. A key is looked
// up as given, then upper-cased, then lower-cased, then by the first secret
// whose key matches case-insensitively.
type SecretVariables struct {
	secrets map[string]string
	keys    []string
}

func NewSecretVariables(secrets []models.Secret) *SecretVariables {
	sv := &SecretVariables{secrets: make(map[string]string, len(secrets))}
	for _, s := range secrets {
		if _, ok := sv.secrets[s.SecretKey]; !ok {
			sv.keys = append(sv.keys, s.SecretKey)
		}
		sv.secrets[s.SecretKey] = s.SecretValue
	}
	return sv
}

func (s *SecretVariables) Get(_ context.Context, key string) (string, error) {
	for _, k := range []string{key, strings.ToUpper(key), strings.ToLower(key)} {
		if v, ok := s.secrets[k]; ok {
			return v, nil
		}
	}
	for _, k := range s.keys {
		if strings.EqualFold(k, key) {
			return s.secrets[k], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrVariableNotFound, key)
}

// Chain asks each source in order and returns the first hit.
type Chain []Variables

func (c Chain) Get(ctx context.Context, key string) (string, error) {
	for _, v := range c {
		val, err := v.Get(ctx, key)
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, ErrVariableNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrVariableNotFound, key)
}

// LoadClusterDetails reads and validates the cluster_details variable.
func LoadClusterDetails(ctx context.Context, vars Variables) (config.ClusterDetails, error) {
	raw, err := vars.Get(ctx, ClusterDetailsKey)
	if err != nil {
		return config.ClusterDetails{}, err
	}
	return config.ParseClusterDetails([]byte(raw))
}
