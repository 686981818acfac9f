package keys

import (
	"context"
	"fmt"

	infisical "github.com/infisical/go-sdk"
	"github.com/infisical/go-sdk/packages/models"
	"go.uber.org/zap"

	config "github.com/SyneHQ/backfill"
	"github.com/SyneHQ/backfill/logger"
)

// LoadInfisicalSecrets logs in with universal auth and lists the secrets
// of the configured project and environment.
func LoadInfisicalSecrets(ctx context.Context, cfg config.InfisicalConfig) ([]models.Secret, error) {
	log := logger.From(ctx).With(zap.String("project_id", cfg.ProjectID), zap.String("environment", cfg.Environment))

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          cfg.SiteURL, // empty means https://app.infisical.com
		AutoTokenRefresh: true,
	})

	if _, err := client.Auth().UniversalAuthLogin(cfg.ClientID, cfg.ClientSecret); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Infisical: %w", err)
	}

	sec, err := client.Secrets().List(infisical.ListSecretsOptions{
		ProjectID:   cfg.ProjectID,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets from Infisical: %w", err)
	}

	log.Info("infisical secrets loaded", zap.Int("count", len(sec)))
	return sec, nil
}
