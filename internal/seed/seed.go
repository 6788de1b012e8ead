// Package seed loads the configured roster and goods catalog into the store.
// Runs on every boot; upserts keep it idempotent.
package seed

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agentarena/internal/config"
	"agentarena/internal/errs"
	"agentarena/internal/models"
	"agentarena/internal/repository"
)

func Apply(ctx context.Context, repo repository.Repository, logger *zap.Logger, economy config.EconomyConfig, roster config.RosterConfig) error {
	modelsByID := make(map[string]config.ModelConfig, len(roster.Models))
	for _, m := range roster.Models {
		modelsByID[m.ID] = m
		if err := repo.UpsertModelBinding(ctx, &models.ModelBinding{
			ID:           m.ID,
			Name:         m.Name,
			Provider:     m.Provider,
			APIKeyEnvVar: m.APIKeyEnvVar,
		}); err != nil {
			return err
		}
	}

	for _, a := range roster.Agents {
		binding, ok := modelsByID[a.ModelID]
		if !ok {
			return errs.Validationf("agent %s references unknown model %s", a.ID, a.ModelID)
		}
		if err := repo.UpsertAgent(ctx, &models.Agent{
			ID:       a.ID,
			Name:     a.Name,
			ModelID:  a.ModelID,
			Provider: binding.Provider,
		}); err != nil {
			return err
		}
	}

	for _, g := range economy.Goods {
		if err := repo.UpsertGood(ctx, &models.Good{
			ID:             g.ID,
			Name:           g.Name,
			Unit:           g.Unit,
			ReferencePrice: decimal.NewFromFloat(g.ReferencePrice),
		}); err != nil {
			return err
		}
	}

	if logger != nil {
		logger.Info("seed applied",
			zap.Int("models", len(roster.Models)),
			zap.Int("agents", len(roster.Agents)),
			zap.Int("goods", len(economy.Goods)))
	}
	return nil
}
