package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthConfig reports which external dependencies are configured.
// A dependency counts as configured when its credentials are present;
// the health endpoint does not probe the remote services themselves.
type HealthConfig struct {
	StorageConfigured    bool
	OpenRouterConfigured bool
	OpenAIConfigured     bool
	CohereConfigured     bool
}

// healthHandler reports overall service health and per-dependency
// configuration status. Status is "healthy" only when every dependency
// is configured, "degraded" otherwise.
func healthHandler(cfg HealthConfig, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		services := map[string]string{
			"storage":    configuredLabel(cfg.StorageConfigured),
			"openrouter": configuredLabel(cfg.OpenRouterConfigured),
			"openai":     configuredLabel(cfg.OpenAIConfigured),
			"cohere":     configuredLabel(cfg.CohereConfigured),
		}

		status := "healthy"
		for _, s := range services {
			if s != "configured" {
				status = "degraded"
				break
			}
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"status":   status,
			"services": services,
		}, logger)
	})
}

func configuredLabel(ok bool) string {
	if ok {
		return "configured"
	}
	return "not_configured"
}

// readiness reports database reachability for orchestration probes.
// Returns 503 when the pool is absent or unreachable.
func readiness(pool *pgxpool.Pool, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no database"}, logger)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			logger.Warn("readiness ping failed", "error", err)
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unreachable"}, logger)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	})
}
