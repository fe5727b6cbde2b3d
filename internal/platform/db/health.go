package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/medvertical/records-sub011/internal/platform/telemetry"
)

// ReadinessHandler reports whether the service can do useful work: the
// checkpoint database answers a ping and persistence is not degraded.
// A nil pool (in-memory checkpoint mode) skips the database check.
func ReadinessHandler(pool *pgxpool.Pool, tel *telemetry.Provider) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]interface{}{"status": "ready"}

		if pool != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				body["status"] = "unavailable"
				body["database"] = err.Error()
				return c.JSON(http.StatusServiceUnavailable, body)
			}
			stat := pool.Stat()
			body["pool"] = map[string]interface{}{
				"total_conns": stat.TotalConns(),
				"idle_conns":  stat.IdleConns(),
				"max_conns":   stat.MaxConns(),
			}
		}

		// Checkpoint persistence failures degrade rather than fail the
		// service; the job keeps running in memory.
		if tel != nil && tel.PersistenceDegraded() {
			body["status"] = "degraded"
			body["checkpoint_persistence"] = "failing"
		}
		return c.JSON(http.StatusOK, body)
	}
}
