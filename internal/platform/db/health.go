package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check is one storage dependency reported by the health endpoint.
type Check struct {
	Name  string
	Ping  func(ctx context.Context) error
	Stats func() any
}

// PoolCheck reports on a pgx pool.
func PoolCheck(name string, pool *pgxpool.Pool) Check {
	return Check{
		Name:  name,
		Ping:  pool.Ping,
		Stats: func() any { return GetPoolStats(pool) },
	}
}

// HealthHandler pings every check and answers 503 if any fails.
func HealthHandler(checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]any, len(checks))
		for _, chk := range checks {
			entry := map[string]any{"status": "healthy"}
			if chk.Ping != nil {
				if err := chk.Ping(ctx); err != nil {
					entry["status"] = "unhealthy"
					entry["error"] = err.Error()
					status = http.StatusServiceUnavailable
				}
			}
			if chk.Stats != nil {
				entry["stats"] = chk.Stats()
			}
			results[chk.Name] = entry
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		return c.JSON(status, map[string]any{
			"status": overall,
			"checks": results,
		})
	}
}
