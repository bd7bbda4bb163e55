package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	// EmptyAcquires counts acquires that had to wait for a free connection.
	EmptyAcquires int64 `json:"empty_acquires"`
	// CanceledAcquires counts acquires abandoned because the caller's
	// context ended first.
	CanceledAcquires int64 `json:"canceled_acquires"`
	Saturated        bool  `json:"saturated"`
	Healthy          bool  `json:"healthy"`
}

func statsFrom(stat *pgxpool.Stat) *PoolStats {
	return &PoolStats{
		TotalConns:       stat.TotalConns(),
		IdleConns:        stat.IdleConns(),
		AcquiredConns:    stat.AcquiredConns(),
		MaxConns:         stat.MaxConns(),
		AcquireCount:     stat.AcquireCount(),
		AcquireDuration:  stat.AcquireDuration().String(),
		EmptyAcquires:    stat.EmptyAcquireCount(),
		CanceledAcquires: stat.CanceledAcquireCount(),
		Saturated:        stat.MaxConns() > 0 && stat.AcquiredConns() >= stat.MaxConns(),
		Healthy:          stat.TotalConns() > 0,
	}
}

// Checker is what the health endpoint inspects.
type Checker interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

type poolChecker struct {
	pool *pgxpool.Pool
}

func (p poolChecker) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
func (p poolChecker) Stats() *PoolStats { return statsFrom(p.pool.Stat()) }

// HealthHandler reports database reachability and pool pressure for pool.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return CheckHandler(poolChecker{pool: pool})
}

// CheckHandler answers 503 when the ping fails. A reachable database whose
// pool has no free connection is reported as degraded with 200, since
// session writes queue behind it.
func CheckHandler(chk Checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := chk.Ping(ctx)
		stats := chk.Stats()
		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}

		status := "healthy"
		if stats.Saturated {
			status = "degraded"
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": status,
			"pool":   stats,
		})
	}
}
