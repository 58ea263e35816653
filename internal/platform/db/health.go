package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
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
	Healthy         bool   `json:"healthy"`
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
		Healthy:         stat.TotalConns() > 0,
	}
}

// probe is the subset of *pgxpool.Pool the health check needs.
type probe interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthHandler reports database reachability, pool statistics and which of
// the reference tables exist in schema. A missing table is reported but does
// not make the check fail; the dataset loader decides which tables are
// required.
func HealthHandler(pool *pgxpool.Pool, schema string, tables []string) echo.HandlerFunc {
	return healthHandler(pool, func() *PoolStats { return GetPoolStats(pool) }, schema, tables)
}

func healthHandler(p probe, stats func() *PoolStats, schema string, tables []string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		st := stats()
		if err := p.Ping(ctx); err != nil {
			st.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   st,
			})
		}

		present, err := tablesPresent(ctx, p, schema, tables)
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   st,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"schema": schema,
			"tables": present,
			"pool":   st,
		})
	}
}

// tablesPresent checks each table with to_regclass.
func tablesPresent(ctx context.Context, p probe, schema string, tables []string) (map[string]bool, error) {
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		qualified, err := QualifiedTable(schema, t)
		if err != nil {
			return nil, err
		}
		var ok bool
		if err := p.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, qualified).Scan(&ok); err != nil {
			return nil, err
		}
		present[t] = ok
	}
	return present, nil
}
