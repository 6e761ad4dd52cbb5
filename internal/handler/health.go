package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"database/sql"
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness and, on /ready, whether MySQL and Redis
// answer.  Redis is optional: a nil client reports "disabled".
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client
}

// Health is the liveness probe used by load balancers.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready pings the backing stores.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	out := echo.Map{"db": "ok", "redis": "disabled"}
	status := http.StatusOK
	if err := h.DB.PingContext(ctx); err != nil {
		out["db"] = "down"
		status = http.StatusServiceUnavailable
	}
	if h.Redis != nil {
		out["redis"] = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			out["redis"] = "down"
			status = http.StatusServiceUnavailable
		}
	}
	return c.JSON(status, out)
}
