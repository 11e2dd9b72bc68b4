package handler // declare the package name; contains HTTP handlers

import (
    "context"      // bounds the database ping
    "database/sql" // the relational store checked by the probe
    "net/http"     // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health returns a health-check endpoint used by load balancers and
// monitoring systems.  It answers 200 "ok" while the database responds
// and 503 otherwise.  A nil db only reports that the process is up.
func Health(db *sql.DB) echo.HandlerFunc {
    return func(c echo.Context) error {
        if db != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            if err := db.PingContext(ctx); err != nil {
                c.Logger().Warnf("health: database ping failed: %v", err)
                return c.String(http.StatusServiceUnavailable, "database unavailable")
            }
        }
        return c.String(http.StatusOK, "ok")
    }
}
