package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/huaxi/researchdb/internal/platform/auth"
)

// dataAccessPrefixes are the routes that return patient-level records.
var dataAccessPrefixes = []string{
	"/api/v1/search/",
	"/api/v1/overview",
}

// DataAccess emits one structured "data_access" event per request that can
// return patient records, recording who ran it and with what outcome.
func DataAccess(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isDataAccessPath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			rid, _ := c.Get("request_id").(string)
			ctx := req.Context()

			logger.Info().
				Str("type", "data_access").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("action", accessAction(req.Method, req.URL.Path)).
				Str("path", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Int("status", status).
				Msg("data_access")

			return err
		}
	}
}

func isDataAccessPath(path string) bool {
	for _, p := range dataAccessPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// accessAction names what the request did with patient data.
func accessAction(method, path string) string {
	switch {
	case strings.HasSuffix(path, "/export"):
		return "export"
	case strings.HasSuffix(path, "/run"):
		return "search"
	case method == http.MethodGet:
		return "read"
	default:
		return "modify"
	}
}
