package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"buildsite/pkg/fetch"
	"buildsite/pkg/logger"
)

const (
	contextKeyRequestID = "request_id"
	contextKeyToken     = "session_token"

	maxRequestIDLength = 128
)

// requestID reuses a sane inbound X-Request-ID or generates one, echoes it in
// the response and puts it on the request context so backend calls carry it
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			id := strings.TrimSpace(req.Header.Get(echo.HeaderXRequestID))
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.New().String()
			}

			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.Set(contextKeyRequestID, id)
			c.SetRequest(req.WithContext(fetch.WithRequestID(req.Context(), id)))

			return next(c)
		}
	}
}

func requestIDFrom(c echo.Context) string {
	id, _ := c.Get(contextKeyRequestID).(string)
	return id
}

// requestLogger logs one line per request
func requestLogger(log logger.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]interface{}{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency,
				"remote_ip":  v.RemoteIP,
				"request_id": requestIDFrom(c),
			}

			switch {
			case v.Status >= 500:
				if v.Error != nil {
					fields["error"] = v.Error.Error()
				}
				log.ErrorWithFields("request failed", fields)
			case v.Status >= 400:
				log.WarnWithFields("request rejected", fields)
			default:
				log.InfoWithFields("request completed", fields)
			}
			return nil
		},
	})
}

// sessionGate guards admin paths with a cookie presence check. API calls get
// a 401 JSON body, page requests are redirected to the login page. The token
// is validated by the backend on each admin call, not here.
func sessionGate(cookieName, loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			isAPI := path == "/api/admin" || strings.HasPrefix(path, "/api/admin/")
			isPage := path == "/admin" || strings.HasPrefix(path, "/admin/")
			if !isAPI && !isPage {
				return next(c)
			}

			if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
				c.Set(contextKeyToken, cookie.Value)
				return next(c)
			}

			if isAPI {
				return c.JSON(http.StatusUnauthorized, errorBody{Error: "authentication required"})
			}
			return c.Redirect(http.StatusFound, loginPath)
		}
	}
}

func sessionToken(c echo.Context) string {
	token, _ := c.Get(contextKeyToken).(string)
	return token
}
