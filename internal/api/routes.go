package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/internal/auth"
	"github.com/satriahrh/suara/internal/metrics"
	"github.com/satriahrh/suara/internal/recognizer"
	"github.com/satriahrh/suara/internal/websocket"
	"github.com/satriahrh/suara/usecase"
)

const claimsKey = "claims"

// RecordingService is what the routes drive
type RecordingService interface {
	StartRecording(ctx context.Context) (string, error)
	StopRecording(ctx context.Context) error
	Status() (usecase.RecordingStatus, error)
	History(ctx context.Context, limit int) ([]entities.SessionRecord, error)
	Session(ctx context.Context, id string) (*entities.SessionRecord, error)
}

// Dependencies groups what InitRoutes wires into the handlers
type Dependencies struct {
	Recording   RecordingService
	Hub         *websocket.Hub
	Tokens      *auth.TokenIssuer
	AdminSecret string
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	if deps.Metrics != nil {
		e.Use(metricsMiddleware(deps.Metrics))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "suara",
		})
	})

	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth", func(c echo.Context) error {
		return operatorAuth(c, deps.Tokens, deps.AdminSecret, logger)
	})

	secured := v1.Group("", requireOperator(deps.Tokens, logger))
	secured.POST("/recording/start", func(c echo.Context) error {
		return startRecording(c, deps.Recording, logger)
	})
	secured.POST("/recording/stop", func(c echo.Context) error {
		return stopRecording(c, deps.Recording, logger)
	})
	secured.GET("/recording", func(c echo.Context) error {
		return recordingStatus(c, deps.Recording, logger)
	})
	secured.GET("/sessions", func(c echo.Context) error {
		return listSessions(c, deps.Recording, logger)
	})
	secured.GET("/sessions/:id", func(c echo.Context) error {
		return getSession(c, deps.Recording, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		claims, ok := c.Get(claimsKey).(*auth.JWTClaims)
		if !ok {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing_token"})
		}
		return websocket.HandleWebSocketWithAuth(deps.Hub, c, claims.ClientID, logger)
	}, requireOperator(deps.Tokens, logger))
}

func operatorAuth(c echo.Context, tokens *auth.TokenIssuer, adminSecret string, logger *zap.Logger) error {
	var req AuthRequest

	// Bind and validate request
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ClientID == "" || req.Secret == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Client ID and secret are required",
		})
	}

	if adminSecret == "" || subtle.ConstantTimeCompare([]byte(req.Secret), []byte(adminSecret)) != 1 {
		logger.Warn("Operator authentication failed", zap.String("client_id", req.ClientID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid operator credentials",
		})
	}

	token, expiresAt, err := tokens.GenerateOperatorToken(req.ClientID)
	if err != nil {
		logger.Error("Failed to generate operator token",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Operator authenticated successfully", zap.String("client_id", req.ClientID))

	return c.JSON(http.StatusOK, AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  req.ClientID,
	})
}

// requireOperator validates the bearer token. The websocket route also accepts
// the token as a query parameter since browsers cannot set headers on upgrade.
func requireOperator(tokens *auth.TokenIssuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var token string
			authHeader := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
			if token == "" && c.Path() == "/ws" {
				token = c.QueryParam("token")
			}

			if token == "" {
				logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			if claims.Role != auth.RoleOperator {
				logger.Warn("Request rejected: invalid role", zap.String("role", claims.Role))
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "invalid_role",
					Message: "Only operator tokens are allowed",
				})
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func startRecording(c echo.Context, service RecordingService, logger *zap.Logger) error {
	id, err := service.StartRecording(c.Request().Context())
	if err != nil {
		return recordingError(c, err, logger)
	}
	return c.JSON(http.StatusAccepted, StartResponse{SessionID: id})
}

func stopRecording(c echo.Context, service RecordingService, logger *zap.Logger) error {
	if err := service.StopRecording(c.Request().Context()); err != nil {
		return recordingError(c, err, logger)
	}
	status, err := service.Status()
	if err != nil {
		return recordingError(c, err, logger)
	}
	return c.JSON(http.StatusAccepted, status)
}

func recordingStatus(c echo.Context, service RecordingService, logger *zap.Logger) error {
	status, err := service.Status()
	if err != nil {
		return recordingError(c, err, logger)
	}
	return c.JSON(http.StatusOK, status)
}

func listSessions(c echo.Context, service RecordingService, logger *zap.Logger) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a non-negative integer",
			})
		}
		limit = n
	}

	sessions, err := service.History(c.Request().Context(), limit)
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to list sessions",
		})
	}
	if sessions == nil {
		sessions = []entities.SessionRecord{}
	}
	return c.JSON(http.StatusOK, SessionsResponse{Sessions: sessions, Count: len(sessions)})
}

func getSession(c echo.Context, service RecordingService, logger *zap.Logger) error {
	record, err := service.Session(c.Request().Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNoSession) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Session not found",
		})
	}
	if err != nil {
		logger.Error("Failed to get session", zap.String("sessionID", c.Param("id")), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to get session",
		})
	}
	return c.JSON(http.StatusOK, record)
}

// recordingError maps controller errors onto HTTP responses
func recordingError(c echo.Context, err error, logger *zap.Logger) error {
	var configErr *domain.ConfigError
	switch {
	case errors.Is(err, domain.ErrSessionActive):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "session_active",
			Message: "A recording is already in progress",
		})
	case errors.Is(err, domain.ErrNoActiveSession):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "no_session",
			Message: "No recording is in progress",
		})
	case errors.Is(err, recognizer.ErrNotRunning), errors.Is(err, context.Canceled):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "Recognizer is shutting down",
		})
	case errors.As(err, &configErr):
		logger.Error("Recognizer misconfigured", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "config_error",
			Message: err.Error(),
		})
	default:
		logger.Error("Recording request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "recording_failed",
			Message: err.Error(),
		})
	}
}

func metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			m.RecordHTTPRequest(
				c.Request().Method,
				endpoint,
				strconv.Itoa(c.Response().Status),
				time.Since(start).Seconds(),
			)
			return nil
		}
	}
}
