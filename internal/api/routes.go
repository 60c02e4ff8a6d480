package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
	"github.com/fleetline/dispatchvoice/internal/auth"
	"github.com/fleetline/dispatchvoice/internal/call"
	"github.com/fleetline/dispatchvoice/internal/wsbridge"
)

// Server wires the HTTP surface: the trigger API, the transport
// attachment endpoints, and the operational endpoints.
type Server struct {
	service       *call.Service
	bridge        *wsbridge.Registry
	authenticator *auth.Authenticator
	logger        *zap.Logger
	upgrader      websocket.Upgrader
}

func NewServer(service *call.Service, bridge *wsbridge.Registry, authenticator *auth.Authenticator, logger *zap.Logger) *Server {
	return &Server{
		service:       service,
		bridge:        bridge,
		authenticator: authenticator,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts all routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "dispatchvoice",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	v1.POST("/calls", s.triggerCall, s.requireRole(auth.RoleService))
	v1.POST("/calls/:session_id/end", s.endCall, s.requireRole(auth.RoleService))
	v1.GET("/calls/:session_id", s.getCall, s.requireRole(auth.RoleService))
	v1.POST("/calls/:session_id/offer", s.offer, s.requireSession())

	e.GET("/ws/:session_id", s.attachWebsocket)
}

func (s *Server) triggerCall(c echo.Context) error {
	var req TriggerCallRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.AgentID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "agent_id is required",
		})
	}

	resp, err := s.service.Trigger(c.Request().Context(), call.TriggerRequest{
		AgentID:    req.AgentID,
		DriverName: req.DriverName,
		LoadNumber: req.LoadNumber,
		Variables:  req.Variables,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	out := TriggerCallResponse{TriggerResponse: *resp}
	if token, _, err := s.authenticator.GenerateCallerToken(resp.SessionID); err == nil {
		out.CallerToken = token
	} else {
		s.logger.Error("minting caller token", zap.Error(err))
	}
	return c.JSON(http.StatusCreated, out)
}

func (s *Server) endCall(c echo.Context) error {
	sessionID := c.Param("session_id")
	if err := s.service.End(sessionID); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"session_id": sessionID,
		"status":     "ending",
	})
}

func (s *Server) getCall(c echo.Context) error {
	snap, err := s.service.Snapshot(c.Param("session_id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) offer(c echo.Context) error {
	var req OfferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	answer, err := s.bridge.Offer(c.Param("session_id"), req.SDP)
	if err != nil {
		s.logger.Warn("offer rejected",
			zap.String("session_id", c.Param("session_id")),
			zap.Error(err))
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_waiting",
			Message: "No WebRTC session is waiting for this id",
		})
	}
	return c.JSON(http.StatusOK, OfferResponse{SDP: answer})
}

// attachWebsocket upgrades the connection and hands it to the waiting
// websocket-transport session. Browsers cannot set headers on websocket
// upgrades, so the token is also accepted as a query parameter.
func (s *Server) attachWebsocket(c echo.Context) error {
	sessionID := c.Param("session_id")
	token := bearerToken(c)
	if token == "" {
		token = c.QueryParam("token")
	}
	if token == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "A bearer token or token query parameter is required",
		})
	}
	claims, err := s.authenticator.Validate(token)
	if err != nil || !claims.AllowsSession(sessionID) {
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_token",
			Message: "Token does not admit this session",
		})
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return err
	}
	if err := s.bridge.AttachSocket(sessionID, conn); err != nil {
		s.logger.Warn("websocket attach rejected",
			zap.String("session_id", sessionID),
			zap.Error(err))
		conn.Close()
		return nil
	}
	return nil
}

// requireRole gates a route on a valid bearer token with the given role.
func (s *Server) requireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := s.claims(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "A valid bearer token is required",
				})
			}
			if claims.Role != role {
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "forbidden",
					Message: "Token role does not allow this operation",
				})
			}
			return next(c)
		}
	}
}

// requireSession gates a route on claims that admit the session in the
// path, accepting both service tokens and the session's caller token.
func (s *Server) requireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := s.claims(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "A valid bearer token is required",
				})
			}
			if !claims.AllowsSession(c.Param("session_id")) {
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "forbidden",
					Message: "Token does not admit this session",
				})
			}
			return next(c)
		}
	}
}

func (s *Server) claims(c echo.Context) (*auth.Claims, error) {
	token := bearerToken(c)
	if token == "" {
		return nil, errors.New("missing bearer token")
	}
	return s.authenticator.Validate(token)
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// writeError maps domain errors onto HTTP responses. Configuration and
// provisioning problems are the trigger caller's to act on; everything
// else is internal.
func (s *Server) writeError(c echo.Context, err error) error {
	var confErr *entities.ConfigurationError
	if errors.As(err, &confErr) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "configuration_error",
			Message: confErr.Error(),
		})
	}
	var provErr *entities.ProvisioningError
	if errors.As(err, &provErr) {
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "provisioning_error",
			Message: provErr.Error(),
		})
	}
	if errors.Is(err, call.ErrSessionNotFound) || errors.Is(err, repositories.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	}
	s.logger.Error("request failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "The request could not be completed",
	})
}
