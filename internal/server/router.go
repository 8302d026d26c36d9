package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/auth"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/canvas"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/decay"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/players"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/realtime"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userContextKey      = "pixeldefence_user"
	moderatorContextKey = "pixeldefence_is_moderator"
)

var (
	errMissingSessions    = errors.New("session validator dependency required")
	errMissingCanvas      = errors.New("canvas store dependency required")
	errMissingTargets     = errors.New("target store dependency required")
	errMissingCooldowns   = errors.New("cooldown guard dependency required")
	errMissingPresence    = errors.New("presence tracker dependency required")
	errMissingLeaderboard = errors.New("leaderboard dependency required")
	errMissingDecay       = errors.New("decay engine dependency required")
	errMissingDispatcher  = errors.New("realtime dispatcher dependency required")

	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionValidator resolves bearer tokens to sessions.
type SessionValidator interface {
	ValidateToken(token string) (auth.Session, error)
}

// Dependencies wires the HTTP layer to the game engine.
type Dependencies struct {
	Sessions    SessionValidator
	Canvas      *canvas.Store
	Targets     *canvas.TargetStore
	Cooldowns   *players.CooldownGuard
	Presence    *players.PresenceTracker
	Leaderboard *players.Leaderboard
	Decay       *decay.Engine
	Dispatcher  *realtime.Dispatcher
	Logger      *zap.Logger
}

// NewHTTPHandler builds the API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Canvas == nil {
		return nil, errMissingCanvas
	}
	if deps.Targets == nil {
		return nil, errMissingTargets
	}
	if deps.Cooldowns == nil {
		return nil, errMissingCooldowns
	}
	if deps.Presence == nil {
		return nil, errMissingPresence
	}
	if deps.Leaderboard == nil {
		return nil, errMissingLeaderboard
	}
	if deps.Decay == nil {
		return nil, errMissingDecay
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:    deps.Sessions,
		canvas:      deps.Canvas,
		targets:     deps.Targets,
		cooldowns:   deps.Cooldowns,
		presence:    deps.Presence,
		leaderboard: deps.Leaderboard,
		decay:       deps.Decay,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}

	api := router.Group("/api")
	api.Use(handler.authorizeRequest)
	api.GET("/init", handler.handleInit)
	api.GET("/status", handler.handleStatus)
	api.POST("/paint", handler.handlePaint)
	api.POST("/set-target", handler.handleSetTarget)
	api.GET("/realtime", handler.handleRealtime)

	return router, nil
}

type httpHandler struct {
	sessions    SessionValidator
	canvas      *canvas.Store
	targets     *canvas.TargetStore
	cooldowns   *players.CooldownGuard
	presence    *players.PresenceTracker
	leaderboard *players.Leaderboard
	decay       *decay.Engine
	dispatcher  *realtime.Dispatcher
	logger      *zap.Logger
}

// authorizeRequest resolves the session token into a username and moderator
// flag. Tokens arrive as a Bearer header, or as a query parameter for the
// websocket path where browsers cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		token = strings.TrimSpace(c.Query("session"))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": errInvalidAuthorization.Error()})
		return
	}
	session, err := h.sessions.ValidateToken(token)
	if err != nil {
		level := h.logger.Warn
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			level = h.logger.Info
		}
		level("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "unauthorized"})
		return
	}
	c.Set(userContextKey, session.Username)
	c.Set(moderatorContextKey, session.Moderator)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
