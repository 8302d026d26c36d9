package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/canvas"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/players"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/realtime"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const topDefenderCount = 5

type initResponsePayload struct {
	Type              string                  `json:"type"`
	Username          string                  `json:"username"`
	CanvasState       map[string]canvas.Pixel `json:"canvasState"`
	TargetState       map[string]string       `json:"targetState"`
	NextGlitchTime    int64                   `json:"nextGlitchTime"`
	CooldownEndsAt    int64                   `json:"cooldownEndsAt"`
	LogoCompletionPct float64                 `json:"logoCompletionPct"`
	IsModerator       bool                    `json:"isModerator"`
}

func (h *httpHandler) handleInit(c *gin.Context) {
	ctx := c.Request.Context()
	h.checkDecay(c)

	username := c.GetString(userContextKey)

	canvasState, err := h.canvas.GetAll(ctx)
	if err != nil {
		h.failStore(c, "load canvas", err)
		return
	}
	targetState, err := h.targets.GetAll(ctx)
	if err != nil {
		h.failStore(c, "load target", err)
		return
	}
	nextGlitch, err := h.decay.NextGlitchTime(ctx)
	if err != nil {
		h.failStore(c, "load schedule", err)
		return
	}

	cooldownEndsAt := int64(0)
	if expiresAt, active, err := h.cooldowns.Peek(ctx, username); err != nil {
		h.failStore(c, "load cooldown", err)
		return
	} else if active {
		cooldownEndsAt = expiresAt.UnixMilli()
	}

	c.JSON(http.StatusOK, initResponsePayload{
		Type:              "init",
		Username:          username,
		CanvasState:       canvasState,
		TargetState:       targetState,
		NextGlitchTime:    nextGlitch.UnixMilli(),
		CooldownEndsAt:    cooldownEndsAt,
		LogoCompletionPct: canvas.Completion(canvasState, targetState),
		IsModerator:       c.GetBool(moderatorContextKey),
	})
}

type statusResponsePayload struct {
	IntegrityPct      float64                `json:"integrityPct"`
	LogoCompletionPct float64                `json:"logoCompletionPct"`
	NextGlitchTime    int64                  `json:"nextGlitchTime"`
	TopDefenders      []players.DefenderStat `json:"topDefenders"`
	IsWaveNext        bool                   `json:"isWaveNext"`
	WaveStartsAt      *int64                 `json:"waveStartsAt"`
	WaveIntensityPct  *float64               `json:"waveIntensityPct"`
	IsModerator       bool                   `json:"isModerator"`
	YourRank          *int                   `json:"yourRank"`
	YourPlaced        *int                   `json:"yourPlaced"`
	ActiveUsers       []string               `json:"activeUsers"`
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	h.checkDecay(c)

	username := c.GetString(userContextKey)

	canvasState, err := h.canvas.GetAll(ctx)
	if err != nil {
		h.failStore(c, "load canvas", err)
		return
	}
	targetState, err := h.targets.GetAll(ctx)
	if err != nil {
		h.failStore(c, "load target", err)
		return
	}
	nextGlitch, err := h.decay.NextGlitchTime(ctx)
	if err != nil {
		h.failStore(c, "load schedule", err)
		return
	}

	integrityPct, cached, err := h.canvas.CachedIntegrity(ctx)
	if err != nil {
		h.failStore(c, "load integrity", err)
		return
	}
	if !cached {
		integrityPct, err = h.canvas.RecalcIntegrity(ctx)
		if err != nil {
			h.failStore(c, "recompute integrity", err)
			return
		}
	}

	topDefenders, err := h.leaderboard.Top(ctx, topDefenderCount)
	if err != nil {
		h.failStore(c, "load leaderboard", err)
		return
	}

	forecast, err := h.decay.WaveForecast(ctx)
	if err != nil {
		h.failStore(c, "load wave forecast", err)
		return
	}
	var waveStartsAt *int64
	var waveIntensity *float64
	if forecast.Next {
		starts := forecast.StartsAt.UnixMilli()
		intensity := forecast.IntensityPct
		waveStartsAt = &starts
		waveIntensity = &intensity
	}

	var yourRank, yourPlaced *int
	if rank, placed, ok, err := h.leaderboard.RankOf(ctx, username); err != nil {
		h.failStore(c, "load rank", err)
		return
	} else if ok {
		yourRank = &rank
		yourPlaced = &placed
	}

	activeUsers, err := h.presence.ActiveUsers(ctx)
	if err != nil {
		h.failStore(c, "load presence", err)
		return
	}

	c.JSON(http.StatusOK, statusResponsePayload{
		IntegrityPct:      integrityPct,
		LogoCompletionPct: canvas.Completion(canvasState, targetState),
		NextGlitchTime:    nextGlitch.UnixMilli(),
		TopDefenders:      topDefenders,
		IsWaveNext:        forecast.Next,
		WaveStartsAt:      waveStartsAt,
		WaveIntensityPct:  waveIntensity,
		IsModerator:       c.GetBool(moderatorContextKey),
		YourRank:          yourRank,
		YourPlaced:        yourPlaced,
		ActiveUsers:       activeUsers,
	})
}

type paintRequestPayload struct {
	X     *int   `json:"x"`
	Y     *int   `json:"y"`
	Color string `json:"color"`
}

type paintResponsePayload struct {
	Status         string       `json:"status"`
	X              int          `json:"x"`
	Y              int          `json:"y"`
	Data           canvas.Pixel `json:"data"`
	CooldownEndsAt int64        `json:"cooldownEndsAt"`
}

func (h *httpHandler) handlePaint(c *gin.Context) {
	ctx := c.Request.Context()
	h.checkDecay(c)

	var request paintRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.X == nil || request.Y == nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid pixel data"})
		return
	}
	x, y := *request.X, *request.Y
	if !canvas.InBounds(x, y) || !canvas.ValidColor(request.Color) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid pixel data"})
		return
	}

	username := c.GetString(userContextKey)

	cooldown, err := h.cooldowns.TryAcquire(ctx, username)
	if err != nil {
		h.failStore(c, "acquire cooldown", err)
		return
	}
	if !cooldown.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"status":      "error",
			"message":     "You are on a cooldown",
			"remainingMs": cooldown.Remaining.Milliseconds(),
		})
		return
	}

	pixel := canvas.Pixel{Color: request.Color, Owner: username}
	if err := h.canvas.Set(ctx, x, y, pixel); err != nil {
		h.failStore(c, "save pixel", err)
		return
	}

	if err := h.leaderboard.Increment(ctx, username); err != nil {
		h.failStore(c, "update leaderboard", err)
		return
	}

	// Derived state after the pixel write is best effort: the paint stands
	// even when these fail.
	if _, err := h.canvas.RecalcIntegrity(ctx); err != nil {
		h.logger.Warn("integrity recompute failed after paint", zap.Error(err))
	}
	if err := h.presence.MarkActive(ctx, username); err != nil {
		h.logger.Warn("presence update failed", zap.Error(err))
	}

	h.dispatcher.Publish(realtime.NewPaintEvent(x, y, pixel))
	if activeUsers, err := h.presence.ActiveUsers(ctx); err == nil {
		h.dispatcher.Publish(realtime.NewPresenceEvent(activeUsers))
	} else {
		h.logger.Warn("presence broadcast skipped", zap.Error(err))
	}

	c.JSON(http.StatusOK, paintResponsePayload{
		Status:         "success",
		X:              x,
		Y:              y,
		Data:           pixel,
		CooldownEndsAt: cooldown.ExpiresAt.UnixMilli(),
	})
}

type setTargetRequestPayload struct {
	Target map[string]string `json:"target"`
}

type setTargetResponsePayload struct {
	Status     string `json:"status"`
	PixelCount int    `json:"pixelCount"`
	Message    string `json:"message"`
}

func (h *httpHandler) handleSetTarget(c *gin.Context) {
	ctx := c.Request.Context()
	h.checkDecay(c)

	if !c.GetBool(moderatorContextKey) {
		c.JSON(http.StatusForbidden, gin.H{
			"status":  "error",
			"message": "Only moderators can set the target blueprint.",
		})
		return
	}

	var request setTargetRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Target) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing target data"})
		return
	}

	count, err := h.targets.Merge(ctx, request.Target)
	if errors.Is(err, canvas.ErrEmptyUpdate) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": `No valid pixels found in target. Use coords like "12:8" with colors like "#FF4500".`,
		})
		return
	}
	if err != nil {
		h.failStore(c, "save target", err)
		return
	}

	c.JSON(http.StatusOK, setTargetResponsePayload{
		Status:     "success",
		PixelCount: count,
		Message:    fmt.Sprintf("Target updated with %d pixels.", count),
	})
}

// checkDecay gives the decay engine its lazy tick at the top of every
// request. A failed check never fails the request that paid for it.
func (h *httpHandler) checkDecay(c *gin.Context) {
	if err := h.decay.CheckAndRun(c.Request.Context()); err != nil {
		h.logger.Error("decay check failed", zap.Error(err))
	}
}

func (h *httpHandler) failStore(c *gin.Context, action string, err error) {
	h.logger.Error("store operation failed", zap.String("action", action), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Request failed"})
}
