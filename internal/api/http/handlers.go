package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/domain/launch"
	"github.com/GriffinCanCode/eggprofit/internal/domain/notify"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/eggprofit/internal/providers/browser"
	"github.com/GriffinCanCode/eggprofit/internal/shared/id"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
	"github.com/GriffinCanCode/eggprofit/internal/shared/utils"
)

// Launcher is the resolver surface exposed to the native shell
type Launcher interface {
	Phase() types.LaunchPhase
	Generation() uint64
	Retry() error
	DeepLinkReceived(ctx context.Context, addr string) error
	PushTokenRefreshed(ctx context.Context, token string) error
}

// Reachability accepts platform reachability callbacks
type Reachability interface {
	Online() bool
	Set(online bool)
}

// Attribution accepts the SDK outcome
type Attribution interface {
	Deliver(payload map[string]interface{}) bool
	Fail(err error) bool
}

// PermissionPrompt is answered by the native shell
type PermissionPrompt interface {
	Waiting() bool
	Answer(outcome notify.Outcome) error
}

// Sessions is the browsing session manager
type Sessions interface {
	Surfaces() []browser.SurfaceInfo
	EdgeDismiss(ctx context.Context, surfaceID id.SurfaceID) (browser.DismissResult, error)
	DismissNewest(ctx context.Context) (browser.DismissResult, error)
}

// Deps are the handlers' collaborators. Attribution, Prompt and Sessions may
// be nil; their endpoints then answer 404.
type Deps struct {
	Launcher     Launcher
	Reachability Reachability
	Attribution  Attribution
	Prompt       PermissionPrompt
	Sessions     Sessions
	Metrics      *monitoring.Metrics
	Logger       *logging.Logger
}

// Handlers contains all bridge HTTP handlers
type Handlers struct {
	launcher    Launcher
	reach       Reachability
	attribution Attribution
	prompt      PermissionPrompt
	sessions    Sessions
	metrics     *monitoring.Metrics
	logger      *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		launcher:    deps.Launcher,
		reach:       deps.Reachability,
		attribution: deps.Attribution,
		prompt:      deps.Prompt,
		sessions:    deps.Sessions,
		metrics:     deps.Metrics,
		logger:      logging.OrNop(deps.Logger).Named("bridge"),
	}
}

// Register mounts every route on router
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/health", h.Health)

	router.GET("/launch", h.GetLaunch)
	router.POST("/launch/retry", h.Retry)
	router.POST("/launch/deeplink", h.DeepLink)
	router.POST("/launch/push-token", h.PushToken)

	router.POST("/attribution", h.Attribution)
	router.POST("/notifications/answer", h.AnswerPrompt)
	router.POST("/connectivity", h.Connectivity)

	router.GET("/surfaces", h.ListSurfaces)
	router.POST("/surfaces/dismiss", h.Dismiss)

	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
}

// Health reports bridge status
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"phase":   h.launcher.Phase().Phase,
		"online":  h.reach.Online(),
		"metrics": h.metrics.Snapshot(),
	})
}

// GetLaunch returns the resolved phase and remote address
func (h *Handlers) GetLaunch(c *gin.Context) {
	phase := h.launcher.Phase()
	c.JSON(http.StatusOK, gin.H{
		"phase":          phase.Phase,
		"address":        phase.Address,
		"generation":     h.launcher.Generation(),
		"prompt_pending": h.prompt != nil && h.prompt.Waiting(),
	})
}

// Retry asks for a fresh resolution pass
func (h *Handlers) Retry(c *gin.Context) {
	if err := h.launcher.Retry(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// DeepLink stores the address carried by a raw push payload
func (h *Handlers) DeepLink(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid push payload"})
		return
	}
	if err := utils.ValidatePayload(payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	addr, ok := launch.ExtractDeepLink(payload)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "push payload carries no url"})
		return
	}
	if err := utils.ValidateString(addr, "url", 1, utils.MaxAddressLength, true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.launcher.DeepLinkReceived(c.Request.Context(), addr); err != nil && !errors.Is(err, launch.ErrQueueFull) {
		h.logger.Error("Storing deep link failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"stored": addr})
}

// PushTokenRequest carries a refreshed push token
type PushTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// PushToken persists a refreshed push token
func (h *Handlers) PushToken(c *gin.Context) {
	var req PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	if err := utils.ValidateString(req.Token, "token", 1, utils.MaxTokenLength, true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.launcher.PushTokenRefreshed(c.Request.Context(), req.Token); err != nil && !errors.Is(err, launch.ErrQueueFull) {
		h.logger.Error("Storing push token failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": true})
}

// AttributionRequest carries the SDK outcome; Error marks a failure
type AttributionRequest struct {
	Payload map[string]interface{} `json:"payload"`
	Error   string                 `json:"error"`
}

// Attribution hands the SDK outcome to the collector
func (h *Handlers) Attribution(c *gin.Context) {
	if h.attribution == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attribution not accepted"})
		return
	}

	var req AttributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attribution request"})
		return
	}
	if err := utils.ValidatePayload(req.Payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var first bool
	if req.Error != "" {
		first = h.attribution.Fail(errors.New(req.Error))
	} else {
		first = h.attribution.Deliver(req.Payload)
	}
	if !first {
		c.JSON(http.StatusConflict, gin.H{"error": "attribution already delivered"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// PromptAnswer carries the user's answer to the permission prompt
type PromptAnswer struct {
	Outcome string `json:"outcome" binding:"required"`
}

// AnswerPrompt resolves a pending notification prompt
func (h *Handlers) AnswerPrompt(c *gin.Context) {
	if h.prompt == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prompt"})
		return
	}

	var req PromptAnswer
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome required"})
		return
	}
	outcome, err := notify.ParseOutcome(req.Outcome)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.prompt.Answer(outcome); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome.String()})
}

// ConnectivityRequest carries a platform reachability change
type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// Connectivity pushes a reachability value into the monitor
func (h *Handlers) Connectivity(c *gin.Context) {
	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "online required"})
		return
	}
	h.reach.Set(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": *req.Online})
}

// ListSurfaces lists the primary surface and its children
func (h *Handlers) ListSurfaces(c *gin.Context) {
	surfaces := []browser.SurfaceInfo{}
	if h.sessions != nil {
		surfaces = h.sessions.Surfaces()
	}
	c.JSON(http.StatusOK, gin.H{
		"surfaces": surfaces,
		"count":    len(surfaces),
	})
}

// DismissRequest names the surface to dismiss; empty means the newest child
type DismissRequest struct {
	SurfaceID string `json:"surface_id"`
}

// Dismiss applies the edge-dismiss gesture
func (h *Handlers) Dismiss(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": browser.ErrSurfaceNotFound.Error()})
		return
	}

	var req DismissRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dismiss request"})
			return
		}
	}
	if err := utils.ValidateID(req.SurfaceID, "surface_id", false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var (
		result browser.DismissResult
		err    error
	)
	if req.SurfaceID == "" {
		result, err = h.sessions.DismissNewest(ctx)
	} else {
		result, err = h.sessions.EdgeDismiss(ctx, id.SurfaceID(req.SurfaceID))
	}

	switch {
	case errors.Is(err, browser.ErrSurfaceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, browser.ErrNotDismissable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}
