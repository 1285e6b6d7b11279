package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JonnyWalker81/cyclesense/backend/internal/apierror"
	"github.com/JonnyWalker81/cyclesense/backend/internal/logger"
	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
	"github.com/JonnyWalker81/cyclesense/backend/internal/service"
)

// feedbackRetryAfter is the Retry-After hint when the feedback backend fails
const feedbackRetryAfter = 30

// InsightManagers resolves the lifecycle manager for a user
type InsightManagers interface {
	ForUser(userID string) service.InsightManager
}

// InsightsHandler handles insights-related HTTP requests
type InsightsHandler struct {
	managers InsightManagers
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(managers InsightManagers) *InsightsHandler {
	return &InsightsHandler{managers: managers}
}

// Register mounts the insight routes on rg, which must already be
// authenticated. generate wraps only the generate endpoint.
func (h *InsightsHandler) Register(rg *gin.RouterGroup, generate ...gin.HandlerFunc) {
	insights := rg.Group("/insights")
	insights.GET("", h.ListInsights)
	insights.DELETE("", h.Clear)
	insights.POST("/generate", append(generate, h.Generate)...)
	insights.GET("/analytics", h.GetAnalytics)
	insights.GET("/summary", h.GetSummary)
	insights.GET("/status", h.GetStatus)
	insights.POST("/purge", h.PurgeInactive)
	insights.POST("/:id/read", h.MarkAsRead)
	insights.POST("/:id/dismiss", h.Dismiss)
	insights.POST("/:id/action", h.MarkActionTaken)
	insights.POST("/:id/feedback", h.SubmitFeedback)
}

// manager returns the caller's manager, writing a 401 when the request is
// not authenticated.
func (h *InsightsHandler) manager(c *gin.Context) (service.InsightManager, string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(apierror.GetRequestID(c)))
		return nil, "", false
	}
	return h.managers.ForUser(userID), userID, true
}

// insightID validates the :id path parameter
func insightID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	err := service.ValidateInsightID(id)
	if err == nil {
		return id, true
	}

	requestID := apierror.GetRequestID(c)
	if errors.Is(err, service.ErrFutureTimestamp) {
		apierror.WriteProblem(c, apierror.NewFutureTimestampError(requestID, "id"))
	} else {
		apierror.WriteProblem(c, apierror.NewInvalidUUIDError(requestID, "id", id))
	}
	return "", false
}

type generateRequest struct {
	MaxInsights    int    `json:"max_insights"`
	ForceRefresh   bool   `json:"force_refresh"`
	IncludeExpired bool   `json:"include_expired"`
	Strategy       string `json:"strategy"`
}

// Generate runs the strategy chain and merges new insights
// POST /api/v1/insights/generate
func (h *InsightsHandler) Generate(c *gin.Context) {
	mgr, userID, ok := h.manager(c)
	if !ok {
		return
	}

	var req generateRequest
	// An empty body means defaults
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.WriteProblem(c, apierror.NewBadRequestError(apierror.GetRequestID(c), err.Error(), "Invalid JSON format"))
			return
		}
	}

	var fieldErrors []apierror.FieldError
	if req.MaxInsights < 0 {
		fieldErrors = append(fieldErrors, apierror.FieldError{
			Field:   "max_insights",
			Message: "must not be negative",
			Code:    "invalid_value",
		})
	}
	strategy := models.Strategy(req.Strategy)
	if strategy != "" && !strategy.Valid() {
		fieldErrors = append(fieldErrors, apierror.FieldError{
			Field:   "strategy",
			Message: "must be one of ai, enhanced, rule_based",
			Code:    "invalid_value",
		})
	}
	if len(fieldErrors) > 0 {
		apierror.WriteProblem(c, apierror.NewValidationError(apierror.GetRequestID(c), fieldErrors))
		return
	}

	result, err := mgr.Generate(c.Request.Context(), models.GenerateOptions{
		MaxInsights:    req.MaxInsights,
		ForceRefresh:   req.ForceRefresh,
		IncludeExpired: req.IncludeExpired,
		Strategy:       strategy,
	})
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to generate insights", logger.Err(err), logger.String("user_id", userID))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListInsights returns active insights, optionally filtered by category,
// priority or a search query. It may start a background regeneration.
// GET /api/v1/insights
func (h *InsightsHandler) ListInsights(c *gin.Context) {
	mgr, userID, ok := h.manager(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	category := c.Query("category")
	priority := c.Query("priority")
	query := strings.TrimSpace(c.Query("q"))

	var fieldErrors []apierror.FieldError
	if category != "" && !models.InsightCategory(category).Valid() {
		fieldErrors = append(fieldErrors, apierror.FieldError{Field: "category", Message: "unknown category", Code: "invalid_value"})
	}
	if priority != "" && !models.Priority(priority).Valid() {
		fieldErrors = append(fieldErrors, apierror.FieldError{Field: "priority", Message: "unknown priority", Code: "invalid_value"})
	}
	if len(fieldErrors) > 0 {
		apierror.WriteProblem(c, apierror.NewValidationError(apierror.GetRequestID(c), fieldErrors))
		return
	}

	regenerating := mgr.MaybeRegenerate(ctx)

	var (
		insights []models.Insight
		err      error
	)
	switch {
	case query != "":
		insights, err = mgr.SearchInsights(ctx, query)
	case category != "":
		insights, err = mgr.GetInsightsByCategory(ctx, models.InsightCategory(category))
	case priority != "":
		insights, err = mgr.GetInsightsByPriority(ctx, models.Priority(priority))
	default:
		insights, err = mgr.GetActiveInsights(ctx)
	}
	if err != nil {
		logger.Ctx(ctx).Error("failed to list insights", logger.Err(err), logger.String("user_id", userID))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	// The category, priority and search filters all see the same active set
	if query != "" || category != "" || priority != "" {
		insights = filterInsights(insights, models.InsightCategory(category), models.Priority(priority))
	}

	unread := 0
	for _, in := range insights {
		if !in.IsRead {
			unread++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"insights":     insights,
		"count":        len(insights),
		"unread_count": unread,
		"regenerating": regenerating,
	})
}

// filterInsights applies whichever of category and priority are set
func filterInsights(insights []models.Insight, category models.InsightCategory, priority models.Priority) []models.Insight {
	out := insights[:0]
	for _, in := range insights {
		if category != "" && in.Category != category {
			continue
		}
		if priority != "" && in.Priority != priority {
			continue
		}
		out = append(out, in)
	}
	return out
}

// GetAnalytics returns aggregate statistics over active insights
// GET /api/v1/insights/analytics
func (h *InsightsHandler) GetAnalytics(c *gin.Context) {
	mgr, userID, ok := h.manager(c)
	if !ok {
		return
	}

	analytics, err := mgr.GetInsightAnalytics(c.Request.Context())
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to get insight analytics", logger.Err(err), logger.String("user_id", userID))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// GetSummary returns the data summary the engine would see
// GET /api/v1/insights/summary
func (h *InsightsHandler) GetSummary(c *gin.Context) {
	mgr, userID, ok := h.manager(c)
	if !ok {
		return
	}

	summary, err := mgr.GetSummary(c.Request.Context())
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to build summary", logger.Err(err), logger.String("user_id", userID))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetStatus reports when insights were last generated and how many are unread
// GET /api/v1/insights/status
func (h *InsightsHandler) GetStatus(c *gin.Context) {
	mgr, userID, ok := h.manager(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	lastSync, err := mgr.LastSyncAt(ctx)
	if err != nil {
		logger.Ctx(ctx).Error("failed to read last sync", logger.Err(err), logger.String("user_id", userID))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}
	unread, err := mgr.GetUnreadCount(ctx)
	if err != nil {
		logger.Ctx(ctx).Error("failed to count unread insights", logger.Err(err), logger.String("user_id", userID))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"last_sync_at": lastSync,
		"unread_count": unread,
	})
}

// MarkAsRead handles POST /api/v1/insights/:id/read
func (h *InsightsHandler) MarkAsRead(c *gin.Context) {
	h.lifecycle(c, "mark insight read", service.InsightManager.MarkAsRead)
}

// Dismiss handles POST /api/v1/insights/:id/dismiss
func (h *InsightsHandler) Dismiss(c *gin.Context) {
	h.lifecycle(c, "dismiss insight", service.InsightManager.Dismiss)
}

// MarkActionTaken handles POST /api/v1/insights/:id/action
func (h *InsightsHandler) MarkActionTaken(c *gin.Context) {
	h.lifecycle(c, "mark action taken", service.InsightManager.MarkActionTaken)
}

func (h *InsightsHandler) lifecycle(c *gin.Context, op string, fn func(service.InsightManager, context.Context, string) error) {
	mgr, userID, ok := h.manager(c)
	if !ok {
		return
	}
	id, ok := insightID(c)
	if !ok {
		return
	}

	if err := fn(mgr, c.Request.Context(), id); err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to "+op,
			logger.Err(err),
			logger.String("user_id", userID),
			logger.String("insight_id", id),
		)
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.Status(http.StatusNoContent)
}

type feedbackRequest struct {
	Type  string  `json:"type"`
	Notes *string `json:"notes"`
}

// SubmitFeedback records the user's single rating of an insight
// POST /api/v1/insights/:id/feedback
func (h *InsightsHandler) SubmitFeedback(c *gin.Context) {
	mgr, userID, ok := h.manager(c)
	if !ok {
		return
	}
	id, ok := insightID(c)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.WriteProblem(c, apierror.NewBadRequestError(apierror.GetRequestID(c), err.Error(), "Invalid JSON format"))
		return
	}

	requestID := apierror.GetRequestID(c)
	err := mgr.SubmitFeedback(c.Request.Context(), id, models.FeedbackType(req.Type), req.Notes)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, service.ErrInvalidFeedbackType):
		apierror.WriteProblem(c, apierror.NewValidationError(requestID, []apierror.FieldError{{
			Field:   "type",
			Message: "must be one of helpful, very_helpful, not_helpful",
			Code:    "invalid_value",
		}}))
	case errors.Is(err, service.ErrFeedbackExists):
		apierror.WriteProblem(c, apierror.NewFeedbackExistsError(requestID, id))
	case errors.Is(err, service.ErrFeedbackPending):
		apierror.WriteProblem(c, apierror.NewConflictError(requestID, "feedback for this insight is already being submitted"))
	default:
		logger.Ctx(c.Request.Context()).Warn("feedback submission failed",
			logger.Err(err),
			logger.String("user_id", userID),
			logger.String("insight_id", id),
		)
		apierror.WriteProblem(c, apierror.NewFeedbackFailedError(requestID, feedbackRetryAfter))
	}
}

// PurgeInactive permanently removes dismissed and expired insights
// POST /api/v1/insights/purge
func (h *InsightsHandler) PurgeInactive(c *gin.Context) {
	mgr, userID, ok := h.manager(c)
	if !ok {
		return
	}

	removed, err := mgr.PurgeInactive(c.Request.Context())
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to purge insights", logger.Err(err), logger.String("user_id", userID))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Clear deletes the user's whole insight collection
// DELETE /api/v1/insights
func (h *InsightsHandler) Clear(c *gin.Context) {
	mgr, userID, ok := h.manager(c)
	if !ok {
		return
	}

	if err := mgr.Clear(c.Request.Context()); err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to clear insights", logger.Err(err), logger.String("user_id", userID))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.Status(http.StatusNoContent)
}

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
