package service

import (
	"context"
	"time"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

// Oracle is a remote text-completion backend
type Oracle interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// EngineRequest parameterises one run of the strategy chain
type EngineRequest struct {
	// Preferred is where the chain starts; empty means the remote oracle
	Preferred       models.Strategy
	MaxInsights     int
	RequiresConsent bool
}

// InsightEngine turns a summary into candidate insights. Strategy failures
// are absorbed by falling back along the chain; the rule-based strategy at
// its end never returns an empty result.
type InsightEngine interface {
	Generate(ctx context.Context, summary models.DataSummary, req EngineRequest) ([]models.Insight, models.Strategy)
}

// InsightManager owns one user's insight collection and its lifecycle
type InsightManager interface {
	Generate(ctx context.Context, opts models.GenerateOptions) (*models.GenerateResult, error)
	MaybeRegenerate(ctx context.Context) bool

	MarkAsRead(ctx context.Context, insightID string) error
	Dismiss(ctx context.Context, insightID string) error
	MarkActionTaken(ctx context.Context, insightID string) error
	SubmitFeedback(ctx context.Context, insightID string, feedbackType models.FeedbackType, notes *string) error

	GetActiveInsights(ctx context.Context) ([]models.Insight, error)
	GetInsightsByCategory(ctx context.Context, category models.InsightCategory) ([]models.Insight, error)
	GetInsightsByPriority(ctx context.Context, priority models.Priority) ([]models.Insight, error)
	SearchInsights(ctx context.Context, query string) ([]models.Insight, error)
	GetInsightAnalytics(ctx context.Context) (*models.InsightAnalytics, error)
	GetUnreadCount(ctx context.Context) (int, error)
	GetSummary(ctx context.Context) (*models.DataSummary, error)
	LastSyncAt(ctx context.Context) (*time.Time, error)

	PurgeInactive(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
