package repository

import (
	"context"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

// EventSource provides read-only access to a user's tracked events. Results
// are already deduplicated and date-valid.
type EventSource interface {
	GetPeriods(ctx context.Context, userID string) ([]models.PeriodEvent, error)
	GetSymptoms(ctx context.Context, userID string) ([]models.SymptomEvent, error)
	GetMoods(ctx context.Context, userID string) ([]models.MoodEvent, error)
}

// BlobStore is a persistent key/value store for opaque blobs.
// Get returns (nil, nil) when the key does not exist.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// FeedbackResult is the feedback sink's answer to a submission
type FeedbackResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FeedbackSink forwards a user's rating of an insight to the backend.
// Callers treat an error and Success == false identically.
type FeedbackSink interface {
	Submit(ctx context.Context, userID, insightID string, feedback models.Feedback) (FeedbackResult, error)
}

// ConsentChecker reports whether remote processing needs consent the user
// has not given. When true, remote strategies are skipped for that run.
type ConsentChecker interface {
	RequiresConsent(ctx context.Context, userID string) (bool, error)
}
