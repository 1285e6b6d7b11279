package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
	"github.com/JonnyWalker81/cyclesense/backend/pkg/supabase"
)

type feedbackRepository struct {
	client *supabase.Client
}

// NewFeedbackRepository creates a FeedbackSink writing to insight_feedback
func NewFeedbackRepository(client *supabase.Client) FeedbackSink {
	return &feedbackRepository{client: client}
}

func (r *feedbackRepository) Submit(ctx context.Context, userID, insightID string, feedback models.Feedback) (FeedbackResult, error) {
	data := map[string]any{
		"user_id":       userID,
		"insight_id":    insightID,
		"feedback_type": feedback.Type,
		"submitted_at":  feedback.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
	if feedback.Notes != nil {
		data["notes"] = *feedback.Notes
	}

	_, err := r.client.Insert(ctx, "insight_feedback", data)
	if err != nil {
		// the unique (user_id, insight_id) constraint is the backend's own single-shot guard
		var apiErr *supabase.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return FeedbackResult{Success: false, Message: "feedback already recorded"}, nil
		}
		return FeedbackResult{}, fmt.Errorf("failed to submit feedback: %w", err)
	}
	return FeedbackResult{Success: true}, nil
}
