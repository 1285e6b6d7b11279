package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonnyWalker81/cyclesense/backend/pkg/supabase"
)

type profileRow struct {
	ID                  string `json:"id"`
	AIProcessingConsent *bool  `json:"ai_processing_consent"`
}

type consentRepository struct {
	client *supabase.Client
}

// NewConsentRepository creates a ConsentChecker backed by the profiles table.
// A missing profile or unset flag means consent has not been given.
func NewConsentRepository(client *supabase.Client) ConsentChecker {
	return &consentRepository{client: client}
}

func (r *consentRepository) RequiresConsent(ctx context.Context, userID string) (bool, error) {
	query := map[string]string{
		"id":     fmt.Sprintf("eq.%s", userID),
		"select": "id,ai_processing_consent",
	}

	body, err := r.client.Query(ctx, "profiles", query)
	if err != nil {
		return true, fmt.Errorf("failed to get profile: %w", err)
	}

	var profiles []profileRow
	if err := json.Unmarshal(body, &profiles); err != nil {
		return true, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(profiles) == 0 || profiles[0].AIProcessingConsent == nil {
		return true, nil
	}
	return !*profiles[0].AIProcessingConsent, nil
}
