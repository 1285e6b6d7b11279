package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
	"github.com/JonnyWalker81/cyclesense/backend/pkg/supabase"
)

// PostgREST returns date columns as plain dates and timestamptz as RFC 3339
var eventDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly}

func parseEventDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type periodRow struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Notes     *string `json:"notes"`
}

type symptomRow struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Symptom   string  `json:"symptom"`
	Date      string  `json:"date"`
	Intensity string  `json:"intensity"`
	Notes     *string `json:"notes"`
}

type moodRow struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Mood      string `json:"mood"`
	Date      string `json:"date"`
	Intensity int    `json:"intensity"`
}

type eventRepository struct {
	client *supabase.Client
}

// NewEventRepository creates an EventSource reading the periods, symptoms
// and moods tables. Rows with unparseable dates and repeated ids are dropped.
func NewEventRepository(client *supabase.Client) EventSource {
	return &eventRepository{client: client}
}

func (r *eventRepository) query(ctx context.Context, table, userID, order string, out any) error {
	query := map[string]string{
		"user_id": fmt.Sprintf("eq.%s", userID),
		"order":   order,
	}
	body, err := r.client.Query(ctx, table, query)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", table, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", table, err)
	}
	return nil
}

func (r *eventRepository) GetPeriods(ctx context.Context, userID string) ([]models.PeriodEvent, error) {
	var rows []periodRow
	if err := r.query(ctx, "periods", userID, "start_date.asc", &rows); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	periods := make([]models.PeriodEvent, 0, len(rows))
	for _, row := range rows {
		start, ok := parseEventDate(row.StartDate)
		if !ok || seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		p := models.PeriodEvent{ID: row.ID, UserID: row.UserID, StartDate: start, Notes: row.Notes}
		if row.EndDate != nil {
			if end, ok := parseEventDate(*row.EndDate); ok && !end.Before(start) {
				p.EndDate = &end
			}
		}
		periods = append(periods, p)
	}
	return periods, nil
}

func (r *eventRepository) GetSymptoms(ctx context.Context, userID string) ([]models.SymptomEvent, error) {
	var rows []symptomRow
	if err := r.query(ctx, "symptoms", userID, "date.asc", &rows); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	symptoms := make([]models.SymptomEvent, 0, len(rows))
	for _, row := range rows {
		date, ok := parseEventDate(row.Date)
		if !ok || seen[row.ID] || row.Symptom == "" {
			continue
		}
		seen[row.ID] = true
		symptoms = append(symptoms, models.SymptomEvent{
			ID:        row.ID,
			UserID:    row.UserID,
			Symptom:   row.Symptom,
			Date:      date,
			Intensity: models.SymptomIntensity(strings.ToLower(row.Intensity)),
			Notes:     row.Notes,
		})
	}
	return symptoms, nil
}

func (r *eventRepository) GetMoods(ctx context.Context, userID string) ([]models.MoodEvent, error) {
	var rows []moodRow
	if err := r.query(ctx, "moods", userID, "date.asc", &rows); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	moods := make([]models.MoodEvent, 0, len(rows))
	for _, row := range rows {
		date, ok := parseEventDate(row.Date)
		if !ok || seen[row.ID] || row.Mood == "" {
			continue
		}
		seen[row.ID] = true
		moods = append(moods, models.MoodEvent{
			ID:        row.ID,
			UserID:    row.UserID,
			Mood:      row.Mood,
			Date:      date,
			Intensity: row.Intensity,
		})
	}
	return moods, nil
}
