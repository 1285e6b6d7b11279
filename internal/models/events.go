package models

import "time"

// SymptomIntensity is the ordinal severity recorded with a symptom log
type SymptomIntensity string

const (
	IntensityMild     SymptomIntensity = "mild"
	IntensityModerate SymptomIntensity = "moderate"
	IntensitySevere   SymptomIntensity = "severe"
)

// Score maps the ordinal intensity onto 1..3. Unknown values score 0.
func (i SymptomIntensity) Score() int {
	switch i {
	case IntensityMild:
		return 1
	case IntensityModerate:
		return 2
	case IntensitySevere:
		return 3
	default:
		return 0
	}
}

// PeriodEvent represents a tracked period
type PeriodEvent struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
}

// SymptomEvent represents a single symptom log
type SymptomEvent struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Symptom   string           `json:"symptom"`
	Date      time.Time        `json:"date"`
	Intensity SymptomIntensity `json:"intensity"`
	Notes     *string          `json:"notes,omitempty"`
}

// MoodEvent represents a single mood log. Intensity is on a 1-5 scale.
type MoodEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Mood      string    `json:"mood"`
	Date      time.Time `json:"date"`
	Intensity int       `json:"intensity"`
}

// EventSet bundles the raw collections the summarizer consumes
type EventSet struct {
	Periods  []PeriodEvent
	Symptoms []SymptomEvent
	Moods    []MoodEvent
}

// Total returns the number of tracked events across all collections
func (s EventSet) Total() int {
	return len(s.Periods) + len(s.Symptoms) + len(s.Moods)
}
