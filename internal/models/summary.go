package models

import "time"

// Trend describes the direction a symptom or mood is moving in
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// CycleStats holds the cycle portion of a DataSummary
type CycleStats struct {
	AverageLength     int        `json:"average_length"`
	Variability       int        `json:"variability"`
	PeriodCount       int        `json:"period_count"`
	LastPeriodDate    *time.Time `json:"last_period_date,omitempty"`
	NextPredictedDate *time.Time `json:"next_predicted_date,omitempty"`
}

// SymptomStat is one ranked entry of the top symptoms list
type SymptomStat struct {
	Name             string  `json:"name"`
	Frequency        int     `json:"frequency"`
	AverageIntensity float64 `json:"average_intensity"`
	Trend            Trend   `json:"trend"`
}

// MoodStat is one ranked entry of the top moods list
type MoodStat struct {
	Mood             string  `json:"mood"`
	Frequency        int     `json:"frequency"`
	AverageIntensity float64 `json:"average_intensity"`
	Trend            Trend   `json:"trend"`
}

// DataSummary is the statistical digest the insight engine works from.
// It is derived on every generation and never persisted on its own.
type DataSummary struct {
	Cycle          CycleStats     `json:"cycle"`
	SymptomStats   []SymptomStat  `json:"symptom_stats"`
	MoodStats      []MoodStat     `json:"mood_stats"`
	RecentSymptoms []SymptomEvent `json:"recent_symptoms"`
	RecentMoods    []MoodEvent    `json:"recent_moods"`
	TotalSymptoms  int            `json:"total_symptoms"`
	TotalMoods     int            `json:"total_moods"`
}

// TotalEvents returns the number of raw events the summary was built from
func (s *DataSummary) TotalEvents() int {
	return s.Cycle.PeriodCount + s.TotalSymptoms + s.TotalMoods
}

// TopSymptom returns the highest ranked symptom, if any
func (s *DataSummary) TopSymptom() (SymptomStat, bool) {
	if len(s.SymptomStats) == 0 {
		return SymptomStat{}, false
	}
	return s.SymptomStats[0], true
}

// TopMood returns the highest ranked mood, if any
func (s *DataSummary) TopMood() (MoodStat, bool) {
	if len(s.MoodStats) == 0 {
		return MoodStat{}, false
	}
	return s.MoodStats[0], true
}
