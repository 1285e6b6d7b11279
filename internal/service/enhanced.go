package service

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

const (
	// AchievementEventThreshold is the tracked-event count that earns the tracking achievement
	AchievementEventThreshold = 30

	// intenseSymptomScore is the mean intensity (of 3) that raises a symptom alert
	intenseSymptomScore = 2.5

	// nextPeriodGraceDays keeps the next-period prediction visible past the predicted date
	nextPeriodGraceDays = 2
)

var positiveMoods = map[string]bool{
	"happy":     true,
	"calm":      true,
	"energetic": true,
}

// EnhancedInsights runs the ordered rule content plus the generative extras
// (next-period prediction, intense-symptom alert, tracking achievement,
// positive-mood tip). It is capped at maxInsights and marked as AI-sourced.
func EnhancedInsights(s models.DataSummary, now time.Time, maxInsights int) []models.Insight {
	maxInsights = clampMaxInsights(maxInsights)

	drafts := matchRules(&s)
	drafts = append(drafts, enhancedExtras(&s)...)
	if len(drafts) == 0 {
		drafts = append(drafts, encouragementDraft())
	}
	if len(drafts) > maxInsights {
		drafts = drafts[:maxInsights]
	}
	return buildAll(drafts, now, models.SourceAI)
}

func enhancedExtras(s *models.DataSummary) []draft {
	var out []draft

	if s.Cycle.PeriodCount >= 2 && s.Cycle.NextPredictedDate != nil {
		next := *s.Cycle.NextPredictedDate
		expires := next.AddDate(0, 0, nextPeriodGraceDays)
		confidence := 0.65
		if s.Cycle.PeriodCount >= MinPeriodsForVariability && s.Cycle.Variability <= 3 {
			confidence = 0.85
		}
		out = append(out, draft{
			typ:      models.InsightTypePrediction,
			category: models.InsightCategoryPeriod,
			priority: models.PriorityMedium,
			title:    "Upcoming Period Prediction",
			content: fmt.Sprintf("Based on your %d-day average cycle, your next period is likely to start around %s.",
				s.Cycle.AverageLength, next.Format("January 2")),
			confidence: confidence,
			tags:       []string{"prediction", "cycle"},
			dataPoints: []string{"cycle-length-average", "last-period-date"},
			expiresAt:  &expires,
		})
	}

	if top, ok := s.TopSymptom(); ok && top.AverageIntensity >= intenseSymptomScore && top.Frequency >= 3 {
		out = append(out, draft{
			typ:      models.InsightTypeAlert,
			category: models.InsightCategorySymptoms,
			priority: models.PriorityHigh,
			title:    fmt.Sprintf("Intense %s Episodes", titleCase(top.Name)),
			content: fmt.Sprintf("Your %s has averaged %.1f out of 3 in intensity across %d logs. "+
				"If it disrupts daily life, it is worth raising with a healthcare provider.",
				strings.ToLower(top.Name), top.AverageIntensity, top.Frequency),
			confidence: 0.75,
			tags:       []string{"alert", strings.ToLower(top.Name)},
			dataPoints: []string{"symptom-intensity-average", "symptom-frequency"},
		})
	}

	if s.TotalEvents() >= AchievementEventThreshold {
		out = append(out, draft{
			typ:        models.InsightTypeAchievement,
			category:   models.InsightCategoryGeneral,
			priority:   models.PriorityLow,
			title:      "Dedicated Tracker",
			content:    fmt.Sprintf("You've logged %d entries. Consistent tracking makes every insight more accurate.", s.TotalEvents()),
			confidence: 0.95,
			tags:       []string{"achievement", "tracking"},
			dataPoints: []string{"total-events"},
		})
	}

	if top, ok := s.TopMood(); ok && positiveMoods[strings.ToLower(top.Mood)] {
		out = append(out, draft{
			typ:      models.InsightTypeHealthTip,
			category: models.InsightCategoryMood,
			priority: models.PriorityLow,
			title:    "Keep the Good Mood Going",
			content: fmt.Sprintf("Feeling %s is your most common mood lately. "+
				"Note what helps on those days so you can lean on it later in your cycle.", strings.ToLower(top.Mood)),
			confidence: 0.7,
			tags:       []string{"mood", "positive"},
			dataPoints: []string{"mood-frequency"},
		})
	}

	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
