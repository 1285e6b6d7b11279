package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

const (
	// MaxRuleBasedInsights caps the output of the local rule engine
	MaxRuleBasedInsights = 3

	// ShortCycleThreshold and LongCycleThreshold bound a typical cycle (inclusive)
	ShortCycleThreshold = 21
	LongCycleThreshold  = 35

	// predictionGraceDays keeps a cycle prediction visible a little past the predicted date
	predictionGraceDays = 3
)

// draft is a candidate insight before identity and provenance are assigned
type draft struct {
	typ        models.InsightType
	category   models.InsightCategory
	priority   models.Priority
	title      string
	content    string
	confidence float64
	tags       []string
	dataPoints []string
	expiresAt  *time.Time
}

func (d draft) build(now time.Time, source models.InsightSource) models.Insight {
	return models.Insight{
		ID:          NewInsightID(),
		GeneratedAt: now,
		Type:        d.typ,
		Category:    d.category,
		Priority:    d.priority,
		Source:      source,
		Title:       d.title,
		Content:     d.content,
		Confidence:  d.confidence,
		Tags:        nonNil(d.tags),
		DataPoints:  nonNil(d.dataPoints),
		ExpiresAt:   d.expiresAt,
	}
}

// RuleBasedInsights evaluates the ordered heuristic rules against a summary.
// The result is deterministic for a given summary, never empty, and holds at
// most MaxRuleBasedInsights entries.
func RuleBasedInsights(s models.DataSummary, now time.Time) []models.Insight {
	drafts := matchRules(&s)
	if len(drafts) == 0 {
		drafts = append(drafts, encouragementDraft())
	}
	if len(drafts) > MaxRuleBasedInsights {
		drafts = drafts[:MaxRuleBasedInsights]
	}
	return buildAll(drafts, now, models.SourceRuleBased)
}

// matchRules runs rules 1-6 in priority order and returns every match
func matchRules(s *models.DataSummary) []draft {
	var out []draft

	if top, ok := s.TopSymptom(); ok {
		name := strings.ToLower(top.Name)
		if strings.Contains(name, "cramp") && top.Frequency >= 3 {
			out = append(out, draft{
				typ:      models.InsightTypePattern,
				category: models.InsightCategorySymptoms,
				priority: models.PriorityMedium,
				title:    "Recurring Cramps Pattern",
				content: fmt.Sprintf("You've logged %s %d times, making it your most frequent symptom. "+
					"Heat, gentle movement and staying hydrated in the days before your period may ease it.",
					top.Name, top.Frequency),
				confidence: 0.8,
				tags:       []string{"cramps", "pain-management", "pattern"},
				dataPoints: []string{"symptom-frequency", "symptom-intensity-average"},
			})
		}
		if strings.Contains(name, "headache") && top.Frequency >= 2 {
			out = append(out, draft{
				typ:      models.InsightTypeRecommendation,
				category: models.InsightCategorySymptoms,
				priority: models.PriorityMedium,
				title:    "Headache Relief Tips",
				content: fmt.Sprintf("Headaches showed up %d times in your logs. "+
					"Regular meals, steady hydration and consistent sleep can reduce cycle-related headaches.",
					top.Frequency),
				confidence: 0.7,
				tags:       []string{"headache", "self-care"},
				dataPoints: []string{"symptom-frequency"},
			})
		}
	}

	if top, ok := s.TopMood(); ok {
		if strings.EqualFold(top.Mood, "anxious") && top.Frequency >= 3 {
			out = append(out, draft{
				typ:      models.InsightTypeRecommendation,
				category: models.InsightCategoryMood,
				priority: models.PriorityHigh,
				title:    "Managing Anxiety",
				content: fmt.Sprintf("You've felt anxious %d times recently. "+
					"Breathing exercises, short walks and limiting caffeine are simple ways to take the edge off.",
					top.Frequency),
				confidence: 0.75,
				tags:       []string{"anxiety", "mental-health", "self-care"},
				dataPoints: []string{"mood-frequency", "mood-intensity-average"},
			})
		}
		if strings.EqualFold(top.Mood, "irritable") && top.Frequency >= 2 {
			out = append(out, draft{
				typ:      models.InsightTypeHealthTip,
				category: models.InsightCategoryMood,
				priority: models.PriorityMedium,
				title:    "Mood Swings Support",
				content: "Irritability is your most logged mood. Hormonal shifts can amplify it; " +
					"regular sleep and balanced blood sugar often help.",
				confidence: 0.7,
				tags:       []string{"mood", "irritability"},
				dataPoints: []string{"mood-frequency"},
			})
		}
	}

	if d, ok := cycleDraft(s.Cycle); ok {
		out = append(out, d)
	}

	if len(s.SymptomStats) >= 2 && len(s.MoodStats) >= 1 && hasPhysicalSymptom(s.SymptomStats) && hasTenseMood(s.MoodStats) {
		out = append(out, draft{
			typ:      models.InsightTypeCorrelation,
			category: models.InsightCategoryGeneral,
			priority: models.PriorityMedium,
			title:    "Symptom & Mood Connection",
			content: "Physical symptoms like cramps or bloating tend to appear alongside irritable or anxious moods in your logs. " +
				"Easing the physical side may lift your mood too.",
			confidence: 0.7,
			tags:       []string{"correlation", "symptoms", "mood"},
			dataPoints: []string{"symptom-frequency", "mood-frequency"},
		})
	}

	return out
}

func cycleDraft(c models.CycleStats) (draft, bool) {
	if c.PeriodCount < MinPeriodsForVariability {
		return draft{}, false
	}

	var expires *time.Time
	if c.NextPredictedDate != nil {
		t := c.NextPredictedDate.AddDate(0, 0, predictionGraceDays)
		expires = &t
	}

	switch {
	case c.AverageLength < ShortCycleThreshold:
		return draft{
			typ:      models.InsightTypePrediction,
			category: models.InsightCategoryPeriod,
			priority: models.PriorityHigh,
			title:    "Short Cycle Detected",
			content: fmt.Sprintf("Your average cycle is %d days, shorter than the typical 21-35 day range. "+
				"Consider discussing this with your healthcare provider.", c.AverageLength),
			confidence: 0.8,
			tags:       []string{"cycle-length", "short-cycle"},
			dataPoints: []string{"cycle-length-average", "cycle-variability"},
			expiresAt:  expires,
		}, true
	case c.AverageLength > LongCycleThreshold:
		return draft{
			typ:      models.InsightTypePrediction,
			category: models.InsightCategoryPeriod,
			priority: models.PriorityHigh,
			title:    "Long Cycle Detected",
			content: fmt.Sprintf("Your average cycle is %d days, longer than the typical 21-35 day range. "+
				"Consider discussing this with your healthcare provider.", c.AverageLength),
			confidence: 0.8,
			tags:       []string{"cycle-length", "long-cycle"},
			dataPoints: []string{"cycle-length-average", "cycle-variability"},
			expiresAt:  expires,
		}, true
	default:
		return draft{
			typ:      models.InsightTypeHealthTip,
			category: models.InsightCategoryPeriod,
			priority: models.PriorityLow,
			title:    "Healthy Cycle Pattern",
			content: fmt.Sprintf("Your average cycle of %d days sits within the typical range. "+
				"Keep tracking to spot any changes early.", c.AverageLength),
			confidence: 0.9,
			tags:       []string{"cycle-length", "healthy"},
			dataPoints: []string{"cycle-length-average"},
		}, true
	}
}

func encouragementDraft() draft {
	return draft{
		typ:      models.InsightTypeHealthTip,
		category: models.InsightCategoryWellness,
		priority: models.PriorityLow,
		title:    "Keep Tracking for Better Insights",
		content: "Log your periods, symptoms and moods regularly. " +
			"A few more weeks of data unlocks personalized patterns and predictions.",
		confidence: 0.6,
		tags:       []string{"tracking", "getting-started"},
		dataPoints: []string{},
	}
}

func hasPhysicalSymptom(stats []models.SymptomStat) bool {
	for _, st := range stats {
		name := strings.ToLower(st.Name)
		if strings.Contains(name, "cramp") || strings.Contains(name, "bloat") {
			return true
		}
	}
	return false
}

func hasTenseMood(stats []models.MoodStat) bool {
	for _, st := range stats {
		if strings.EqualFold(st.Mood, "irritable") || strings.EqualFold(st.Mood, "anxious") {
			return true
		}
	}
	return false
}

func buildAll(drafts []draft, now time.Time, source models.InsightSource) []models.Insight {
	out := make([]models.Insight, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, d.build(now, source))
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
