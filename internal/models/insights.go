package models

import (
	"fmt"
	"time"
)

// InsightType represents the type of insight
type InsightType string

const (
	InsightTypePattern        InsightType = "pattern"
	InsightTypePrediction     InsightType = "prediction"
	InsightTypeRecommendation InsightType = "recommendation"
	InsightTypeCorrelation    InsightType = "correlation"
	InsightTypeHealthTip      InsightType = "health_tip"
	InsightTypeAlert          InsightType = "alert"
	InsightTypeAchievement    InsightType = "achievement"
)

// InsightCategory represents the category of insight
type InsightCategory string

const (
	InsightCategoryPeriod    InsightCategory = "period"
	InsightCategorySymptoms  InsightCategory = "symptoms"
	InsightCategoryMood      InsightCategory = "mood"
	InsightCategoryFertility InsightCategory = "fertility"
	InsightCategoryWellness  InsightCategory = "wellness"
	InsightCategoryGeneral   InsightCategory = "general"
	InsightCategoryNutrition InsightCategory = "nutrition"
	InsightCategorySleep     InsightCategory = "sleep"
	InsightCategoryActivity  InsightCategory = "activity"
)

// Priority represents how prominently an insight should be surfaced
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// InsightSource records which strategy produced an insight
type InsightSource string

const (
	SourceRuleBased InsightSource = "rule_based"
	SourceAI        InsightSource = "ai"
)

// FeedbackType is the user's rating of an insight
type FeedbackType string

const (
	FeedbackHelpful     FeedbackType = "helpful"
	FeedbackVeryHelpful FeedbackType = "very_helpful"
	FeedbackNotHelpful  FeedbackType = "not_helpful"
)

var (
	insightTypes = map[InsightType]bool{
		InsightTypePattern: true, InsightTypePrediction: true, InsightTypeRecommendation: true,
		InsightTypeCorrelation: true, InsightTypeHealthTip: true, InsightTypeAlert: true,
		InsightTypeAchievement: true,
	}
	insightCategories = map[InsightCategory]bool{
		InsightCategoryPeriod: true, InsightCategorySymptoms: true, InsightCategoryMood: true,
		InsightCategoryFertility: true, InsightCategoryWellness: true, InsightCategoryGeneral: true,
		InsightCategoryNutrition: true, InsightCategorySleep: true, InsightCategoryActivity: true,
	}
	priorityRank = map[Priority]int{
		PriorityLow: 0, PriorityMedium: 1, PriorityHigh: 2, PriorityUrgent: 3,
	}
)

// Valid reports whether t is one of the known insight types
func (t InsightType) Valid() bool { return insightTypes[t] }

// Valid reports whether c is one of the known categories
func (c InsightCategory) Valid() bool { return insightCategories[c] }

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank orders priorities from low (0) to urgent (3)
func (p Priority) Rank() int { return priorityRank[p] }

// Valid reports whether s is one of the known sources
func (s InsightSource) Valid() bool { return s == SourceRuleBased || s == SourceAI }

// Valid reports whether f is one of the accepted feedback ratings
func (f FeedbackType) Valid() bool {
	switch f {
	case FeedbackHelpful, FeedbackVeryHelpful, FeedbackNotHelpful:
		return true
	}
	return false
}

// ParseInsightType validates a raw type string. Empty input yields the default.
func ParseInsightType(s string) (InsightType, error) {
	if s == "" {
		return InsightTypeHealthTip, nil
	}
	t := InsightType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown insight type %q", s)
	}
	return t, nil
}

// ParseInsightCategory validates a raw category string. Empty input yields the default.
func ParseInsightCategory(s string) (InsightCategory, error) {
	if s == "" {
		return InsightCategoryGeneral, nil
	}
	c := InsightCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown insight category %q", s)
	}
	return c, nil
}

// ParsePriority validates a raw priority string. Empty input yields the default.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// Feedback is a user's single-shot rating of an insight
type Feedback struct {
	InsightID   string       `json:"insight_id"`
	Type        FeedbackType `json:"type"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Notes       *string      `json:"notes,omitempty"`
}

// Insight represents a generated health insight and its lifecycle state
type Insight struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Type        InsightType     `json:"type"`
	Category    InsightCategory `json:"category"`
	Priority    Priority        `json:"priority"`
	Source      InsightSource   `json:"source"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	Confidence  float64         `json:"confidence"`
	Tags        []string        `json:"tags"`
	DataPoints  []string        `json:"data_points"`
	IsRead      bool            `json:"is_read"`
	IsDismissed bool            `json:"is_dismissed"`
	ActionTaken bool            `json:"action_taken"`
	Feedback    *Feedback       `json:"feedback,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// IsExpired reports whether the insight's expiry has passed at now
func (i *Insight) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(now)
}

// IsActive reports whether the insight is neither dismissed nor expired
func (i *Insight) IsActive(now time.Time) bool {
	return !i.IsDismissed && !i.IsExpired(now)
}

// Clone returns a deep copy so callers never share slices or pointers with the store
func (i Insight) Clone() Insight {
	out := i
	out.Tags = append([]string(nil), i.Tags...)
	out.DataPoints = append([]string(nil), i.DataPoints...)
	if i.ExpiresAt != nil {
		t := *i.ExpiresAt
		out.ExpiresAt = &t
	}
	if i.Feedback != nil {
		fb := *i.Feedback
		if i.Feedback.Notes != nil {
			n := *i.Feedback.Notes
			fb.Notes = &n
		}
		out.Feedback = &fb
	}
	return out
}

// Strategy names an insight generation strategy
type Strategy string

const (
	StrategyAI        Strategy = "ai"
	StrategyEnhanced  Strategy = "enhanced"
	StrategyRuleBased Strategy = "rule_based"
)

// Valid reports whether s names a known strategy
func (s Strategy) Valid() bool {
	return s == StrategyAI || s == StrategyEnhanced || s == StrategyRuleBased
}

// GenerateOptions controls a single generation run
type GenerateOptions struct {
	MaxInsights    int      `json:"max_insights"`
	ForceRefresh   bool     `json:"force_refresh"`
	IncludeExpired bool     `json:"include_expired"`
	Strategy       Strategy `json:"strategy,omitempty"`
}

// GenerateResult describes the outcome of a generation run
type GenerateResult struct {
	Strategy   Strategy  `json:"strategy"`
	Candidates int       `json:"candidates"`
	Added      int       `json:"added"`
	Total      int       `json:"total"`
	SyncedAt   time.Time `json:"synced_at"`
}

// FeedbackStats counts feedback ratings across active insights
type FeedbackStats struct {
	Helpful     int `json:"helpful"`
	NotHelpful  int `json:"not_helpful"`
	VeryHelpful int `json:"very_helpful"`
}

// InsightAnalytics is the aggregate view over active insights
type InsightAnalytics struct {
	TotalInsights     int                     `json:"total_insights"`
	ReadInsights      int                     `json:"read_insights"`
	ActionTakenCount  int                     `json:"action_taken_count"`
	AverageConfidence float64                 `json:"average_confidence"`
	CategoryBreakdown map[InsightCategory]int `json:"category_breakdown"`
	TypeBreakdown     map[InsightType]int     `json:"type_breakdown"`
	FeedbackStats     FeedbackStats           `json:"feedback_stats"`
}
