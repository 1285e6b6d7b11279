package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

const (
	// DefaultMaxInsights is used when the caller does not ask for a count
	DefaultMaxInsights = 5
	// MaxInsightsCeiling is the hard upper bound on insights per generation
	MaxInsightsCeiling = 20

	minOracleConfidence     = 0.1
	maxOracleConfidence     = 1.0
	defaultOracleConfidence = 0.5
)

var (
	// ErrNoInsightArray is returned when a response contains no JSON array
	ErrNoInsightArray = errors.New("oracle response contains no JSON array")
	// ErrEmptyInsightArray is returned when the array decodes but holds no usable entries
	ErrEmptyInsightArray = errors.New("oracle response contains no usable insights")

	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json|javascript|js)?\\s*\\n?([\\s\\S]*?)\\n?```")
	insightArrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
)

const oracleSystemPrompt = `You are a women's health assistant that analyses menstrual cycle, symptom and mood tracking data.
You write short, supportive, evidence-informed insights. You never diagnose; you suggest talking to a healthcare provider when something looks unusual.
Respond with ONLY a JSON array. Each element must be an object with exactly these fields:
  "type": one of pattern, prediction, recommendation, correlation, health_tip, alert, achievement
  "category": one of period, symptoms, mood, fertility, wellness, general, nutrition, sleep, activity
  "title": short headline (max 60 characters)
  "content": one to three sentences
  "confidence": number between 0.1 and 1.0
  "priority": one of low, medium, high, urgent
  "dataPoints": array of strings naming the data the insight is based on
  "tags": array of short lowercase strings
Do not wrap the array in any other object and do not add commentary.`

// BuildOraclePrompt renders the system and user prompts for a summary
func BuildOraclePrompt(s models.DataSummary, maxInsights int) (system, user string) {
	maxInsights = clampMaxInsights(maxInsights)

	var b strings.Builder
	fmt.Fprintf(&b, "Generate up to %d personalized insights from this tracking summary.\n\n", maxInsights)

	b.WriteString("## Cycle\n")
	fmt.Fprintf(&b, "- Periods tracked: %d\n", s.Cycle.PeriodCount)
	fmt.Fprintf(&b, "- Average cycle length: %d days\n", s.Cycle.AverageLength)
	fmt.Fprintf(&b, "- Variability from 28 days: %d days\n", s.Cycle.Variability)
	if s.Cycle.LastPeriodDate != nil {
		fmt.Fprintf(&b, "- Last period started: %s\n", s.Cycle.LastPeriodDate.Format(time.DateOnly))
	}
	if s.Cycle.NextPredictedDate != nil {
		fmt.Fprintf(&b, "- Next period predicted: %s\n", s.Cycle.NextPredictedDate.Format(time.DateOnly))
	}

	b.WriteString("\n## Top symptoms\n")
	if len(s.SymptomStats) == 0 {
		b.WriteString("- none logged\n")
	}
	for _, st := range s.SymptomStats {
		fmt.Fprintf(&b, "- %s: %d times, average intensity %.1f/3 (%s)\n", st.Name, st.Frequency, st.AverageIntensity, st.Trend)
	}

	b.WriteString("\n## Top moods\n")
	if len(s.MoodStats) == 0 {
		b.WriteString("- none logged\n")
	}
	for _, st := range s.MoodStats {
		fmt.Fprintf(&b, "- %s: %d times, average intensity %.1f/5 (%s)\n", st.Mood, st.Frequency, st.AverageIntensity, st.Trend)
	}

	if len(s.RecentSymptoms) > 0 {
		b.WriteString("\n## Recent symptoms\n")
		for _, e := range s.RecentSymptoms {
			fmt.Fprintf(&b, "- %s %s (%s)\n", e.Date.Format(time.DateOnly), e.Symptom, e.Intensity)
		}
	}
	if len(s.RecentMoods) > 0 {
		b.WriteString("\n## Recent moods\n")
		for _, e := range s.RecentMoods {
			fmt.Fprintf(&b, "- %s %s (%d/5)\n", e.Date.Format(time.DateOnly), e.Mood, e.Intensity)
		}
	}

	fmt.Fprintf(&b, "\nTotals: %d symptom logs, %d mood logs.\n", s.TotalSymptoms, s.TotalMoods)
	return oracleSystemPrompt, b.String()
}

// oracleInsight is the wire shape requested from the oracle. Enum fields are
// decoded as raw strings and validated afterwards.
type oracleInsight struct {
	Type       string   `json:"type"`
	Category   string   `json:"category"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Confidence *float64 `json:"confidence"`
	Priority   string   `json:"priority"`
	DataPoints []string `json:"dataPoints"`
	Tags       []string `json:"tags"`
}

// ParseOracleResponse extracts insights from a free-text oracle reply.
// Markdown code fences are stripped and the first [...] span is decoded.
// An unknown type, category or priority rejects the whole response; entries
// without a title or content are skipped. Confidence is clamped into
// [0.1, 1.0] and the result is capped at maxInsights.
func ParseOracleResponse(text string, now time.Time, maxInsights int) ([]models.Insight, error) {
	maxInsights = clampMaxInsights(maxInsights)

	body := strings.TrimSpace(text)
	if m := codeFenceRegex.FindStringSubmatch(body); len(m) > 1 {
		body = strings.TrimSpace(m[1])
	}

	raw := insightArrayRegex.FindString(body)
	if raw == "" {
		return nil, ErrNoInsightArray
	}

	var entries []oracleInsight
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		// Models occasionally leave trailing commas; one cleanup pass before giving up
		cleaned := trailingCommaRegex.ReplaceAllString(raw, "$1")
		if err2 := json.Unmarshal([]byte(cleaned), &entries); err2 != nil {
			return nil, fmt.Errorf("failed to decode oracle insights: %w", err)
		}
	}

	out := make([]models.Insight, 0, len(entries))
	for i, e := range entries {
		title := strings.TrimSpace(e.Title)
		content := strings.TrimSpace(e.Content)
		if title == "" || content == "" {
			continue
		}

		typ, err := models.ParseInsightType(strings.TrimSpace(e.Type))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		category, err := models.ParseInsightCategory(strings.TrimSpace(e.Category))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		priority, err := models.ParsePriority(strings.TrimSpace(e.Priority))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		confidence := defaultOracleConfidence
		if e.Confidence != nil {
			confidence = *e.Confidence
		}

		out = append(out, models.Insight{
			ID:          NewInsightID(),
			GeneratedAt: now,
			Type:        typ,
			Category:    category,
			Priority:    priority,
			Source:      models.SourceAI,
			Title:       title,
			Content:     content,
			Confidence:  clampConfidence(confidence),
			Tags:        nonNil(e.Tags),
			DataPoints:  nonNil(e.DataPoints),
		})
		if len(out) == maxInsights {
			break
		}
	}

	if len(out) == 0 {
		return nil, ErrEmptyInsightArray
	}
	return out, nil
}

func clampConfidence(c float64) float64 {
	switch {
	case c < minOracleConfidence:
		return minOracleConfidence
	case c > maxOracleConfidence:
		return maxOracleConfidence
	default:
		return c
	}
}

func clampMaxInsights(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxInsights
	case n > MaxInsightsCeiling:
		return MaxInsightsCeiling
	default:
		return n
	}
}
