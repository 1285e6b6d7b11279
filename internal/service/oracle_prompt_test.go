package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

var parseNow = time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)

func TestParseOracleResponse_PlainArray(t *testing.T) {
	text := `[{"type":"pattern","category":"symptoms","title":"Cramps cluster early","content":"Most cramps land on day 1-2.","confidence":0.82,"priority":"high","dataPoints":["symptom-frequency"],"tags":["cramps"]}]`

	insights, err := ParseOracleResponse(text, parseNow, 5)
	require.NoError(t, err)
	require.Len(t, insights, 1)

	in := insights[0]
	assert.Equal(t, models.InsightTypePattern, in.Type)
	assert.Equal(t, models.InsightCategorySymptoms, in.Category)
	assert.Equal(t, models.PriorityHigh, in.Priority)
	assert.Equal(t, models.SourceAI, in.Source)
	assert.InDelta(t, 0.82, in.Confidence, 1e-9)
	assert.Equal(t, []string{"cramps"}, in.Tags)
	assert.Equal(t, []string{"symptom-frequency"}, in.DataPoints)
	assert.NotEmpty(t, in.ID)
	assert.True(t, in.GeneratedAt.Equal(parseNow))
}

func TestParseOracleResponse_StripsFencesAndProse(t *testing.T) {
	text := "Here are your insights:\n```json\n[\n  {\"title\": \"Stay hydrated\", \"content\": \"Water helps with bloating.\"}\n]\n```\nLet me know if you need more."

	insights, err := ParseOracleResponse(text, parseNow, 5)
	require.NoError(t, err)
	require.Len(t, insights, 1)

	in := insights[0]
	assert.Equal(t, "Stay hydrated", in.Title)
	assert.Equal(t, models.InsightTypeHealthTip, in.Type, "missing type defaults to health_tip")
	assert.Equal(t, models.InsightCategoryGeneral, in.Category, "missing category defaults to general")
	assert.Equal(t, models.PriorityMedium, in.Priority, "missing priority defaults to medium")
	assert.Equal(t, []string{}, in.Tags)
}

func TestParseOracleResponse_ArrayInsideProse(t *testing.T) {
	text := `Sure! [{"title":"A","content":"B","type":"alert","category":"sleep","priority":"urgent"}] Hope this helps.`

	insights, err := ParseOracleResponse(text, parseNow, 5)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, models.InsightTypeAlert, insights[0].Type)
	assert.Equal(t, models.InsightCategorySleep, insights[0].Category)
	assert.Equal(t, models.PriorityUrgent, insights[0].Priority)
}

func TestParseOracleResponse_ClampsConfidence(t *testing.T) {
	text := `[
		{"title":"low","content":"x","confidence":0.01},
		{"title":"high","content":"x","confidence":4.2},
		{"title":"negative","content":"x","confidence":-1},
		{"title":"missing","content":"x"}
	]`

	insights, err := ParseOracleResponse(text, parseNow, 5)
	require.NoError(t, err)
	require.Len(t, insights, 4)

	assert.Equal(t, 0.1, insights[0].Confidence)
	assert.Equal(t, 1.0, insights[1].Confidence)
	assert.Equal(t, 0.1, insights[2].Confidence)
	assert.Equal(t, 0.5, insights[3].Confidence)
}

func TestParseOracleResponse_RejectsUnknownEnums(t *testing.T) {
	tests := map[string]string{
		"type":     `[{"title":"t","content":"c","type":"prophecy"}]`,
		"category": `[{"title":"t","content":"c","category":"astrology"}]`,
		"priority": `[{"title":"t","content":"c","priority":"critical"}]`,
	}
	for field, text := range tests {
		t.Run(field, func(t *testing.T) {
			insights, err := ParseOracleResponse(text, parseNow, 5)
			require.Error(t, err)
			assert.Nil(t, insights)
			assert.Contains(t, err.Error(), "unknown")
		})
	}
}

func TestParseOracleResponse_Failures(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"no array", `{"title":"nope"}`, ErrNoInsightArray},
		{"empty text", "", ErrNoInsightArray},
		{"empty array", `[]`, ErrEmptyInsightArray},
		{"only incomplete entries", `[{"title":"no content"},{"content":"no title"}]`, ErrEmptyInsightArray},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOracleResponse(tt.text, parseNow, 5)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := ParseOracleResponse(`[{"title": "broken", "content": }]`, parseNow, 5)
	assert.Error(t, err)
}

func TestParseOracleResponse_TrailingCommaTolerated(t *testing.T) {
	text := `[{"title":"t","content":"c","tags":["a","b",],},]`

	insights, err := ParseOracleResponse(text, parseNow, 5)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, []string{"a", "b"}, insights[0].Tags)
}

func TestParseOracleResponse_RespectsMaxInsights(t *testing.T) {
	var parts []string
	for i := 0; i < 30; i++ {
		parts = append(parts, fmt.Sprintf(`{"title":"t%d","content":"c"}`, i))
	}
	text := "[" + strings.Join(parts, ",") + "]"

	insights, err := ParseOracleResponse(text, parseNow, 3)
	require.NoError(t, err)
	assert.Len(t, insights, 3)

	insights, err = ParseOracleResponse(text, parseNow, 0)
	require.NoError(t, err)
	assert.Len(t, insights, DefaultMaxInsights)

	insights, err = ParseOracleResponse(text, parseNow, 100)
	require.NoError(t, err)
	assert.Len(t, insights, MaxInsightsCeiling)
}

func TestBuildOraclePrompt_EmbedsSummary(t *testing.T) {
	var symptoms []models.SymptomEvent
	symptoms = append(symptoms, symptomsOf("Cramps", 4, models.IntensitySevere)...)
	summary := Summarize(periodsAt(0, 30, 60), symptoms, moodsOf("calm", 2, 4))

	system, user := BuildOraclePrompt(summary, 7)

	assert.Contains(t, system, "JSON array")
	for _, field := range []string{`"type"`, `"category"`, `"title"`, `"content"`, `"confidence"`, `"priority"`, `"dataPoints"`, `"tags"`} {
		assert.Contains(t, system, field)
	}
	assert.Contains(t, user, "up to 7")
	assert.Contains(t, user, "Average cycle length: 30 days")
	assert.Contains(t, user, "Cramps: 4 times")
	assert.Contains(t, user, "calm: 2 times")
	assert.Contains(t, user, "## Recent symptoms")
}
