package service

import (
	"reflect"
	"testing"
	"time"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

var baseDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return baseDate.AddDate(0, 0, n)
}

func periodsAt(days ...int) []models.PeriodEvent {
	out := make([]models.PeriodEvent, len(days))
	for i, d := range days {
		out[i] = models.PeriodEvent{ID: "p" + string(rune('a'+i)), StartDate: day(d)}
	}
	return out
}

func symptomsOf(name string, n int, intensity models.SymptomIntensity) []models.SymptomEvent {
	out := make([]models.SymptomEvent, n)
	for i := range out {
		out[i] = models.SymptomEvent{Symptom: name, Date: day(i), Intensity: intensity}
	}
	return out
}

func moodsOf(mood string, n int, intensity int) []models.MoodEvent {
	out := make([]models.MoodEvent, n)
	for i := range out {
		out[i] = models.MoodEvent{Mood: mood, Date: day(i), Intensity: intensity}
	}
	return out
}

func TestSummarize_EmptyInputs(t *testing.T) {
	s := Summarize(nil, nil, nil)

	if s.Cycle.AverageLength != 28 {
		t.Errorf("AverageLength = %d, want 28", s.Cycle.AverageLength)
	}
	if s.Cycle.Variability != 0 {
		t.Errorf("Variability = %d, want 0", s.Cycle.Variability)
	}
	if s.Cycle.LastPeriodDate != nil || s.Cycle.NextPredictedDate != nil {
		t.Error("expected no period dates for empty input")
	}
	if len(s.SymptomStats) != 0 || len(s.MoodStats) != 0 {
		t.Error("expected empty stat lists")
	}
	if s.SymptomStats == nil || s.MoodStats == nil || s.RecentSymptoms == nil || s.RecentMoods == nil {
		t.Error("expected non-nil empty lists")
	}
}

func TestSummarize_CycleScenario(t *testing.T) {
	// gaps of 30, 32 and 29 days
	s := Summarize(periodsAt(0, 30, 62, 91), nil, nil)

	if s.Cycle.AverageLength != 30 {
		t.Errorf("AverageLength = %d, want 30", s.Cycle.AverageLength)
	}
	if s.Cycle.Variability != 2 {
		t.Errorf("Variability = %d, want 2", s.Cycle.Variability)
	}
	if s.Cycle.PeriodCount != 4 {
		t.Errorf("PeriodCount = %d, want 4", s.Cycle.PeriodCount)
	}
	if s.Cycle.LastPeriodDate == nil || !s.Cycle.LastPeriodDate.Equal(day(91)) {
		t.Errorf("LastPeriodDate = %v, want %v", s.Cycle.LastPeriodDate, day(91))
	}
	if s.Cycle.NextPredictedDate == nil || !s.Cycle.NextPredictedDate.Equal(day(121)) {
		t.Errorf("NextPredictedDate = %v, want %v", s.Cycle.NextPredictedDate, day(121))
	}
}

func TestSummarize_SinglePeriodUsesDefault(t *testing.T) {
	s := Summarize(periodsAt(10), nil, nil)
	if s.Cycle.AverageLength != 28 {
		t.Errorf("AverageLength = %d, want 28", s.Cycle.AverageLength)
	}
	if s.Cycle.NextPredictedDate == nil || !s.Cycle.NextPredictedDate.Equal(day(38)) {
		t.Errorf("NextPredictedDate = %v, want %v", s.Cycle.NextPredictedDate, day(38))
	}
}

func TestSummarize_VariabilityNeedsThreePeriods(t *testing.T) {
	s := Summarize(periodsAt(0, 40), nil, nil)
	if s.Cycle.AverageLength != 40 {
		t.Errorf("AverageLength = %d, want 40", s.Cycle.AverageLength)
	}
	if s.Cycle.Variability != 0 {
		t.Errorf("Variability = %d, want 0 with two periods", s.Cycle.Variability)
	}
}

func TestSummarize_UnsortedPeriodsAreNotMutated(t *testing.T) {
	periods := periodsAt(62, 0, 30)
	before := make([]models.PeriodEvent, len(periods))
	copy(before, periods)

	s := Summarize(periods, nil, nil)

	if !reflect.DeepEqual(periods, before) {
		t.Error("Summarize mutated its input")
	}
	if s.Cycle.AverageLength != 31 {
		t.Errorf("AverageLength = %d, want 31", s.Cycle.AverageLength)
	}
	if !s.Cycle.LastPeriodDate.Equal(day(62)) {
		t.Errorf("LastPeriodDate = %v, want %v", s.Cycle.LastPeriodDate, day(62))
	}
}

func TestSummarize_SymptomRankingAndIntensity(t *testing.T) {
	var symptoms []models.SymptomEvent
	symptoms = append(symptoms, symptomsOf("Bloating", 2, models.IntensityMild)...)
	symptoms = append(symptoms, symptomsOf("Cramps", 3, models.IntensitySevere)...)
	symptoms = append(symptoms, models.SymptomEvent{Symptom: "Cramps", Date: day(9), Intensity: models.IntensityMild})
	symptoms = append(symptoms, symptomsOf("Headache", 2, models.IntensityModerate)...)

	s := Summarize(nil, symptoms, nil)

	if len(s.SymptomStats) != 3 {
		t.Fatalf("len(SymptomStats) = %d, want 3", len(s.SymptomStats))
	}
	top := s.SymptomStats[0]
	if top.Name != "Cramps" || top.Frequency != 4 {
		t.Errorf("top = %+v, want Cramps x4", top)
	}
	if top.AverageIntensity != 2.5 {
		t.Errorf("Cramps mean intensity = %v, want 2.5", top.AverageIntensity)
	}
	if top.Trend != models.TrendStable {
		t.Errorf("Trend = %q, want stable", top.Trend)
	}
	// Bloating and Headache tie at 2; Bloating was seen first
	if s.SymptomStats[1].Name != "Bloating" || s.SymptomStats[2].Name != "Headache" {
		t.Errorf("tie order = %s, %s; want Bloating, Headache", s.SymptomStats[1].Name, s.SymptomStats[2].Name)
	}
	if s.TotalSymptoms != len(symptoms) {
		t.Errorf("TotalSymptoms = %d, want %d", s.TotalSymptoms, len(symptoms))
	}
}

func TestSummarize_NamesMergeIgnoringCase(t *testing.T) {
	var symptoms []models.SymptomEvent
	symptoms = append(symptoms, symptomsOf("Cramps", 2, models.IntensitySevere)...)
	symptoms = append(symptoms, symptomsOf("cramps ", 1, models.IntensitySevere)...)
	symptoms = append(symptoms, symptomsOf("Headache", 2, models.IntensityMild)...)
	var moods []models.MoodEvent
	moods = append(moods, moodsOf("anxious", 1, 4)...)
	moods = append(moods, moodsOf("Anxious", 2, 2)...)

	s := Summarize(nil, symptoms, moods)

	if len(s.SymptomStats) != 2 {
		t.Fatalf("len(SymptomStats) = %d, want 2: %+v", len(s.SymptomStats), s.SymptomStats)
	}
	if top := s.SymptomStats[0]; top.Name != "Cramps" || top.Frequency != 3 {
		t.Errorf("top symptom = %+v, want Cramps x3", top)
	}
	if len(s.MoodStats) != 1 {
		t.Fatalf("len(MoodStats) = %d, want 1: %+v", len(s.MoodStats), s.MoodStats)
	}
	if m := s.MoodStats[0]; m.Mood != "anxious" || m.Frequency != 3 {
		t.Errorf("mood = %+v, want anxious x3", m)
	}
}

func TestSummarize_TopListsCappedAtFive(t *testing.T) {
	var moods []models.MoodEvent
	for i, mood := range []string{"happy", "sad", "calm", "anxious", "irritable", "tired", "energetic"} {
		moods = append(moods, moodsOf(mood, 7-i, 3)...)
	}

	s := Summarize(nil, nil, moods)

	if len(s.MoodStats) != TopStatsLimit {
		t.Fatalf("len(MoodStats) = %d, want %d", len(s.MoodStats), TopStatsLimit)
	}
	for i := 1; i < len(s.MoodStats); i++ {
		if s.MoodStats[i].Frequency > s.MoodStats[i-1].Frequency {
			t.Errorf("MoodStats not sorted by frequency at %d", i)
		}
	}
	if s.MoodStats[0].AverageIntensity != 3 {
		t.Errorf("mean mood intensity = %v, want 3", s.MoodStats[0].AverageIntensity)
	}
}

func TestSummarize_RecentEntriesNewestFirst(t *testing.T) {
	symptoms := symptomsOf("Cramps", 14, models.IntensityMild)

	s := Summarize(nil, symptoms, nil)

	if len(s.RecentSymptoms) != RecentEntriesLimit {
		t.Fatalf("len(RecentSymptoms) = %d, want %d", len(s.RecentSymptoms), RecentEntriesLimit)
	}
	if !s.RecentSymptoms[0].Date.Equal(day(13)) {
		t.Errorf("first recent date = %v, want %v", s.RecentSymptoms[0].Date, day(13))
	}
	if !symptoms[0].Date.Equal(day(0)) {
		t.Error("input order was changed")
	}
}
