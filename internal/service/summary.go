package service

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

const (
	// DefaultCycleLength is used when fewer than two periods are tracked
	DefaultCycleLength = 28

	// MinPeriodsForVariability is the period count at which variability is reported
	MinPeriodsForVariability = 3

	// TopStatsLimit caps the ranked symptom and mood lists
	TopStatsLimit = 5

	// RecentEntriesLimit caps the recent symptom and mood lists
	RecentEntriesLimit = 10

	hoursPerDay = 24
)

// Summarize turns raw event collections into a DataSummary. It is pure: the
// inputs are never modified and no I/O is performed. Empty input yields a
// 28-day cycle and empty stat lists.
func Summarize(periods []models.PeriodEvent, symptoms []models.SymptomEvent, moods []models.MoodEvent) models.DataSummary {
	return models.DataSummary{
		Cycle:          summarizeCycle(periods),
		SymptomStats:   rankSymptoms(symptoms),
		MoodStats:      rankMoods(moods),
		RecentSymptoms: recentSymptoms(symptoms),
		RecentMoods:    recentMoods(moods),
		TotalSymptoms:  len(symptoms),
		TotalMoods:     len(moods),
	}
}

// SummarizeEvents is Summarize over an EventSet
func SummarizeEvents(events models.EventSet) models.DataSummary {
	return Summarize(events.Periods, events.Symptoms, events.Moods)
}

func summarizeCycle(periods []models.PeriodEvent) models.CycleStats {
	stats := models.CycleStats{
		AverageLength: DefaultCycleLength,
		PeriodCount:   len(periods),
	}
	if len(periods) == 0 {
		return stats
	}

	starts := make([]time.Time, len(periods))
	for i, p := range periods {
		starts[i] = p.StartDate
	}
	slices.SortFunc(starts, func(a, b time.Time) int { return a.Compare(b) })

	if len(starts) >= 2 {
		var total float64
		for i := 1; i < len(starts); i++ {
			total += starts[i].Sub(starts[i-1]).Hours() / hoursPerDay
		}
		avg := int(math.Round(total / float64(len(starts)-1)))
		if avg < 0 {
			avg = 0
		}
		stats.AverageLength = avg
	}

	if len(starts) >= MinPeriodsForVariability {
		stats.Variability = absInt(stats.AverageLength - DefaultCycleLength)
	}

	last := starts[len(starts)-1]
	next := last.AddDate(0, 0, stats.AverageLength)
	stats.LastPeriodDate = &last
	stats.NextPredictedDate = &next

	return stats
}

// tally accumulates frequency and intensity for one name, remembering the
// order names were first seen so ranking ties stay stable.
type tally struct {
	name     string
	count    int
	scoreSum int
	scored   int
}

func rankSymptoms(symptoms []models.SymptomEvent) []models.SymptomStat {
	var order []*tally
	byName := make(map[string]*tally)
	for _, s := range symptoms {
		t := tallyFor(byName, &order, s.Symptom)
		t.count++
		if score := s.Intensity.Score(); score > 0 {
			t.scoreSum += score
			t.scored++
		}
	}

	ranked := topTallies(order)
	out := make([]models.SymptomStat, 0, len(ranked))
	for _, t := range ranked {
		out = append(out, models.SymptomStat{
			Name:             t.name,
			Frequency:        t.count,
			AverageIntensity: t.mean(),
			Trend:            models.TrendStable,
		})
	}
	return out
}

func rankMoods(moods []models.MoodEvent) []models.MoodStat {
	var order []*tally
	byName := make(map[string]*tally)
	for _, m := range moods {
		t := tallyFor(byName, &order, m.Mood)
		t.count++
		t.scoreSum += m.Intensity
		t.scored++
	}

	ranked := topTallies(order)
	out := make([]models.MoodStat, 0, len(ranked))
	for _, t := range ranked {
		out = append(out, models.MoodStat{
			Mood:             t.name,
			Frequency:        t.count,
			AverageIntensity: t.mean(),
			Trend:            models.TrendStable,
		})
	}
	return out
}

// tallyFor finds the tally for name ignoring case and surrounding space.
// The first spelling seen is the one reported.
func tallyFor(byName map[string]*tally, order *[]*tally, name string) *tally {
	name = strings.TrimSpace(name)
	key := strings.ToLower(name)
	t, ok := byName[key]
	if !ok {
		t = &tally{name: name}
		byName[key] = t
		*order = append(*order, t)
	}
	return t
}

func (t *tally) mean() float64 {
	if t.scored == 0 {
		return 0
	}
	return float64(t.scoreSum) / float64(t.scored)
}

// topTallies sorts by descending frequency, keeping first-seen order on ties
func topTallies(order []*tally) []*tally {
	ranked := slices.Clone(order)
	slices.SortStableFunc(ranked, func(a, b *tally) int { return b.count - a.count })
	if len(ranked) > TopStatsLimit {
		ranked = ranked[:TopStatsLimit]
	}
	return ranked
}

func recentSymptoms(symptoms []models.SymptomEvent) []models.SymptomEvent {
	recent := slices.Clone(symptoms)
	slices.SortStableFunc(recent, func(a, b models.SymptomEvent) int { return b.Date.Compare(a.Date) })
	if len(recent) > RecentEntriesLimit {
		recent = recent[:RecentEntriesLimit]
	}
	if recent == nil {
		recent = []models.SymptomEvent{}
	}
	return recent
}

func recentMoods(moods []models.MoodEvent) []models.MoodEvent {
	recent := slices.Clone(moods)
	slices.SortStableFunc(recent, func(a, b models.MoodEvent) int { return b.Date.Compare(a.Date) })
	if len(recent) > RecentEntriesLimit {
		recent = recent[:RecentEntriesLimit]
	}
	if recent == nil {
		recent = []models.MoodEvent{}
	}
	return recent
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
