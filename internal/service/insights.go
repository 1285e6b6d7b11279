package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/JonnyWalker81/cyclesense/backend/internal/logger"
	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
	"github.com/JonnyWalker81/cyclesense/backend/internal/repository"
)

const (
	// InsightsBlobKey prefixes the per-user key holding the insight collection
	InsightsBlobKey = "cyclesense.insights"
	// LastSyncBlobKey prefixes the per-user key holding the last generation time
	LastSyncBlobKey = "cyclesense.insights.last_sync"

	// DefaultRetention caps the stored collection
	DefaultRetention = 15
	// DefaultRegenerateAfter is how stale the last generation must be before auto-regeneration
	DefaultRegenerateAfter = 24 * time.Hour
	// DefaultMinActive is the active-insight count below which auto-regeneration is considered
	DefaultMinActive = 3
	// DefaultMinEventsForRegeneration is the tracked-event count needed for auto-regeneration
	DefaultMinEventsForRegeneration = 3

	backgroundGenerateTimeout = 2 * time.Minute
)

var (
	// ErrFeedbackExists is returned when feedback was already recorded for an insight
	ErrFeedbackExists = errors.New("feedback already submitted for this insight")
	// ErrFeedbackPending is returned while another submission for the insight is in flight
	ErrFeedbackPending = errors.New("feedback submission already in progress")
	// ErrFeedbackRejected is returned when the feedback sink answers success=false
	ErrFeedbackRejected = errors.New("feedback was rejected")
	// ErrInvalidFeedbackType is returned for an unknown feedback rating
	ErrInvalidFeedbackType = errors.New("invalid feedback type")
)

// ManagerConfig tunes merge and regeneration behaviour
type ManagerConfig struct {
	Retention                int
	RegenerateAfter          time.Duration
	MinActive                int
	MinEventsForRegeneration int
	DefaultMaxInsights       int
}

func (c *ManagerConfig) defaults() {
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.RegenerateAfter <= 0 {
		c.RegenerateAfter = DefaultRegenerateAfter
	}
	if c.MinActive <= 0 {
		c.MinActive = DefaultMinActive
	}
	if c.MinEventsForRegeneration <= 0 {
		c.MinEventsForRegeneration = DefaultMinEventsForRegeneration
	}
	if c.DefaultMaxInsights <= 0 {
		c.DefaultMaxInsights = DefaultMaxInsights
	}
}

// ManagerDeps are the collaborators a manager works through. Consent may be
// nil, meaning remote strategies are always allowed.
type ManagerDeps struct {
	Events   repository.EventSource
	Store    repository.BlobStore
	Feedback repository.FeedbackSink
	Consent  repository.ConsentChecker
	Engine   InsightEngine
	// Now overrides the clock (tests)
	Now func() time.Time
}

type insightManager struct {
	userID string
	deps   ManagerDeps
	cfg    ManagerConfig
	log    logger.Logger
	now    func() time.Time

	mu              sync.Mutex
	loaded          bool
	insights        []models.Insight
	lastSync        *time.Time
	pendingFeedback map[string]bool

	regenerating atomic.Bool
	background   sync.WaitGroup
}

// NewInsightManager creates the lifecycle manager for one user. State is
// loaded from the blob store on first use.
func NewInsightManager(userID string, deps ManagerDeps, cfg ManagerConfig, log logger.Logger) InsightManager {
	return newInsightManager(userID, deps, cfg, log)
}

func newInsightManager(userID string, deps ManagerDeps, cfg ManagerConfig, log logger.Logger) *insightManager {
	cfg.defaults()
	if log == nil {
		log = logger.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &insightManager{
		userID:          userID,
		deps:            deps,
		cfg:             cfg,
		log:             log.With(logger.String("user_id", userID)),
		now:             now,
		pendingFeedback: make(map[string]bool),
	}
}

func (m *insightManager) insightsKey() string { return InsightsBlobKey + ":" + m.userID }
func (m *insightManager) lastSyncKey() string { return LastSyncBlobKey + ":" + m.userID }

// loadLocked reads persisted state once (must hold mu)
func (m *insightManager) loadLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}

	raw, err := m.deps.Store.Get(ctx, m.insightsKey())
	if err != nil {
		return fmt.Errorf("failed to load insights: %w", err)
	}
	var insights []models.Insight
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &insights); err != nil {
			// A corrupt blob is replaced on the next write rather than wedging the user
			m.log.Warn("discarding unreadable insight blob", logger.Err(err))
			insights = nil
		}
	}

	rawSync, err := m.deps.Store.Get(ctx, m.lastSyncKey())
	if err != nil {
		return fmt.Errorf("failed to load last sync time: %w", err)
	}
	var lastSync *time.Time
	if len(rawSync) > 0 {
		if t, err := time.Parse(time.RFC3339Nano, string(rawSync)); err == nil {
			lastSync = &t
		}
	}

	m.insights = insights
	m.lastSync = lastSync
	m.loaded = true
	return nil
}

func (m *insightManager) persistInsightsLocked(ctx context.Context, insights []models.Insight) error {
	if insights == nil {
		insights = []models.Insight{}
	}
	raw, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("failed to encode insights: %w", err)
	}
	if err := m.deps.Store.Set(ctx, m.insightsKey(), raw); err != nil {
		return fmt.Errorf("failed to persist insights: %w", err)
	}
	return nil
}

func (m *insightManager) persistLastSyncLocked(ctx context.Context, t *time.Time) error {
	var raw []byte
	if t != nil {
		raw = []byte(t.UTC().Format(time.RFC3339Nano))
	}
	if err := m.deps.Store.Set(ctx, m.lastSyncKey(), raw); err != nil {
		return fmt.Errorf("failed to persist last sync time: %w", err)
	}
	return nil
}

// loadEvents fetches the three event collections concurrently
func (m *insightManager) loadEvents(ctx context.Context) (models.EventSet, error) {
	var events models.EventSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		periods, err := m.deps.Events.GetPeriods(gctx, m.userID)
		if err != nil {
			return fmt.Errorf("failed to load periods: %w", err)
		}
		events.Periods = periods
		return nil
	})
	g.Go(func() error {
		symptoms, err := m.deps.Events.GetSymptoms(gctx, m.userID)
		if err != nil {
			return fmt.Errorf("failed to load symptoms: %w", err)
		}
		events.Symptoms = symptoms
		return nil
	})
	g.Go(func() error {
		moods, err := m.deps.Events.GetMoods(gctx, m.userID)
		if err != nil {
			return fmt.Errorf("failed to load moods: %w", err)
		}
		events.Moods = moods
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.EventSet{}, err
	}
	return events, nil
}

func (m *insightManager) requiresConsent(ctx context.Context) bool {
	if m.deps.Consent == nil {
		return false
	}
	required, err := m.deps.Consent.RequiresConsent(ctx, m.userID)
	if err != nil {
		// Without a definite answer, stay local
		m.log.WithContext(ctx).Warn("consent check failed, using local insights only", logger.Err(err))
		return true
	}
	return required
}

// Generate summarizes the user's events, runs the strategy chain and merges
// the candidates into the stored collection.
func (m *insightManager) Generate(ctx context.Context, opts models.GenerateOptions) (*models.GenerateResult, error) {
	events, err := m.loadEvents(ctx)
	if err != nil {
		return nil, err
	}
	return m.generate(ctx, opts, events)
}

func (m *insightManager) generate(ctx context.Context, opts models.GenerateOptions, events models.EventSet) (*models.GenerateResult, error) {
	ctx = logger.WithGenerationID(ctx, NewGenerationID())
	ctx, span := otel.Tracer(tracerName).Start(ctx, "insights.manager.generate")
	defer span.End()
	log := m.log.WithContext(ctx)

	if opts.MaxInsights <= 0 {
		opts.MaxInsights = m.cfg.DefaultMaxInsights
	}
	opts.MaxInsights = clampMaxInsights(opts.MaxInsights)

	summary := SummarizeEvents(events)
	candidates, strategy := m.deps.Engine.Generate(ctx, summary, EngineRequest{
		Preferred:       opts.Strategy,
		MaxInsights:     opts.MaxInsights,
		RequiresConsent: m.requiresConsent(ctx),
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := m.now()
	fresh := make([]models.Insight, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if !opts.IncludeExpired && c.IsExpired(now) {
			continue
		}
		key := titleKey(c.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, c.Clone())
	}

	var merged []models.Insight
	added := 0
	if opts.ForceRefresh {
		merged = fresh
		added = len(fresh)
	} else {
		existing := make(map[string]bool, len(m.insights))
		for _, in := range m.insights {
			if !in.IsDismissed {
				existing[titleKey(in.Title)] = true
			}
		}
		merged = make([]models.Insight, 0, len(fresh)+len(m.insights))
		for _, c := range fresh {
			if existing[titleKey(c.Title)] {
				continue
			}
			merged = append(merged, c)
			added++
		}
		merged = append(merged, m.insights...)
	}
	if len(merged) > m.cfg.Retention {
		merged = merged[:m.cfg.Retention]
	}

	if err := m.persistInsightsLocked(ctx, merged); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	syncedAt := now
	if err := m.persistLastSyncLocked(ctx, &syncedAt); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	m.insights = merged
	m.lastSync = &syncedAt

	span.SetAttributes(
		attribute.String("insights.strategy", string(strategy)),
		attribute.Int("insights.added", added),
		attribute.Int("insights.total", len(merged)),
	)
	log.Info("insights merged",
		logger.String("strategy", string(strategy)),
		logger.Int("candidates", len(candidates)),
		logger.Int("added", added),
		logger.Int("total", len(merged)),
		logger.Bool("force_refresh", opts.ForceRefresh),
	)

	return &models.GenerateResult{
		Strategy:   strategy,
		Candidates: len(candidates),
		Added:      added,
		Total:      len(merged),
		SyncedAt:   syncedAt,
	}, nil
}

// MaybeRegenerate starts a background generation when few insights are
// active and the last generation is stale (or never happened). It never
// blocks on the generation itself and reports whether one was started.
func (m *insightManager) MaybeRegenerate(ctx context.Context) bool {
	m.mu.Lock()
	if err := m.loadLocked(ctx); err != nil {
		m.mu.Unlock()
		m.log.WithContext(ctx).Warn("skipping auto-regeneration", logger.Err(err))
		return false
	}
	now := m.now()
	active := m.countActiveLocked(now)
	stale := m.lastSync == nil || now.Sub(*m.lastSync) > m.cfg.RegenerateAfter
	m.mu.Unlock()

	if active >= m.cfg.MinActive || !stale {
		return false
	}
	if !m.regenerating.CompareAndSwap(false, true) {
		return false
	}

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundGenerateTimeout)
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer m.regenerating.Store(false)
		defer cancel()

		log := m.log.WithContext(bgCtx)
		events, err := m.loadEvents(bgCtx)
		if err != nil {
			log.Warn("auto-regeneration could not load events", logger.Err(err))
			return
		}
		if events.Total() < m.cfg.MinEventsForRegeneration {
			log.Debug("auto-regeneration skipped, not enough data", logger.Int("events", events.Total()))
			return
		}
		if _, err := m.generate(bgCtx, models.GenerateOptions{MaxInsights: m.cfg.DefaultMaxInsights}, events); err != nil {
			log.Error("auto-regeneration failed", logger.Err(err))
		}
	}()
	return true
}

// wait blocks until background regenerations finish
func (m *insightManager) wait() {
	m.background.Wait()
}

// mutate applies fn to the insight with id and persists the result if fn
// reports a change. Unknown ids are a silent no-op.
func (m *insightManager) mutate(ctx context.Context, id string, fn func(in *models.Insight) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return err
	}
	idx := m.indexLocked(id)
	if idx < 0 {
		return nil
	}

	next := slices.Clone(m.insights)
	if !fn(&next[idx]) {
		return nil
	}
	if err := m.persistInsightsLocked(ctx, next); err != nil {
		return err
	}
	m.insights = next
	return nil
}

func (m *insightManager) indexLocked(id string) int {
	return slices.IndexFunc(m.insights, func(in models.Insight) bool { return in.ID == id })
}

func (m *insightManager) MarkAsRead(ctx context.Context, insightID string) error {
	return m.mutate(ctx, insightID, func(in *models.Insight) bool {
		if in.IsRead {
			return false
		}
		in.IsRead = true
		return true
	})
}

func (m *insightManager) Dismiss(ctx context.Context, insightID string) error {
	return m.mutate(ctx, insightID, func(in *models.Insight) bool {
		if in.IsDismissed {
			return false
		}
		in.IsDismissed = true
		return true
	})
}

// MarkActionTaken records that the user acted on a recommendation. Other
// insight types are left untouched.
func (m *insightManager) MarkActionTaken(ctx context.Context, insightID string) error {
	return m.mutate(ctx, insightID, func(in *models.Insight) bool {
		if in.Type != models.InsightTypeRecommendation || (in.ActionTaken && in.IsRead) {
			return false
		}
		in.ActionTaken = true
		in.IsRead = true
		return true
	})
}

// SubmitFeedback forwards feedback to the sink and, once it is accepted,
// records it locally and marks the insight read. Local state is untouched
// when the sink fails. Feedback is single-shot per insight.
func (m *insightManager) SubmitFeedback(ctx context.Context, insightID string, feedbackType models.FeedbackType, notes *string) error {
	if !feedbackType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFeedbackType, feedbackType)
	}

	m.mu.Lock()
	if err := m.loadLocked(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	idx := m.indexLocked(insightID)
	if idx < 0 {
		m.mu.Unlock()
		return nil
	}
	if m.insights[idx].Feedback != nil {
		m.mu.Unlock()
		return ErrFeedbackExists
	}
	if m.pendingFeedback[insightID] {
		m.mu.Unlock()
		return ErrFeedbackPending
	}
	m.pendingFeedback[insightID] = true
	m.mu.Unlock()

	fb := models.Feedback{
		InsightID:   insightID,
		Type:        feedbackType,
		SubmittedAt: m.now(),
		Notes:       notes,
	}
	result, err := m.deps.Feedback.Submit(ctx, m.userID, insightID, fb)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pendingFeedback, insightID)

	if err != nil {
		return fmt.Errorf("failed to submit feedback: %w", err)
	}
	if !result.Success {
		if result.Message != "" {
			return fmt.Errorf("%w: %s", ErrFeedbackRejected, result.Message)
		}
		return ErrFeedbackRejected
	}

	// The collection may have changed while the sink was called
	idx = m.indexLocked(insightID)
	if idx < 0 {
		return nil
	}
	if m.insights[idx].Feedback != nil {
		return ErrFeedbackExists
	}

	next := slices.Clone(m.insights)
	next[idx].Feedback = &fb
	next[idx].IsRead = true
	// The sink has accepted the rating, so local state follows it even if
	// the blob write below fails.
	m.insights = next
	return m.persistInsightsLocked(ctx, next)
}

// activeLocked returns clones of the active insights in stored order (must hold mu)
func (m *insightManager) activeLocked(now time.Time) []models.Insight {
	out := make([]models.Insight, 0, len(m.insights))
	for _, in := range m.insights {
		if in.IsActive(now) {
			out = append(out, in.Clone())
		}
	}
	return out
}

func (m *insightManager) countActiveLocked(now time.Time) int {
	n := 0
	for i := range m.insights {
		if m.insights[i].IsActive(now) {
			n++
		}
	}
	return n
}

func (m *insightManager) active(ctx context.Context) ([]models.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(ctx); err != nil {
		return nil, err
	}
	return m.activeLocked(m.now()), nil
}

// GetActiveInsights returns active insights, most urgent first then newest
func (m *insightManager) GetActiveInsights(ctx context.Context) ([]models.Insight, error) {
	insights, err := m.active(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(insights, func(a, b models.Insight) int {
		if d := b.Priority.Rank() - a.Priority.Rank(); d != 0 {
			return d
		}
		return b.GeneratedAt.Compare(a.GeneratedAt)
	})
	return insights, nil
}

func (m *insightManager) GetInsightsByCategory(ctx context.Context, category models.InsightCategory) ([]models.Insight, error) {
	return m.filter(ctx, func(in *models.Insight) bool { return in.Category == category })
}

func (m *insightManager) GetInsightsByPriority(ctx context.Context, priority models.Priority) ([]models.Insight, error) {
	return m.filter(ctx, func(in *models.Insight) bool { return in.Priority == priority })
}

// SearchInsights does a case-insensitive substring match over title, content and tags
func (m *insightManager) SearchInsights(ctx context.Context, query string) ([]models.Insight, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	return m.filter(ctx, func(in *models.Insight) bool {
		if strings.Contains(strings.ToLower(in.Title), q) || strings.Contains(strings.ToLower(in.Content), q) {
			return true
		}
		for _, tag := range in.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	})
}

func (m *insightManager) filter(ctx context.Context, keep func(in *models.Insight) bool) ([]models.Insight, error) {
	insights, err := m.active(ctx)
	if err != nil {
		return nil, err
	}
	out := insights[:0]
	for i := range insights {
		if keep(&insights[i]) {
			out = append(out, insights[i])
		}
	}
	return out, nil
}

// GetInsightAnalytics aggregates over active insights
func (m *insightManager) GetInsightAnalytics(ctx context.Context) (*models.InsightAnalytics, error) {
	insights, err := m.active(ctx)
	if err != nil {
		return nil, err
	}

	a := &models.InsightAnalytics{
		TotalInsights:     len(insights),
		CategoryBreakdown: make(map[models.InsightCategory]int),
		TypeBreakdown:     make(map[models.InsightType]int),
	}
	var confidence float64
	for _, in := range insights {
		if in.IsRead {
			a.ReadInsights++
		}
		if in.ActionTaken {
			a.ActionTakenCount++
		}
		confidence += in.Confidence
		a.CategoryBreakdown[in.Category]++
		a.TypeBreakdown[in.Type]++
		if in.Feedback != nil {
			switch in.Feedback.Type {
			case models.FeedbackHelpful:
				a.FeedbackStats.Helpful++
			case models.FeedbackVeryHelpful:
				a.FeedbackStats.VeryHelpful++
			case models.FeedbackNotHelpful:
				a.FeedbackStats.NotHelpful++
			}
		}
	}
	if len(insights) > 0 {
		a.AverageConfidence = confidence / float64(len(insights))
	}
	return a, nil
}

func (m *insightManager) GetUnreadCount(ctx context.Context) (int, error) {
	insights, err := m.active(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, in := range insights {
		if !in.IsRead {
			n++
		}
	}
	return n, nil
}

// GetSummary builds the current DataSummary without generating insights
func (m *insightManager) GetSummary(ctx context.Context) (*models.DataSummary, error) {
	events, err := m.loadEvents(ctx)
	if err != nil {
		return nil, err
	}
	summary := SummarizeEvents(events)
	return &summary, nil
}

func (m *insightManager) LastSyncAt(ctx context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(ctx); err != nil {
		return nil, err
	}
	if m.lastSync == nil {
		return nil, nil
	}
	t := *m.lastSync
	return &t, nil
}

// PurgeInactive permanently removes dismissed and expired insights
func (m *insightManager) PurgeInactive(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(ctx); err != nil {
		return 0, err
	}

	kept := m.activeLocked(m.now())
	removed := len(m.insights) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := m.persistInsightsLocked(ctx, kept); err != nil {
		return 0, err
	}
	m.insights = kept
	return removed, nil
}

// Clear drops the whole collection and the last-sync marker
func (m *insightManager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.persistInsightsLocked(ctx, nil); err != nil {
		return err
	}
	if err := m.persistLastSyncLocked(ctx, nil); err != nil {
		return err
	}
	m.insights = nil
	m.lastSync = nil
	m.loaded = true
	return nil
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// InsightRegistry hands out one InsightManager per user, created on first use
type InsightRegistry struct {
	deps ManagerDeps
	cfg  ManagerConfig
	log  logger.Logger

	mu       sync.Mutex
	managers map[string]*insightManager
}

// NewInsightRegistry creates an empty registry sharing deps across users
func NewInsightRegistry(deps ManagerDeps, cfg ManagerConfig, log logger.Logger) *InsightRegistry {
	if log == nil {
		log = logger.Default()
	}
	return &InsightRegistry{
		deps:     deps,
		cfg:      cfg,
		log:      log,
		managers: make(map[string]*insightManager),
	}
}

// ForUser returns the manager for userID
func (r *InsightRegistry) ForUser(userID string) InsightManager {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[userID]
	if !ok {
		m = newInsightManager(userID, r.deps, r.cfg, r.log)
		r.managers[userID] = m
	}
	return m
}

// Wait blocks until every background regeneration has finished
func (r *InsightRegistry) Wait() {
	r.mu.Lock()
	managers := make([]*insightManager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.Unlock()

	for _, m := range managers {
		m.wait()
	}
}
