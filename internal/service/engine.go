package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JonnyWalker81/cyclesense/backend/internal/dispatcher"
	"github.com/JonnyWalker81/cyclesense/backend/internal/logger"
	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

const tracerName = "github.com/JonnyWalker81/cyclesense/backend/internal/service"

var (
	errStrategySkipped = errors.New("strategy skipped")
	errNoCandidates    = errors.New("strategy produced no candidates")
)

// EngineConfig tunes the remote and enhanced strategies
type EngineConfig struct {
	// OracleTimeout bounds a single remote completion (0 disables the bound)
	OracleTimeout time.Duration
	// OracleMinInterval spaces consecutive remote calls
	OracleMinInterval time.Duration
	// EnhancedMinInterval spaces consecutive enhanced-strategy runs
	EnhancedMinInterval time.Duration
	// SimulatedLatency is how long the enhanced strategy takes per run
	SimulatedLatency time.Duration
}

// DefaultEngineConfig returns the standard spacings and timeouts
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		OracleTimeout:       30 * time.Second,
		OracleMinInterval:   time.Second,
		EnhancedMinInterval: 500 * time.Millisecond,
		SimulatedLatency:    800 * time.Millisecond,
	}
}

type insightEngine struct {
	dispatcher     *dispatcher.Dispatcher
	oracle         Oracle
	cfg            EngineConfig
	oracleSpacer   *dispatcher.Spacer
	enhancedSpacer *dispatcher.Spacer
	log            logger.Logger
	now            func() time.Time
}

// NewInsightEngine creates the strategy chain. oracle may be nil, in which
// case the remote strategy is always skipped.
func NewInsightEngine(d *dispatcher.Dispatcher, oracle Oracle, cfg EngineConfig, log logger.Logger) InsightEngine {
	if log == nil {
		log = logger.Default()
	}
	return &insightEngine{
		dispatcher:     d,
		oracle:         oracle,
		cfg:            cfg,
		oracleSpacer:   dispatcher.NewSpacer(cfg.OracleMinInterval),
		enhancedSpacer: dispatcher.NewSpacer(cfg.EnhancedMinInterval),
		log:            log,
		now:            time.Now,
	}
}

// chainFrom returns the fallback order starting at the preferred strategy
func chainFrom(preferred models.Strategy) []models.Strategy {
	switch preferred {
	case models.StrategyRuleBased:
		return []models.Strategy{models.StrategyRuleBased}
	case models.StrategyEnhanced:
		return []models.Strategy{models.StrategyEnhanced, models.StrategyRuleBased}
	default:
		return []models.Strategy{models.StrategyAI, models.StrategyEnhanced, models.StrategyRuleBased}
	}
}

// Generate walks the chain until a strategy yields candidates
func (e *insightEngine) Generate(ctx context.Context, summary models.DataSummary, req EngineRequest) ([]models.Insight, models.Strategy) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "insights.engine.generate")
	defer span.End()

	log := e.log.WithContext(ctx)

	for _, strategy := range chainFrom(req.Preferred) {
		candidates, err := e.run(ctx, strategy, summary, req)
		if err == nil && len(candidates) == 0 {
			err = errNoCandidates
		}
		if err == nil {
			span.SetAttributes(
				attribute.String("insights.strategy", string(strategy)),
				attribute.Int("insights.candidates", len(candidates)),
			)
			log.Debug("strategy produced candidates",
				logger.String("strategy", string(strategy)),
				logger.Int("count", len(candidates)),
			)
			return candidates, strategy
		}

		if errors.Is(err, errStrategySkipped) {
			log.Debug("strategy skipped", logger.String("strategy", string(strategy)), logger.Err(err))
			continue
		}
		span.AddEvent("strategy failed", trace.WithAttributes(
			attribute.String("insights.strategy", string(strategy)),
			attribute.String("error", err.Error()),
		))
		log.Warn("strategy failed, falling back",
			logger.String("strategy", string(strategy)),
			logger.Err(err),
		)
	}

	// rule-based ends every chain, so this is only reached by a bad chain
	span.SetStatus(codes.Error, "no strategy produced candidates")
	return RuleBasedInsights(summary, e.now()), models.StrategyRuleBased
}

func (e *insightEngine) run(ctx context.Context, strategy models.Strategy, summary models.DataSummary, req EngineRequest) ([]models.Insight, error) {
	switch strategy {
	case models.StrategyAI:
		if req.RequiresConsent {
			return nil, fmt.Errorf("%w: consent required", errStrategySkipped)
		}
		if e.oracle == nil {
			return nil, fmt.Errorf("%w: no oracle configured", errStrategySkipped)
		}
		return e.runOracle(ctx, summary, req.MaxInsights)
	case models.StrategyEnhanced:
		if req.RequiresConsent {
			return nil, fmt.Errorf("%w: consent required", errStrategySkipped)
		}
		return e.runEnhanced(ctx, summary, req.MaxInsights)
	default:
		return RuleBasedInsights(summary, e.now()), nil
	}
}

func (e *insightEngine) runOracle(ctx context.Context, summary models.DataSummary, maxInsights int) ([]models.Insight, error) {
	system, user := BuildOraclePrompt(summary, maxInsights)

	text, err := dispatcher.Do(ctx, e.dispatcher, func(ctx context.Context) (string, error) {
		if e.cfg.OracleTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.cfg.OracleTimeout)
			defer cancel()
		}
		return e.oracle.Complete(ctx, system, user)
	}, dispatcher.WithSpacer(e.oracleSpacer))
	if err != nil {
		return nil, fmt.Errorf("oracle completion failed: %w", err)
	}

	insights, err := ParseOracleResponse(text, e.now(), maxInsights)
	if err != nil {
		return nil, fmt.Errorf("failed to parse oracle response: %w", err)
	}
	return insights, nil
}

func (e *insightEngine) runEnhanced(ctx context.Context, summary models.DataSummary, maxInsights int) ([]models.Insight, error) {
	return dispatcher.Do(ctx, e.dispatcher, func(ctx context.Context) ([]models.Insight, error) {
		if e.cfg.SimulatedLatency > 0 {
			timer := time.NewTimer(e.cfg.SimulatedLatency)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return EnhancedInsights(summary, e.now(), maxInsights), nil
	}, dispatcher.WithSpacer(e.enhancedSpacer))
}
