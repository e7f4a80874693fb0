package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/ratelimit"
)

// RuleRepository persists configured rate limit rules so they survive
// restarts. Window state is never persisted.
type RuleRepository interface {
	Save(ctx context.Context, pattern string, rule domain.RateLimitRule) error
	Get(ctx context.Context, pattern string) (domain.RateLimitRule, bool, error)
	Delete(ctx context.Context, pattern string) error
	List(ctx context.Context) (map[string]domain.RateLimitRule, error)
}

// AuditLog records administrative actions on rate limit rules.
type AuditLog interface {
	Record(ctx context.Context, action string, details map[string]any)
}

// LimitsService manages the lifecycle of rate limit rules: validation,
// application to the in-memory limiter, and persistence.
type LimitsService struct {
	limiter    *ratelimit.Limiter
	repository RuleRepository
	audit      AuditLog
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewLimitsService creates a limits service. The repository may be nil, in
// which case rules are held in memory only.
func NewLimitsService(
	limiter *ratelimit.Limiter,
	repository RuleRepository,
	audit AuditLog,
	logger *slog.Logger,
	tracer trace.Tracer,
) *LimitsService {
	return &LimitsService{
		limiter:    limiter,
		repository: repository,
		audit:      audit,
		logger:     logger,
		tracer:     tracer,
	}
}

// ConfigureLimit validates, applies, and persists a rule for a pattern.
// An existing rule for the same pattern is replaced.
func (s *LimitsService) ConfigureLimit(ctx context.Context, pattern string, rule domain.RateLimitRule) error {
	ctx, span := s.tracer.Start(ctx, "limits.configure")
	defer span.End()

	s.logger.InfoContext(ctx, "configuring rate limit",
		slog.String("pattern", pattern),
		slog.String("algorithm", string(rule.Algorithm)))

	if err := s.limiter.ConfigureLimit(pattern, rule); err != nil {
		span.RecordError(err)
		return err
	}

	if s.repository != nil {
		if err := s.repository.Save(ctx, pattern, rule); err != nil {
			s.logger.WarnContext(ctx, "failed to persist rate limit rule",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()))
			span.RecordError(err)
		}
	}

	s.audit.Record(ctx, "limit.configure", map[string]any{
		"pattern":        pattern,
		"algorithm":      string(rule.Algorithm),
		"max_operations": rule.MaxOperations,
		"window":         rule.Window.String(),
	})
	return nil
}

// RemoveLimit removes a rule from the limiter and the repository.
func (s *LimitsService) RemoveLimit(ctx context.Context, pattern string) error {
	ctx, span := s.tracer.Start(ctx, "limits.remove")
	defer span.End()

	if !s.limiter.RemoveLimit(pattern) {
		err := fmt.Errorf("no rate limit configured for pattern %q", pattern)
		span.RecordError(err)
		return domain.NewInvalidInputError("limits.remove", err.Error())
	}

	if s.repository != nil {
		if err := s.repository.Delete(ctx, pattern); err != nil {
			s.logger.WarnContext(ctx, "failed to delete persisted rate limit rule",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()))
			span.RecordError(err)
		}
	}

	s.audit.Record(ctx, "limit.remove", map[string]any{"pattern": pattern})
	return nil
}

// GetLimit returns the rule configured for an exact pattern.
func (s *LimitsService) GetLimit(ctx context.Context, pattern string) (domain.RateLimitRule, bool) {
	_, span := s.tracer.Start(ctx, "limits.get")
	defer span.End()
	return s.limiter.GetLimit(pattern)
}

// ListLimits returns all configured rules keyed by pattern.
func (s *LimitsService) ListLimits(ctx context.Context) map[string]domain.RateLimitRule {
	_, span := s.tracer.Start(ctx, "limits.list")
	defer span.End()
	return s.limiter.GetAllLimits()
}

// AdjustLimit temporarily scales a pattern's capacity. The adjustment
// reverts automatically after the given duration.
func (s *LimitsService) AdjustLimit(ctx context.Context, pattern string, multiplier float64, duration time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "limits.adjust")
	defer span.End()

	if err := s.limiter.AdjustLimit(pattern, multiplier, duration); err != nil {
		span.RecordError(err)
		return err
	}

	s.audit.Record(ctx, "limit.adjust", map[string]any{
		"pattern":    pattern,
		"multiplier": multiplier,
		"duration":   duration.String(),
	})
	return nil
}

// CheckLimit evaluates admission for an operation without recording usage.
func (s *LimitsService) CheckLimit(ctx context.Context, operation string, weight int) domain.RateLimitDecision {
	_, span := s.tracer.Start(ctx, "limits.check")
	defer span.End()
	return s.limiter.CheckLimit(operation, weight, nil)
}

// ResetLimits discards window state for the matching operation, or for all
// patterns when operation is empty. Rules stay configured.
func (s *LimitsService) ResetLimits(ctx context.Context, operation string) {
	ctx, span := s.tracer.Start(ctx, "limits.reset")
	defer span.End()

	s.limiter.Reset(operation)
	s.audit.Record(ctx, "limit.reset", map[string]any{"operation": operation})
}

// Stats returns a snapshot of admission statistics.
func (s *LimitsService) Stats(ctx context.Context) domain.RateLimitStats {
	_, span := s.tracer.Start(ctx, "limits.stats")
	defer span.End()
	return s.limiter.Stats()
}

// LoadPersisted applies every rule found in the repository to the limiter.
// Invalid persisted rules are skipped with a warning.
func (s *LimitsService) LoadPersisted(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "limits.load_persisted")
	defer span.End()

	if s.repository == nil {
		return nil
	}

	rules, err := s.repository.List(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load persisted rules: %w", err)
	}

	loaded := 0
	for pattern, rule := range rules {
		if err := s.limiter.ConfigureLimit(pattern, rule); err != nil {
			s.logger.WarnContext(ctx, "skipping invalid persisted rule",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()))
			continue
		}
		loaded++
	}

	s.logger.InfoContext(ctx, "persisted rate limit rules loaded", slog.Int("count", loaded))
	return nil
}

// ruleFile is the YAML document accepted by LoadFromFile.
type ruleFile struct {
	Limits map[string]domain.RateLimitRule `yaml:"limits"`
}

// LoadFromFile reads a YAML rule set and configures every rule in it. The
// file is validated as a whole before any rule is applied.
func (s *LimitsService) LoadFromFile(ctx context.Context, path string) error {
	ctx, span := s.tracer.Start(ctx, "limits.load_file")
	defer span.End()

	data, err := os.ReadFile(path)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("read rule file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		span.RecordError(err)
		return fmt.Errorf("parse rule file %s: %w", path, err)
	}

	for pattern, rule := range file.Limits {
		if !domain.ValidPattern(pattern) {
			return domain.NewInvalidInputError("limits.load_file", fmt.Sprintf("invalid pattern %q in %s", pattern, path))
		}
		if err := rule.Validate(); err != nil {
			return domain.NewInvalidInputError("limits.load_file", fmt.Sprintf("invalid rule for %q in %s: %v", pattern, path, err))
		}
	}

	for pattern, rule := range file.Limits {
		if err := s.ConfigureLimit(ctx, pattern, rule); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "rate limit rules loaded from file",
		slog.String("path", path),
		slog.Int("count", len(file.Limits)))
	return nil
}
