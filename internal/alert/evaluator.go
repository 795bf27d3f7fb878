// Package alert evaluates user-defined threshold rules against freshly
// fetched weather data. Evaluation runs only when new data arrives, never on
// cache hits.
package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"weatherpro/internal/models"
	"weatherpro/internal/observability"
)

// RuleStore is the slice of persistence the evaluator needs.
type RuleStore interface {
	ListActiveAlerts(ctx context.Context, location string) ([]models.AlertRule, error)
	MarkTriggered(ctx context.Context, id int64, ts time.Time) error
}

// Evaluator runs the threshold sweep for a location.
type Evaluator struct {
	rules  RuleStore
	logger *zap.Logger
	now    func() time.Time
}

// NewEvaluator returns an Evaluator over the given rule store.
func NewEvaluator(rules RuleStore, logger *zap.Logger) *Evaluator {
	return &Evaluator{rules: rules, logger: logger, now: time.Now}
}

// Evaluate compares each active rule scoped to location against the current
// conditions and returns the ids of rules that crossed their threshold.
// Triggered rules get last_triggered stamped to now; a rule that stays past
// its threshold re-triggers on every sweep, there is no cooldown window.
//
// Store failures are logged and absorbed; they never affect the weather
// response this sweep hangs off.
func (e *Evaluator) Evaluate(ctx context.Context, location string, current models.CurrentConditions) []int64 {
	rules, err := e.rules.ListActiveAlerts(ctx, location)
	if err != nil {
		observability.AlertStoreErrorsTotal.WithLabelValues("list").Inc()
		e.logger.Warn("alert rules unavailable",
			zap.String("location", location),
			zap.Error(err))
		return nil
	}

	var triggered []int64
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		observability.AlertsEvaluatedTotal.Inc()

		value := current.Value(rule.Metric)
		if !crossed(rule.Comparator, value, rule.Threshold) {
			continue
		}

		triggered = append(triggered, rule.ID)
		observability.AlertsTriggeredTotal.WithLabelValues(string(rule.Metric)).Inc()

		if err := e.rules.MarkTriggered(ctx, rule.ID, e.now()); err != nil {
			observability.AlertStoreErrorsTotal.WithLabelValues("mark_triggered").Inc()
			e.logger.Warn("alert trigger stamp failed",
				zap.Int64("alert_id", rule.ID),
				zap.Error(err))
		}

		// The notification record. Delivery beyond logging belongs to an
		// external consumer.
		e.logger.Info("alert triggered",
			zap.Int64("alert_id", rule.ID),
			zap.Int64("user_id", rule.UserID),
			zap.String("location", location),
			zap.String("metric", string(rule.Metric)),
			zap.String("comparator", string(rule.Comparator)),
			zap.Float64("threshold", rule.Threshold),
			zap.Float64("current", value))
	}
	return triggered
}

func crossed(c models.Comparator, value, threshold float64) bool {
	switch c {
	case models.ComparatorAbove:
		return value > threshold
	case models.ComparatorBelow:
		return value < threshold
	}
	return false
}
