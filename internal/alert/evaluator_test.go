package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"weatherpro/internal/models"
)

// fakeRuleStore is an in-memory RuleStore recording trigger stamps.
type fakeRuleStore struct {
	rules     []models.AlertRule
	listErr   error
	markErr   error
	triggered map[int64]time.Time
}

func newFakeRuleStore(rules ...models.AlertRule) *fakeRuleStore {
	return &fakeRuleStore{rules: rules, triggered: make(map[int64]time.Time)}
}

func (f *fakeRuleStore) ListActiveAlerts(_ context.Context, location string) ([]models.AlertRule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.AlertRule
	for _, r := range f.rules {
		if r.Location == location {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) MarkTriggered(_ context.Context, id int64, ts time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.triggered[id] = ts
	return nil
}

func rule(id int64, metric models.Metric, comp models.Comparator, threshold float64) models.AlertRule {
	return models.AlertRule{
		ID:         id,
		UserID:     1,
		Location:   "Paris",
		Metric:     metric,
		Comparator: comp,
		Threshold:  threshold,
		Active:     true,
	}
}

// TestEvaluateThresholds covers the comparator and metric matrix against one
// set of current conditions.
func TestEvaluateThresholds(t *testing.T) {
	rain := &models.Rain{OneHour: 2.5}
	current := models.CurrentConditions{Temp: 35, Humidity: 80, WindSpeed: 12, Rain: rain}

	tests := []struct {
		name string
		rule models.AlertRule
		want bool
	}{
		{"temperature above crossed", rule(1, models.MetricTemperature, models.ComparatorAbove, 30), true},
		{"temperature above not crossed", rule(2, models.MetricTemperature, models.ComparatorAbove, 40), false},
		{"temperature at threshold not crossed", rule(3, models.MetricTemperature, models.ComparatorAbove, 35), false},
		{"temperature below crossed", rule(4, models.MetricTemperature, models.ComparatorBelow, 40), true},
		{"humidity above crossed", rule(5, models.MetricHumidity, models.ComparatorAbove, 70), true},
		{"wind below not crossed", rule(6, models.MetricWind, models.ComparatorBelow, 10), false},
		{"rain above crossed", rule(7, models.MetricRain, models.ComparatorAbove, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeRuleStore(tt.rule)
			e := NewEvaluator(store, zap.NewNop())

			triggered := e.Evaluate(context.Background(), "Paris", current)

			if got := len(triggered) == 1; got != tt.want {
				t.Fatalf("Evaluate() triggered = %v, want crossed=%v", triggered, tt.want)
			}
			if _, stamped := store.triggered[tt.rule.ID]; stamped != tt.want {
				t.Errorf("MarkTriggered stamped = %v, want %v", stamped, tt.want)
			}
		})
	}
}

// TestEvaluateRainDefault verifies a missing rain block reads as zero, so a
// rain-above rule stays quiet and a rain-below rule fires.
func TestEvaluateRainDefault(t *testing.T) {
	current := models.CurrentConditions{Temp: 20}

	store := newFakeRuleStore(
		rule(1, models.MetricRain, models.ComparatorAbove, 0.5),
		rule(2, models.MetricRain, models.ComparatorBelow, 0.5),
	)
	e := NewEvaluator(store, zap.NewNop())

	triggered := e.Evaluate(context.Background(), "Paris", current)

	if len(triggered) != 1 || triggered[0] != 2 {
		t.Errorf("Evaluate() = %v, want only rule 2 (below 0.5 with no rain)", triggered)
	}
}

// TestEvaluateSkipsInactive verifies deactivated rules never evaluate.
func TestEvaluateSkipsInactive(t *testing.T) {
	r := rule(1, models.MetricTemperature, models.ComparatorAbove, 10)
	r.Active = false
	store := newFakeRuleStore(r)
	e := NewEvaluator(store, zap.NewNop())

	if triggered := e.Evaluate(context.Background(), "Paris", models.CurrentConditions{Temp: 35}); len(triggered) != 0 {
		t.Errorf("Evaluate() = %v, want none for inactive rule", triggered)
	}
}

// TestEvaluateListFailure verifies a rule store outage yields an empty sweep
// instead of an error.
func TestEvaluateListFailure(t *testing.T) {
	store := newFakeRuleStore()
	store.listErr = errors.New("db down")
	e := NewEvaluator(store, zap.NewNop())

	if triggered := e.Evaluate(context.Background(), "Paris", models.CurrentConditions{}); triggered != nil {
		t.Errorf("Evaluate() = %v, want nil on list failure", triggered)
	}
}

// TestEvaluateMarkFailure verifies a failed trigger stamp still reports the
// rule as triggered.
func TestEvaluateMarkFailure(t *testing.T) {
	store := newFakeRuleStore(rule(1, models.MetricTemperature, models.ComparatorAbove, 30))
	store.markErr = errors.New("db down")
	e := NewEvaluator(store, zap.NewNop())

	triggered := e.Evaluate(context.Background(), "Paris", models.CurrentConditions{Temp: 35})
	if len(triggered) != 1 || triggered[0] != 1 {
		t.Errorf("Evaluate() = %v, want rule 1 despite stamp failure", triggered)
	}
}

// TestEvaluateNotificationRecord verifies the structured log emitted on
// trigger, which is the notification delivery mechanism.
func TestEvaluateNotificationRecord(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := newFakeRuleStore(rule(7, models.MetricTemperature, models.ComparatorAbove, 30))
	e := NewEvaluator(store, zap.New(core))

	e.Evaluate(context.Background(), "Paris", models.CurrentConditions{Temp: 35})

	entries := logs.FilterMessage("alert triggered").All()
	if len(entries) != 1 {
		t.Fatalf("got %d 'alert triggered' log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["alert_id"] != int64(7) || fields["location"] != "Paris" {
		t.Errorf("log fields = %v, want alert_id=7 location=Paris", fields)
	}
	if fields["metric"] != "temperature" || fields["threshold"] != 30.0 || fields["current"] != 35.0 {
		t.Errorf("log fields = %v, want metric/threshold/current recorded", fields)
	}
}

// TestEvaluateStampsNow verifies the trigger timestamp comes from the
// evaluator's clock.
func TestEvaluateStampsNow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeRuleStore(rule(1, models.MetricTemperature, models.ComparatorAbove, 30))
	e := NewEvaluator(store, zap.NewNop())
	e.now = func() time.Time { return now }

	e.Evaluate(context.Background(), "Paris", models.CurrentConditions{Temp: 35})

	if ts, ok := store.triggered[1]; !ok || !ts.Equal(now) {
		t.Errorf("MarkTriggered timestamp = %v (ok=%v), want %v", ts, ok, now)
	}
}
