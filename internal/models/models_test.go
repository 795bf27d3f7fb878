package models

import "testing"

// TestCurrentConditionsValue verifies metric extraction, including the rain
// default when the provider omits the precipitation block.
func TestCurrentConditionsValue(t *testing.T) {
	current := CurrentConditions{
		Temp:      21.5,
		Humidity:  62,
		WindSpeed: 4.8,
	}

	tests := []struct {
		metric Metric
		want   float64
	}{
		{MetricTemperature, 21.5},
		{MetricHumidity, 62},
		{MetricWind, 4.8},
		{MetricRain, 0}, // no rain block means no measurable rain
	}
	for _, tc := range tests {
		if got := current.Value(tc.metric); got != tc.want {
			t.Errorf("Value(%q) = %v, want %v", tc.metric, got, tc.want)
		}
	}

	current.Rain = &Rain{OneHour: 2.3}
	if got := current.Value(MetricRain); got != 2.3 {
		t.Errorf("Value(rain) with rain block = %v, want 2.3", got)
	}
}

// TestEnumValidity verifies the metric and comparator enums reject unknown
// values coming from request bodies.
func TestEnumValidity(t *testing.T) {
	for _, m := range []Metric{MetricTemperature, MetricHumidity, MetricWind, MetricRain} {
		if !m.Valid() {
			t.Errorf("Metric(%q).Valid() = false, want true", m)
		}
	}
	if Metric("pressure").Valid() {
		t.Error(`Metric("pressure").Valid() = true, want false`)
	}

	if !ComparatorAbove.Valid() || !ComparatorBelow.Valid() {
		t.Error("above/below comparators should be valid")
	}
	if Comparator("equals").Valid() {
		t.Error(`Comparator("equals").Valid() = true, want false`)
	}
}
