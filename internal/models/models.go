package models

import (
	"encoding/json"
	"time"
)

// Metric names a weather measurement an alert rule can reference.
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
	MetricWind        Metric = "wind"
	MetricRain        Metric = "rain"
)

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	switch m {
	case MetricTemperature, MetricHumidity, MetricWind, MetricRain:
		return true
	}
	return false
}

// Comparator is the direction a threshold is crossed in.
type Comparator string

const (
	ComparatorAbove Comparator = "above"
	ComparatorBelow Comparator = "below"
)

// Valid reports whether c is a supported comparator.
func (c Comparator) Valid() bool {
	return c == ComparatorAbove || c == ComparatorBelow
}

// Rain is the provider's precipitation block. The 1h field is optional
// upstream; absent means no measurable rain.
type Rain struct {
	OneHour float64 `json:"1h"`
}

// CurrentConditions mirrors the "current" block of the provider's detail
// response. Only these fields are interpreted; the rest of the document
// stays opaque.
type CurrentConditions struct {
	Temp      float64 `json:"temp"`
	Humidity  float64 `json:"humidity"`
	WindSpeed float64 `json:"wind_speed"`
	Rain      *Rain   `json:"rain,omitempty"`
}

// RainOneHour returns current.rain.1h, or 0 when the provider omitted it.
func (c CurrentConditions) RainOneHour() float64 {
	if c.Rain == nil {
		return 0
	}
	return c.Rain.OneHour
}

// Value returns the current reading for the given metric.
func (c CurrentConditions) Value(m Metric) float64 {
	switch m {
	case MetricTemperature:
		return c.Temp
	case MetricHumidity:
		return c.Humidity
	case MetricWind:
		return c.WindSpeed
	case MetricRain:
		return c.RainOneHour()
	}
	return 0
}

// WeatherPayload is the provider's detail response kept verbatim in Raw,
// plus the decoded current conditions the alert sweep needs.
type WeatherPayload struct {
	Location  string
	Raw       json.RawMessage
	Current   CurrentConditions
	FetchedAt time.Time
}

// AlertRule is a user-defined threshold alert scoped to one location.
// LastTriggered is stamped by the evaluator only; rules are soft-deleted by
// clearing Active, never removed.
type AlertRule struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Location      string     `json:"location"`
	Metric        Metric     `json:"alert_type"`
	Comparator    Comparator `json:"condition"`
	Threshold     float64    `json:"threshold"`
	Active        bool       `json:"-"`
	LastTriggered *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"-"`
}

// Location is a user's saved place with coordinates resolved at save time.
type Location struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"-"`
	Name        string  `json:"location"`
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
