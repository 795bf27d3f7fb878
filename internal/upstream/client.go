package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"weatherpro/internal/models"
	"weatherpro/internal/observability"
)

var (
	// ErrInvalidAPIKey means the provider rejected our credentials.
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrLocationNotFound means the provider knows no such place. The user
	// can correct this; it maps to a 404.
	ErrLocationNotFound = errors.New("location not found")
	// ErrUpstreamUnavailable covers transport errors, timeouts, open
	// circuit breaker, and non-2xx responses other than not-found.
	ErrUpstreamUnavailable = errors.New("weather provider unavailable")
)

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Client fetches weather data from the upstream provider.
// Fetch is the full two-stage retrieval; Geocode is the first stage alone,
// reused to validate locations before saving them.
type Client interface {
	Fetch(ctx context.Context, location string) (models.WeatherPayload, error)
	Geocode(ctx context.Context, location string) (Coordinates, error)
}

// OpenWeatherClient talks to an OpenWeatherMap-compatible API. All handles
// are injected at construction; there are no package-level singletons.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewOpenWeatherClient validates the credentials shape and builds a client.
// timeout bounds each of the two HTTP calls individually.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// A place the provider does not know is not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrLocationNotFound)
		},
	})

	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}, nil
}

// geocodeResponse is the slice of the "current weather by name" document we
// interpret. Everything else is ignored.
type geocodeResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
}

// detailResponse is the slice of the detail document the alert sweep needs.
// The full body is kept verbatim as the payload.
type detailResponse struct {
	Current models.CurrentConditions `json:"current"`
}

// Geocode resolves a location name to coordinates via the provider's
// current-weather-by-name endpoint.
func (c *OpenWeatherClient) Geocode(ctx context.Context, location string) (Coordinates, error) {
	params := url.Values{}
	params.Set("q", location)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	body, err := c.call(ctx, "/weather", params, "geocode")
	if err != nil {
		return Coordinates{}, err
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Coordinates{}, fmt.Errorf("%w: parse geocode response: %v", ErrUpstreamUnavailable, err)
	}
	return Coordinates{Lat: resp.Coord.Lat, Lon: resp.Coord.Lon}, nil
}

// Fetch performs the two-stage retrieval: geocode by name, then the detailed
// current+forecast document by coordinates. The second call strictly depends
// on the first; a failure at either stage aborts the fetch. No retry here;
// the caller retries by re-issuing the request.
func (c *OpenWeatherClient) Fetch(ctx context.Context, location string) (models.WeatherPayload, error) {
	coords, err := c.Geocode(ctx, location)
	if err != nil {
		return models.WeatherPayload{}, err
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	params.Set("exclude", "minutely")

	body, err := c.call(ctx, "/onecall", params, "detail")
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			// The detail endpoint has no notion of an unknown name; any
			// failure there is a provider problem.
			return models.WeatherPayload{}, fmt.Errorf("%w: detail fetch failed", ErrUpstreamUnavailable)
		}
		return models.WeatherPayload{}, err
	}

	var detail detailResponse
	if err := json.Unmarshal(body, &detail); err != nil {
		return models.WeatherPayload{}, fmt.Errorf("%w: parse detail response: %v", ErrUpstreamUnavailable, err)
	}

	return models.WeatherPayload{
		Location:  location,
		Raw:       body,
		Current:   detail.Current,
		FetchedAt: time.Now(),
	}, nil
}

// call issues one GET through the circuit breaker and maps failures to the
// error taxonomy. stage labels metrics as "geocode" or "detail".
func (c *OpenWeatherClient) call(ctx context.Context, path string, params url.Values, stage string) ([]byte, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, path, params)
	})

	duration := time.Since(start).Seconds()
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(stage, errorStatusLabel(err)).Inc()
		observability.UpstreamCallDuration.WithLabelValues(stage).Observe(duration)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker open", ErrUpstreamUnavailable)
		}
		return nil, err
	}

	observability.UpstreamCallsTotal.WithLabelValues(stage, "success").Inc()
	observability.UpstreamCallDuration.WithLabelValues(stage).Observe(duration)
	return result.([]byte), nil
}

func (c *OpenWeatherClient) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	base, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	base.RawQuery = params.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: request timeout: %v", ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrUpstreamUnavailable, err)
	}
	return body, nil
}

func mapStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case code == http.StatusNotFound:
		return ErrLocationNotFound
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamUnavailable, code)
	}
}

func errorStatusLabel(err error) string {
	switch {
	case errors.Is(err, ErrLocationNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAPIKey):
		return "unauthorized"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		return "error"
	}
}
