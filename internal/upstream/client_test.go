package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestServer serves the two provider endpoints with canned responses and
// records the requests it saw.
func newTestServer(t *testing.T, geocodeStatus int, geocodeBody string, detailStatus int, detailBody string) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var seen []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clone := r.Clone(r.Context())
		seen = append(seen, clone)
		switch r.URL.Path {
		case "/weather":
			w.WriteHeader(geocodeStatus)
			w.Write([]byte(geocodeBody))
		case "/onecall":
			w.WriteHeader(detailStatus)
			w.Write([]byte(detailBody))
		default:
			t.Errorf("unexpected request path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

const testGeocodeBody = `{"coord":{"lat":48.8566,"lon":2.3522},"name":"Paris"}`
const testDetailBody = `{"lat":48.8566,"lon":2.3522,"current":{"temp":21.5,"humidity":60,"wind_speed":3.2}}`

// TestNewOpenWeatherClientRequiresKey verifies construction fails without
// credentials.
func TestNewOpenWeatherClientRequiresKey(t *testing.T) {
	_, err := NewOpenWeatherClient("", "http://example.com", time.Second)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("NewOpenWeatherClient() error = %v, want ErrInvalidAPIKey", err)
	}
}

// TestFetchTwoStage verifies the geocode-then-detail sequence: the second
// request carries the coordinates from the first, and the returned payload
// keeps the raw detail body alongside the decoded current conditions.
func TestFetchTwoStage(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK, testGeocodeBody, http.StatusOK, testDetailBody)

	client, err := NewOpenWeatherClient("test-key", srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	payload, err := client.Fetch(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(*seen) != 2 {
		t.Fatalf("provider saw %d requests, want 2", len(*seen))
	}
	geocode, detail := (*seen)[0], (*seen)[1]

	if geocode.URL.Path != "/weather" {
		t.Errorf("first request path = %q, want /weather", geocode.URL.Path)
	}
	q := geocode.URL.Query()
	if q.Get("q") != "Paris" || q.Get("appid") != "test-key" || q.Get("units") != "metric" {
		t.Errorf("geocode query = %v, want q=Paris appid=test-key units=metric", q)
	}

	if detail.URL.Path != "/onecall" {
		t.Errorf("second request path = %q, want /onecall", detail.URL.Path)
	}
	q = detail.URL.Query()
	if q.Get("lat") != "48.8566" || q.Get("lon") != "2.3522" {
		t.Errorf("detail coordinates = lat=%s lon=%s, want forwarded from geocode", q.Get("lat"), q.Get("lon"))
	}
	if q.Get("units") != "metric" || q.Get("exclude") != "minutely" {
		t.Errorf("detail query = %v, want units=metric exclude=minutely", q)
	}

	if string(payload.Raw) != testDetailBody {
		t.Errorf("payload.Raw = %s, want verbatim detail body", payload.Raw)
	}
	if payload.Current.Temp != 21.5 || payload.Current.Humidity != 60 || payload.Current.WindSpeed != 3.2 {
		t.Errorf("payload.Current = %+v, want temp=21.5 humidity=60 wind=3.2", payload.Current)
	}
	if payload.Location != "Paris" {
		t.Errorf("payload.Location = %q, want Paris", payload.Location)
	}
}

// TestFetchErrorMapping verifies the provider status taxonomy on both stages.
func TestFetchErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		geocodeStatus int
		detailStatus  int
		wantErr       error
	}{
		{"geocode not found", http.StatusNotFound, http.StatusOK, ErrLocationNotFound},
		{"geocode unauthorized", http.StatusUnauthorized, http.StatusOK, ErrInvalidAPIKey},
		{"geocode server error", http.StatusInternalServerError, http.StatusOK, ErrUpstreamUnavailable},
		{"detail server error", http.StatusOK, http.StatusInternalServerError, ErrUpstreamUnavailable},
		// A 404 at the detail stage is a provider fault, not an unknown
		// location.
		{"detail not found", http.StatusOK, http.StatusNotFound, ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.geocodeStatus, testGeocodeBody, tt.detailStatus, testDetailBody)
			client, err := NewOpenWeatherClient("test-key", srv.URL, time.Second)
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() error = %v", err)
			}

			_, err = client.Fetch(context.Background(), "Paris")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestGeocode verifies the standalone geocode path used to validate
// locations before saving them.
func TestGeocode(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK, testGeocodeBody, http.StatusOK, testDetailBody)
	client, err := NewOpenWeatherClient("test-key", srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	coords, err := client.Geocode(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
	if coords.Lat != 48.8566 || coords.Lon != 2.3522 {
		t.Errorf("Geocode() = %+v, want lat=48.8566 lon=2.3522", coords)
	}
	if len(*seen) != 1 {
		t.Errorf("provider saw %d requests, want 1 (no detail call)", len(*seen))
	}
}

// TestFetchMalformedDetail verifies an unparseable detail document maps to an
// upstream error rather than a zero-valued payload.
func TestFetchMalformedDetail(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, testGeocodeBody, http.StatusOK, `{"current":`)
	client, err := NewOpenWeatherClient("test-key", srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	_, err = client.Fetch(context.Background(), "Paris")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrUpstreamUnavailable", err)
	}
}
