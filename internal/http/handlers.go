package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"weatherpro/internal/models"
	"weatherpro/internal/store"
	"weatherpro/internal/upstream"
	"weatherpro/internal/validation"
)

// WeatherService is the pipeline the weather route calls into.
type WeatherService interface {
	GetWeather(ctx context.Context, location string) (models.WeatherPayload, error)
}

// Geocoder validates a location name before it is saved, reusing the
// upstream geocode stage.
type Geocoder interface {
	Geocode(ctx context.Context, location string) (upstream.Coordinates, error)
}

// Store is the persistence surface the handlers need.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	SaveLocation(ctx context.Context, loc models.Location) (int64, error)
	ListLocations(ctx context.Context, userID int64) ([]models.Location, error)
	DeleteLocation(ctx context.Context, id int64) error
	CreateAlert(ctx context.Context, rule models.AlertRule) (int64, error)
	ListAlertsByUser(ctx context.Context, userID int64) ([]models.AlertRule, error)
	DeactivateAlert(ctx context.Context, id int64) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather           WeatherService
	geocoder          Geocoder
	store             Store
	logger            *zap.Logger
	locationMaxLength int

	// DBPing and CachePing, when set, feed the health checks.
	DBPing    func(ctx context.Context) error
	CachePing func() error
}

// NewHandler returns a new Handler.
func NewHandler(weather WeatherService, geocoder Geocoder, st Store, logger *zap.Logger, locationMaxLength int) *Handler {
	return &Handler{
		weather:           weather,
		geocoder:          geocoder,
		store:             st,
		logger:            logger,
		locationMaxLength: locationMaxLength,
	}
}

// GetWeather handles GET /api/weather/{location}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	location, err := validation.ValidateLocation(mux.Vars(r)["location"], h.locationMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}

	payload, err := h.weather.GetWeather(r.Context(), location)
	if err != nil {
		h.writeWeatherError(w, r, err)
		return
	}

	// The provider's document passes through verbatim.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload.Raw)
}

// writeWeatherError maps pipeline failures onto the response taxonomy:
// unknown place is the user's problem, everything else is the provider's.
func (h *Handler) writeWeatherError(w http.ResponseWriter, r *http.Request, err error) {
	if logger := loggerFromRequest(r); logger != nil {
		logger.Debug("weather fetch failed", zap.Error(err))
	}
	switch {
	case errors.Is(err, upstream.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "Location not found")
	default:
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Failed to fetch weather data")
	}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}
	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeError(w, r, http.StatusBadRequest, "MISSING_FIELDS", "username, email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "REGISTRATION_FAILED", "Registration failed")
		return
	}

	if _, err := h.store.CreateUser(r.Context(), body.Username, body.Email, string(hash)); err != nil {
		if logger := loggerFromRequest(r); logger != nil {
			logger.Debug("registration failed", zap.String("username", body.Username), zap.Error(err))
		}
		writeError(w, r, http.StatusInternalServerError, "REGISTRATION_FAILED", "Registration failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), body.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "LOGIN_FAILED", "Login failed")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)) != nil {
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// SaveLocation handles POST /api/locations/save. The location is validated
// against the provider's geocoder before it is stored; users hold at most
// five saved locations.
func (h *Handler) SaveLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID      int64  `json:"user_id"`
		Location    string `json:"location"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}
	location, err := validation.ValidateLocation(body.Location, h.locationMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	if body.DisplayName == "" {
		body.DisplayName = location
	}

	coords, err := h.geocoder.Geocode(r.Context(), location)
	if err != nil {
		switch {
		case errors.Is(err, upstream.ErrLocationNotFound):
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "Invalid location")
		default:
			writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Failed to validate location")
		}
		return
	}

	_, err = h.store.SaveLocation(r.Context(), models.Location{
		UserID:      body.UserID,
		Name:        location,
		DisplayName: body.DisplayName,
		Latitude:    coords.Lat,
		Longitude:   coords.Lon,
	})
	if err != nil {
		if errors.Is(err, store.ErrLocationLimit) {
			writeError(w, r, http.StatusBadRequest, "LOCATION_LIMIT", "Maximum 5 locations allowed")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "SAVE_FAILED", "Failed to save location")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// GetUserLocations handles GET /api/locations/{userId}.
func (h *Handler) GetUserLocations(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "invalid user id")
		return
	}

	locations, err := h.store.ListLocations(r.Context(), userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "LIST_FAILED", "Failed to fetch locations")
		return
	}
	if locations == nil {
		locations = []models.Location{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"locations": locations})
}

// DeleteLocation handles DELETE /api/locations/{locationId}.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "locationId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "invalid location id")
		return
	}
	if err := h.store.DeleteLocation(r.Context(), id); err != nil {
		writeError(w, r, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete location")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// CreateAlert handles POST /api/alerts/create.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    int64   `json:"user_id"`
		Location  string  `json:"location"`
		AlertType string  `json:"alert_type"`
		Condition string  `json:"condition"`
		Threshold float64 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}
	location, err := validation.ValidateLocation(body.Location, h.locationMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	metric := models.Metric(body.AlertType)
	comparator := models.Comparator(body.Condition)
	if !metric.Valid() {
		writeError(w, r, http.StatusBadRequest, "INVALID_METRIC", "alert_type must be temperature, humidity, wind or rain")
		return
	}
	if !comparator.Valid() {
		writeError(w, r, http.StatusBadRequest, "INVALID_CONDITION", "condition must be above or below")
		return
	}

	_, err = h.store.CreateAlert(r.Context(), models.AlertRule{
		UserID:     body.UserID,
		Location:   location,
		Metric:     metric,
		Comparator: comparator,
		Threshold:  body.Threshold,
		Active:     true,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// alertResponse is the wire form of an alert rule.
type alertResponse struct {
	ID        int64   `json:"id"`
	Location  string  `json:"location"`
	AlertType string  `json:"alert_type"`
	Condition string  `json:"condition"`
	Threshold float64 `json:"threshold"`
	Triggered bool    `json:"triggered"`
}

// GetUserAlerts handles GET /api/alerts/{userId}. Only active rules are
// returned; soft-deleted ones stay hidden.
func (h *Handler) GetUserAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "invalid user id")
		return
	}

	rules, err := h.store.ListAlertsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "LIST_FAILED", "Failed to fetch alerts")
		return
	}

	alerts := make([]alertResponse, 0, len(rules))
	for _, rule := range rules {
		alerts = append(alerts, alertResponse{
			ID:        rule.ID,
			Location:  rule.Location,
			AlertType: string(rule.Metric),
			Condition: string(rule.Comparator),
			Threshold: rule.Threshold,
			Triggered: rule.LastTriggered != nil,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// DeleteAlert handles DELETE /api/alerts/{alertId}. Soft delete: the rule
// row stays, is_active is cleared.
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "alertId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "invalid alert id")
		return
	}
	if err := h.store.DeactivateAlert(r.Context(), id); err != nil {
		writeError(w, r, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// GetHealth handles GET /api/health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if h.DBPing != nil {
		if h.DBPing(r.Context()) == nil {
			checks["database"] = "healthy"
		} else {
			checks["database"] = "unhealthy"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}
	if h.CachePing != nil {
		if h.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			// The cache is best-effort; an unreachable backend degrades to
			// fetch-fresh, so the service stays healthy.
			checks["cache"] = "unhealthy"
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "weatherpro",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard format with code,
// message and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

func loggerFromRequest(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok {
		return logger
	}
	return nil
}
