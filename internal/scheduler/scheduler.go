// Package scheduler periodically refreshes weather data for every location
// any user has saved, so cache entries stay warm and alert rules are
// evaluated between user requests.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"weatherpro/internal/models"
)

// WeatherService is the pipeline the sweep drives. Fresh cache entries make
// the call a cheap no-op; stale ones trigger the full fetch-cache-alert path.
type WeatherService interface {
	GetWeather(ctx context.Context, location string) (models.WeatherPayload, error)
}

// LocationSource lists the distinct locations worth refreshing.
type LocationSource interface {
	ListTrackedLocations(ctx context.Context) ([]string, error)
}

// Scheduler runs the periodic refresh sweep.
type Scheduler struct {
	scheduler *gocron.Scheduler
	weather   WeatherService
	locations LocationSource
	logger    *zap.Logger
	interval  time.Duration
}

// New creates a Scheduler. An interval of 0 disables it.
func New(weather WeatherService, locations LocationSource, logger *zap.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		weather:   weather,
		locations: locations,
		logger:    logger,
		interval:  interval,
	}
}

// Start schedules the sweep and starts the underlying scheduler without
// blocking. No-op when the interval is 0.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("refresh sweep disabled")
		return nil
	}
	if _, err := s.scheduler.Every(s.interval).Do(s.refresh); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("refresh sweep scheduled", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// refresh walks the tracked locations sequentially. One slow or failing
// location must not sink the sweep; failures are logged per location.
func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	locations, err := s.locations.ListTrackedLocations(ctx)
	if err != nil {
		s.logger.Warn("refresh sweep: listing locations failed", zap.Error(err))
		return
	}

	for _, location := range locations {
		if ctx.Err() != nil {
			s.logger.Warn("refresh sweep ran out of time", zap.Int("remaining", len(locations)))
			return
		}
		if _, err := s.weather.GetWeather(ctx, location); err != nil {
			s.logger.Warn("refresh sweep: fetch failed",
				zap.String("location", location),
				zap.Error(err))
		}
	}
	s.logger.Debug("refresh sweep complete", zap.Int("locations", len(locations)))
}
