package services

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/pkg/config"
	"github.com/fairwaybets/tracker/pkg/logger"
)

// JobInfo records the bookkeeping for one scheduled refresh job.
type JobInfo struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	RunCount  int64      `json:"run_count"`
}

// RefresherService re-tracks live tournaments on a cron schedule so cached
// views stay warm during play.
type RefresherService struct {
	engine   *Engine
	cfg      *config.Config
	cron     *cron.Cron
	logger   *logrus.Logger
	mu       sync.Mutex
	job      JobInfo
	stopOnce sync.Once
}

func NewRefresherService(engine *Engine, cfg *config.Config) *RefresherService {
	return &RefresherService{
		engine: engine,
		cfg:    cfg,
		cron:   cron.New(),
		logger: logger.GetLogger(),
		job: JobInfo{
			Name:     "live_refresh",
			Schedule: cfg.RefreshSchedule,
		},
	}
}

// Start registers the refresh job and starts the scheduler. No-op when
// refresh is disabled in config.
func (s *RefresherService) Start() error {
	if !s.cfg.RefreshEnabled {
		s.logger.Info("Live refresh disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.RefreshSchedule, func() {
		s.runRefresh()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.cfg.RefreshSchedule).Info("Live refresh scheduler started")
	return nil
}

// Stop halts the scheduler, waiting up to five seconds for a running job.
func (s *RefresherService) Stop() {
	s.stopOnce.Do(func() {
		ctx := s.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			s.logger.Warn("Timed out waiting for refresh job to stop")
		}
	})
}

// Job returns a snapshot of the refresh job's bookkeeping.
func (s *RefresherService) Job() JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

func (s *RefresherService) runRefresh() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Recovered from panic in refresh job")
			s.recordRun("panic in refresh job")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	resp, err := s.engine.DiscoverTrackedTournaments(ctx, nil, false)
	if err != nil {
		s.logger.WithError(err).Error("Refresh discovery failed")
		s.recordRun(err.Error())
		return
	}

	refreshed := 0
	for _, t := range resp.Tournaments {
		if t.Status != models.TrackingLive {
			continue
		}
		s.engine.InvalidateTournament(ctx, t.ID)
		if _, err := s.engine.TrackTournament(ctx, t.ID); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"tournament_id": t.ID,
				"name":          t.Name,
			}).Warn("Failed to refresh tournament")
			continue
		}
		refreshed++
	}

	s.logger.WithFields(logrus.Fields{
		"component": "refresher",
		"refreshed": refreshed,
		"duration":  time.Since(start),
	}).Info("Live refresh completed")
	s.recordRun("")
}

func (s *RefresherService) recordRun(errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.job.LastRun = &now
	s.job.LastError = errMsg
	s.job.RunCount++
}
