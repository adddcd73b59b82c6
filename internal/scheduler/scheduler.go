package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"imovel-monitor/internal/config"
)

// Trigger starts a run without waiting for it
type Trigger interface {
	TriggerRun() (bool, error)
}

// Scheduler fires the daily monitoring run
type Scheduler struct {
	cron      *cron.Cron
	trigger   Trigger
	config    *config.Config
	isRunning bool
}

// NewScheduler creates a new scheduler in the configured timezone
func NewScheduler(trigger Trigger, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(cfg.Location())),
		trigger: trigger,
		config:  cfg,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	if !s.config.Scraper.DailyRunEnabled {
		logger.Infof("Daily run is disabled in configuration")
		return nil
	}

	cronSpec := parseDailyRunTime(s.config.Scraper.DailyRunTime)

	_, err := s.cron.AddFunc(cronSpec, s.fire)
	if err != nil {
		return fmt.Errorf("failed to schedule daily run: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	logger.Infof("Started with daily run at %s (cron: %s, tz: %s)",
		s.config.Scraper.DailyRunTime, cronSpec, s.config.Location())

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		logger.Infof("Stopped")
	}
}

// Entries reports the next fire times, mostly for the status endpoint
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) fire() {
	logger.Infof("Starting daily monitoring run...")
	started, err := s.trigger.TriggerRun()
	if err != nil {
		// a manual run is in progress; the daily one is skipped, not queued
		logger.Warnf("Daily run skipped: %v", err)
		return
	}
	if started {
		logger.Infof("Daily run dispatched")
	}
}

// parseDailyRunTime converts HH:MM format to a cron expression
// Example: "06:00" -> "0 6 * * *"
func parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	logger.Warnf("Failed to parse time '%s', using default 06:00", timeStr)
	return "0 6 * * *"
}
