package services

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// SchedulerService runs the periodic maintenance jobs: the hourly call
// statistics garbage collection.
type SchedulerService struct {
	scheduler gocron.Scheduler
	stats     *StatsService
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(stats *StatsService) (*SchedulerService, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &SchedulerService{
		scheduler: scheduler,
		stats:     stats,
	}, nil
}

// Start registers the maintenance jobs and starts the scheduler.
func (s *SchedulerService) Start() error {
	log.Println("⏰ Starting scheduler service...")

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			if err := s.stats.GC(); err != nil {
				log.Printf("⚠️ Call stat GC failed: %v", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register stat GC job: %w", err)
	}

	s.scheduler.Start()
	log.Println("✅ Scheduler service started")
	return nil
}

// Stop stops the scheduler
func (s *SchedulerService) Stop() error {
	log.Println("⏹️ Stopping scheduler service...")
	return s.scheduler.Shutdown()
}
