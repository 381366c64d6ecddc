package scheduler

import (
	"fmt"
	"time"

	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/go-co-op/gocron"
)

type service struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Clear()
	s.scheduler.Stop()
}

// ScheduleEvery runs task right away and then every interval. A run is
// skipped while the previous one is still in progress.
func (s *service) ScheduleEvery(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be greater than 0")
	}
	_, err := s.scheduler.Every(interval).SingletonMode().Do(task)
	return err
}
