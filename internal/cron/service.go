// Package cron schedules background jobs like the revive sweep. It is a
// thin layer over robfig/cron that adds logging and graceful shutdown.
package cron

import (
	"context"
	"fmt"
	"log"
	"sync"

	rcron "github.com/robfig/cron/v3"
)

type job struct {
	name string
	expr string
	fn   func(context.Context)
}

type Service struct {
	mu     sync.Mutex
	jobs   []job
	cron   *rcron.Cron
	cancel context.CancelFunc
}

func NewService() *Service {
	return &Service{}
}

// Register queues a job for the next Start. Expressions use the six-field
// form with a leading seconds slot.
func (s *Service) Register(name, expr string, fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{name: name, expr: expr, fn: fn})
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cron = rcron.New(rcron.WithSeconds())

	for _, j := range s.jobs {
		j := j
		if _, err := s.cron.AddFunc(j.expr, func() {
			log.Printf("[cron] running %s", j.name)
			j.fn(runCtx)
		}); err != nil {
			cancel()
			return fmt.Errorf("register job %s (%s): %w", j.name, j.expr, err)
		}
	}

	s.cron.Start()
	log.Printf("[cron] started with %d jobs", len(s.jobs))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	log.Printf("[cron] stopped")
}

// JobCount reports how many jobs are registered.
func (s *Service) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
