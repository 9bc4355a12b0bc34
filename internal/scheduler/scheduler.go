// Package scheduler drives the periodic background jobs. Each job runs on its
// own ticker and never overlaps itself: ticks that fire while the previous
// invocation is still running are dropped, not queued.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// JobFunc is one scheduled job body. The context is independent of Stop:
// cancellation stops future ticks but lets an in-flight run finish naturally,
// so no job is abandoned mid-write.
type JobFunc func(ctx context.Context) error

type job struct {
	id       string
	interval time.Duration
	fn       JobFunc
}

// Scheduler owns the periodic triggers and their graceful lifecycle.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	grace   time.Duration
}

// New returns a stopped scheduler. grace bounds how long Stop waits for
// in-flight jobs.
func New(grace time.Duration) *Scheduler {
	return &Scheduler{grace: grace}
}

// Add registers a job. Jobs added after Start are ignored until the next
// Start.
func (s *Scheduler) Add(id string, interval time.Duration, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{id: id, interval: interval, fn: fn})
}

// Start launches one goroutine per registered job. Calling Start on a
// running scheduler is a no-op with a warning.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		log.Println("scheduler: already running, ignoring Start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, j)
		log.Printf("scheduler: job %s scheduled every %s", j.id, j.interval)
	}
}

// Stop cancels future ticks and waits, bounded by the grace period, for any
// in-flight invocation to finish before returning.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("scheduler: stopped")
	case <-time.After(s.grace):
		log.Printf("scheduler: shutdown grace period (%s) elapsed with jobs still running", s.grace)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.invoke(j)
			// Any tick that fired while the job was running would overlap
			// it; drop those ticks instead of queueing them.
			skipped := 0
		drain:
			for {
				select {
				case <-ticker.C:
					skipped++
				default:
					break drain
				}
			}
			if skipped > 0 {
				log.Printf("scheduler: job %s overran its interval, skipped %d tick(s)", j.id, skipped)
			}
		}
	}
}

// invoke runs one job body, containing panics so one job's crash never stops
// the other jobs' future ticks.
func (s *Scheduler) invoke(j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: job %s panicked: %v", j.id, r)
		}
	}()
	if err := j.fn(context.Background()); err != nil {
		log.Printf("scheduler: job %s failed: %v", j.id, err)
	}
}
