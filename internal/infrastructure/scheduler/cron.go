package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"EBMS/internal/ports"
)

// CronScheduler runs a job either daily at a wall-clock time ("HH:MM") or at a
// fixed interval ("@every 6h").
type CronScheduler struct {
	daily    time.Duration
	interval time.Duration
	loc      *time.Location

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler parses the schedule expression.
func NewCronScheduler(spec string, loc *time.Location) (*CronScheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := &CronScheduler{loc: loc}
	spec = strings.TrimSpace(spec)
	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid schedule interval %q", rest)
		}
		c.interval = d
		return c, nil
	}
	at, err := time.Parse("15:04", spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: want HH:MM or @every <duration>", spec)
	}
	c.daily = time.Duration(at.Hour())*time.Hour + time.Duration(at.Minute())*time.Minute
	return c, nil
}

// Next returns the first run strictly after now.
func (c *CronScheduler) Next(now time.Time) time.Time {
	if c.interval > 0 {
		return now.Add(c.interval)
	}
	local := now.In(c.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	next := midnight.Add(c.daily)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.loc).Add(c.daily)
	}
	return next
}

// Start runs job at every scheduled time until ctx ends or Stop is called.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done
	go func() {
		defer close(done)
		for {
			timer := time.NewTimer(time.Until(c.Next(time.Now())))
			select {
			case t := <-timer.C:
				job(t)
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop halts the scheduling goroutine and waits for a running job to finish.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
