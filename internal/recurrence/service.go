// Package recurrence submits template job profiles on cron schedules.
// It sits beside the scheduler: every due entry turns into one normal
// task submission.
package recurrence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"memflow/internal/domain"
)

var ErrNotFound = errors.New("recurrence not found")

// Entry is one recurring submission.
type Entry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CronExpr  string          `json:"cron_expr"`
	ProfileID string          `json:"profile_id"`
	Priority  domain.Priority `json:"priority"`
	Enabled   bool            `json:"enabled"`
	LastRun   *time.Time      `json:"last_run,omitempty"`
	NextRun   time.Time       `json:"next_run"`
}

// Submitter is the slice of the scheduler the service needs.
type Submitter interface {
	SubmitProfile(profileID string, priority domain.Priority) (string, error)
}

type Service struct {
	submit   Submitter
	interval time.Duration
	stop     chan struct{}

	mu      sync.Mutex
	entries map[string]*Entry
}

func NewService(submit Submitter, checkInterval time.Duration) *Service {
	if checkInterval <= 0 {
		checkInterval = time.Second
	}
	return &Service{
		submit:   submit,
		interval: checkInterval,
		stop:     make(chan struct{}),
		entries:  map[string]*Entry{},
	}
}

// Add registers a recurring submission and returns its ID.
func (s *Service) Add(name, cronExpr, profileID string, priority domain.Priority) (string, error) {
	next, err := NextRunTime(cronExpr, time.Now())
	if err != nil {
		return "", err
	}
	e := &Entry{
		ID:        "rec_" + uuid.NewString(),
		Name:      name,
		CronExpr:  cronExpr,
		ProfileID: profileID,
		Priority:  priority,
		Enabled:   true,
		NextRun:   next,
	}
	s.mu.Lock()
	s.entries[e.ID] = e
	s.mu.Unlock()
	log.Info().Str("recurrence_id", e.ID).Str("cron_expr", cronExpr).
		Str("profile_id", profileID).Msg("recurrence added")
	return e.ID, nil
}

func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *Service) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Enabled = enabled
	return nil
}

func (s *Service) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start runs the check loop until ctx is canceled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("recurrence service started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.processDue(now)
		}
	}
}

func (s *Service) Stop() {
	close(s.stop)
}

func (s *Service) processDue(now time.Time) {
	s.mu.Lock()
	var due []*Entry
	for _, e := range s.entries {
		if e.Enabled && !e.NextRun.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if err := s.processEntry(e, now); err != nil {
			log.Error().Err(err).Str("recurrence_id", e.ID).Msg("failed to process recurrence")
		}
	}
}

func (s *Service) processEntry(e *Entry, now time.Time) error {
	taskID, err := s.submit.SubmitProfile(e.ProfileID, e.Priority)
	if err != nil {
		// Validation failures should not be retried every tick at full
		// volume; advance the schedule anyway.
		log.Error().Err(err).Str("recurrence_id", e.ID).Msg("recurring submission rejected")
	}

	next, nerr := NextRunTime(e.CronExpr, now)
	if nerr != nil {
		return nerr
	}

	s.mu.Lock()
	e.LastRun = &now
	e.NextRun = next
	s.mu.Unlock()

	if err == nil {
		log.Info().Str("recurrence_id", e.ID).Str("task_id", taskID).
			Time("next_run", next).Msg("recurring task submitted")
	}
	return err
}

// ValidateCronExpression validates a cron expression.
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRunTime calculates the next run time for a cron expression.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
