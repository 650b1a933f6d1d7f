// Package scheduler owns the task queue, the concurrency limit, and the
// task state machine. A single-goroutine dispatch loop makes all queue
// and lock decisions; task bodies run on bounded worker slots.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"memflow/internal/device"
	"memflow/internal/domain"
	"memflow/internal/orchestrator"
	"memflow/internal/profile"
	"memflow/internal/resource"
	"memflow/internal/retry"
	"memflow/internal/task"
)

// Config tunes the scheduler. Zero values get defaults.
type Config struct {
	MaxParallelism   int
	DispatchInterval time.Duration
	// HistoryLimit bounds how many terminal tasks stay queryable in
	// memory before the oldest are purged.
	HistoryLimit int
	EventBuffer  int
}

func (c Config) withDefaults() Config {
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = 4
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = 250 * time.Millisecond
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 256
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

// HistoryStore receives terminal task snapshots for durable archiving.
// Optional; errors are logged, never propagated into scheduling.
type HistoryStore interface {
	Record(ctx context.Context, snap domain.TaskSnapshot) error
}

type entry struct {
	exec *task.Execution
	ctrl *task.Control
	seq  uint64
}

type Scheduler struct {
	cfg     Config
	store   profile.Store
	port    device.CommandPort
	coord   *resource.Coordinator
	orch    *orchestrator.Orchestrator
	history HistoryStore

	events chan domain.Event
	sem    chan struct{}
	wake   chan struct{}

	mu        sync.Mutex
	tasks     map[string]*entry
	doneOrder []string
	seq       uint64

	// baseCtx parents every task control, including tasks enqueued
	// before Run starts, so shutdown can always reach them.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	startedAt  time.Time
	wg         sync.WaitGroup
}

// New wires a scheduler. policies and history may be nil.
func New(cfg Config, store profile.Store, port device.CommandPort,
	coord *resource.Coordinator, policies map[retry.Category]retry.Policy,
	history HistoryStore) *Scheduler {

	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:     cfg,
		store:   store,
		port:    port,
		coord:   coord,
		history: history,
		events:  make(chan domain.Event, cfg.EventBuffer),
		sem:     make(chan struct{}, cfg.MaxParallelism),
		wake:    make(chan struct{}, 1),
		tasks:   map[string]*entry{},
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	s.orch = orchestrator.New(policies, s.publish)
	return s
}

// Events exposes the progress sink. Events are dropped when the buffer
// is full; the engine never blocks on a slow subscriber.
func (s *Scheduler) Events() <-chan domain.Event { return s.events }

// Resources lists currently held resource locks.
func (s *Scheduler) Resources() []domain.ResourceLock { return s.coord.ListHeld() }

// Run drives the dispatch loop until ctx is canceled, then waits for
// in-flight workers to observe cancellation and finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	log.Info().Int("max_parallelism", s.cfg.MaxParallelism).
		Dur("dispatch_interval", s.cfg.DispatchInterval).Msg("scheduler started")

	ticker := time.NewTicker(s.cfg.DispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.baseCancel()
			s.wg.Wait()
			log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.dispatch(ctx)
		case <-s.wake:
			s.dispatch(ctx)
		}
	}
}

// Submit validates the profile, creates the task, and enqueues it.
// Validation problems are returned synchronously wrapped in
// domain.ErrValidation; no task is created.
func (s *Scheduler) Submit(p domain.JobProfile, priority domain.Priority) (string, error) {
	if !priority.Valid() {
		priority = p.Priority
	}
	if !priority.Valid() {
		priority = domain.PriorityNormal
	}

	resolved, errs := profile.Resolve(s.store, p)
	if len(errs) > 0 {
		return "", domain.E(domain.ErrValidation, errors.Join(errs...).Error())
	}
	return s.enqueue(resolved, priority)
}

// SubmitProfile loads the job profile from the store and submits it.
func (s *Scheduler) SubmitProfile(profileID string, priority domain.Priority) (string, error) {
	p, err := s.store.GetJob(profileID)
	if err != nil {
		return "", domain.E(domain.ErrValidation, "job profile "+profileID+": "+err.Error())
	}
	return s.Submit(p, priority)
}

func (s *Scheduler) enqueue(job domain.ResolvedJob, priority domain.Priority) (string, error) {
	id := "tsk_" + uuid.NewString()
	exec := task.New(id, job, priority)
	if err := exec.Transition(domain.StateQueued); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.seq++
	s.tasks[id] = &entry{exec: exec, ctrl: task.NewControl(s.baseCtx), seq: s.seq}
	s.mu.Unlock()

	log.Info().Str("task_id", id).Str("profile_id", job.Profile.ID).
		Str("priority", priority.String()).Msg("task queued")
	s.publishSnapshot(exec, "queued")
	s.wakeup()
	return id, nil
}

// Cancel requests cooperative cancellation. Queued tasks cancel
// immediately; running or paused tasks stop at the next stage boundary.
func (s *Scheduler) Cancel(id string) error {
	e, err := s.get(id)
	if err != nil {
		return err
	}
	switch st := e.exec.State(); st {
	case domain.StateQueued:
		if err := e.exec.Transition(domain.StateCanceled); err != nil {
			// Lost the race against dispatch; the worker will observe
			// the canceled context at its first checkpoint instead.
			e.ctrl.Cancel()
			return nil
		}
		e.ctrl.Cancel()
		s.finalize(e)
		s.publishSnapshot(e.exec, "canceled before start")
		return nil
	case domain.StateScheduled, domain.StateRunning, domain.StatePaused:
		e.ctrl.Cancel()
		return nil
	default:
		return domain.E(domain.ErrInvalidTransition, "cancel in state "+string(st))
	}
}

// Pause asks a running task to stop after its current stage. The task
// keeps its resource locks while paused.
func (s *Scheduler) Pause(id string) error {
	e, err := s.get(id)
	if err != nil {
		return err
	}
	if st := e.exec.State(); st != domain.StateRunning {
		return domain.E(domain.ErrInvalidTransition, "pause in state "+string(st))
	}
	if !e.ctrl.RequestPause() {
		return domain.E(domain.ErrInvalidTransition, "pause already pending")
	}
	// The worker may have finished between the state check and the
	// request; a terminal task must not keep a stale pause flag around.
	if st := e.exec.State(); st.Terminal() {
		e.ctrl.RequestResume()
		return domain.E(domain.ErrInvalidTransition, "pause in state "+string(st))
	}
	log.Info().Str("task_id", id).Msg("pause requested")
	return nil
}

// Resume releases a paused (or pause-pending) task.
func (s *Scheduler) Resume(id string) error {
	e, err := s.get(id)
	if err != nil {
		return err
	}
	// A pause requested during the final stage is never observed; the
	// leftover flag must not make resume succeed on a finished task.
	if st := e.exec.State(); st.Terminal() {
		return domain.E(domain.ErrInvalidTransition, "resume in state "+string(st))
	}
	if !e.ctrl.RequestResume() {
		return domain.E(domain.ErrInvalidTransition,
			"resume in state "+string(e.exec.State()))
	}
	log.Info().Str("task_id", id).Msg("resume requested")
	return nil
}

// Restart creates a fresh task from a terminal task's frozen profile and
// returns the new task ID. Terminal states stay terminal.
func (s *Scheduler) Restart(id string) (string, error) {
	e, err := s.get(id)
	if err != nil {
		return "", err
	}
	snap := e.exec.Snapshot()
	if !snap.State.Terminal() {
		return "", domain.E(domain.ErrInvalidTransition, "restart in state "+string(snap.State))
	}
	return s.enqueue(e.exec.Job(), snap.Priority)
}

// Get returns a snapshot of one task.
func (s *Scheduler) Get(id string) (domain.TaskSnapshot, error) {
	e, err := s.get(id)
	if err != nil {
		return domain.TaskSnapshot{}, err
	}
	return e.exec.Snapshot(), nil
}

// GetByState returns snapshots of all retained tasks in a state, oldest
// first.
func (s *Scheduler) GetByState(state domain.TaskState) []domain.TaskSnapshot {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	var snaps []domain.TaskSnapshot
	for _, e := range entries {
		if snap := e.exec.Snapshot(); snap.State == state {
			snaps = append(snaps, snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	return snaps
}

// Stats summarizes retained tasks.
func (s *Scheduler) Stats() domain.Stats {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	started := s.startedAt
	s.mu.Unlock()

	stats := domain.Stats{CountByState: map[domain.TaskState]int{}}
	var completed int
	var total time.Duration
	for _, e := range entries {
		snap := e.exec.Snapshot()
		stats.CountByState[snap.State]++
		if snap.State == domain.StateCompleted {
			completed++
			total += snap.Duration()
		}
	}
	if completed > 0 {
		stats.AvgDuration = total / time.Duration(completed)
	}
	if !started.IsZero() {
		if mins := time.Since(started).Minutes(); mins > 0 {
			stats.Throughput = float64(completed) / mins
		}
	}
	return stats
}

func (s *Scheduler) get(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return nil, domain.E(domain.ErrTaskNotFound, id)
	}
	return e, nil
}

// dispatch walks queued tasks in priority order and starts every one
// whose resource set is free, until worker slots run out. A task whose
// resources are held is skipped, not waited on, so it cannot block
// lower-priority tasks with disjoint resource needs.
func (s *Scheduler) dispatch(ctx context.Context) {
	for _, e := range s.queued() {
		select {
		case s.sem <- struct{}{}:
		default:
			return // all worker slots busy
		}

		id := e.exec.ID()
		keys := e.exec.Job().ResourceKeys()
		granted, blocking := s.coord.TryAcquire(id, keys)
		if !granted {
			<-s.sem
			e.exec.SetBlockedBy(blocking)
			continue
		}
		e.exec.SetBlockedBy(nil)

		// A concurrent Cancel may have won; the transition table is the
		// arbiter.
		if err := e.exec.Transition(domain.StateScheduled); err != nil {
			s.coord.Release(id)
			<-s.sem
			continue
		}
		s.publishSnapshot(e.exec, "scheduled")
		if err := e.exec.Transition(domain.StateRunning); err != nil {
			s.coord.Release(id)
			<-s.sem
			continue
		}
		s.publishSnapshot(e.exec, "running")
		log.Info().Str("task_id", id).Strs("resources", keys).Msg("task dispatched")

		s.wg.Add(1)
		go s.runTask(e)
	}
}

func (s *Scheduler) queued() []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var q []*entry
	for _, e := range s.tasks {
		if e.exec.State() == domain.StateQueued {
			q = append(q, e)
		}
	}
	sort.Slice(q, func(i, j int) bool {
		pi, pj := q[i].exec.Snapshot().Priority, q[j].exec.Snapshot().Priority
		if pi != pj {
			return pi > pj
		}
		return q[i].seq < q[j].seq
	})
	return q
}

func (s *Scheduler) runTask(e *entry) {
	id := e.exec.ID()
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			// A panicking stage must not take the scheduler down.
			log.Error().Str("task_id", id).Interface("panic", r).Msg("task panicked")
			e.exec.SetError(domain.E(domain.ErrFatalDevice, "panic in stage"))
			_ = e.exec.Transition(domain.StateFailed)
		}
		s.coord.Release(id)
		s.finalize(e)
		<-s.sem
		s.wakeup()
	}()

	pipe := orchestrator.BuildDumpPipeline(s.port, e.exec.Job())
	final := s.orch.Execute(e.exec, e.ctrl, pipe)
	log.Info().Str("task_id", id).Str("state", string(final)).Msg("task finished")
}

// finalize archives a terminal task and prunes retained history.
func (s *Scheduler) finalize(e *entry) {
	snap := e.exec.Snapshot()
	if !snap.State.Terminal() {
		return
	}
	if s.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.history.Record(ctx, snap); err != nil {
			log.Warn().Str("task_id", snap.ID).Err(err).Msg("history record failed")
		}
		cancel()
	}

	s.mu.Lock()
	s.doneOrder = append(s.doneOrder, snap.ID)
	for len(s.doneOrder) > s.cfg.HistoryLimit {
		oldest := s.doneOrder[0]
		s.doneOrder = s.doneOrder[1:]
		delete(s.tasks, oldest)
	}
	s.mu.Unlock()
}

func (s *Scheduler) wakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// publish pushes an event to the sink, dropping it if the buffer is
// full.
func (s *Scheduler) publish(ev domain.Event) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Scheduler) publishSnapshot(exec *task.Execution, msg string) {
	snap := exec.Snapshot()
	s.publish(domain.Event{
		TaskID:  snap.ID,
		State:   snap.State,
		Stage:   snap.Stage,
		Percent: snap.Percent,
		Message: msg,
		Time:    time.Now(),
	})
}
