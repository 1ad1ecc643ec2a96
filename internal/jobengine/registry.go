package jobengine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homedash/dashd/internal/automation"
	"github.com/homedash/dashd/internal/jobengine/broadcast"
)

// Registry owns all Jobs and is the single source of truth for state
// queries. It enforces the central invariant: for any automation name, at
// most one Job is running at any instant. Each name has its own slot with
// its own lock, so operations on distinct automations never contend.
type Registry struct {
	// catalogue preserves config order for listings; automations is the
	// lookup map. Both are immutable after construction.
	catalogue   []automation.Automation
	automations map[string]automation.Automation

	slots map[string]*slot

	hub    *broadcast.Hub[Update]
	grace  time.Duration
	logger *slog.Logger
}

// slot holds the current or most recent Job for one automation name. The
// mutex makes "check current state, and if absent create" atomic per name.
type slot struct {
	job *Job

	mu sync.Mutex
}

// NewRegistry creates a Registry for the given automation catalogue. A zero
// grace duration selects DefaultGracePeriod.
func NewRegistry(
	automations []automation.Automation,
	logger *slog.Logger,
	grace time.Duration,
) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	r := &Registry{
		catalogue:   automations,
		automations: make(map[string]automation.Automation, len(automations)),
		slots:       make(map[string]*slot, len(automations)),
		hub:         broadcast.NewHub[Update](),
		grace:       grace,
		logger:      logger,
	}

	for _, a := range automations {
		r.automations[a.Name] = a
		r.slots[a.Name] = &slot{}
	}

	return r
}

// Automations returns the catalogue in config order.
func (r *Registry) Automations() []automation.Automation {
	return r.catalogue
}

// Start creates and launches a new Job for the named automation and returns
// its id. It does not block on the child process beyond the spawn itself:
// output pumping and exit handling run on the Job's own goroutine.
//
// It fails with ErrUnknownAutomation for a name not in the catalogue,
// ErrAlreadyRunning if a Job for the name is still running (the existing
// Job is unaffected), and a LaunchError if the process could not be spawned
// (in which case no Job is recorded).
func (r *Registry) Start(name, args string) (string, error) {
	def, ok := r.automations[name]
	if !ok {
		return "", ErrUnknownAutomation
	}

	argv, err := automation.SplitArgs(args)
	if err != nil {
		return "", NewLaunchError(err)
	}

	if len(argv) > 0 && !def.AcceptsArgs {
		return "", NewLaunchError(
			fmt.Errorf("automation %q does not accept arguments", name),
		)
	}

	s := r.slots[name]

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil && !s.job.State().Terminal() {
		return "", ErrAlreadyRunning
	}

	job := newJob(uuid.NewString(), def, argv, r.hub.Publish, r.logger)

	if err := job.start(); err != nil {
		return "", NewLaunchError(err)
	}

	// The previous Job for this name, if any, is dropped here. Most recent
	// only; no full history.
	s.job = job

	r.logger.Info(
		"automation started",
		"automation", name,
		"job_id", job.ID(),
		"args", args,
	)

	return job.ID(), nil
}

// Cancel requests termination of the named automation's running Job.
// Returning nil means the termination signal was issued; the transition to
// Cancelled happens asynchronously when the process exits. Cancelling an
// automation with nothing running is an idempotent no-op reported as
// ErrNotRunning.
func (r *Registry) Cancel(name string) error {
	s, ok := r.slots[name]
	if !ok {
		return ErrUnknownAutomation
	}

	s.mu.Lock()
	job := s.job
	s.mu.Unlock()

	if job == nil {
		return ErrNotRunning
	}

	if err := job.terminate(r.grace); err != nil {
		return err
	}

	r.logger.Info(
		"automation cancel requested",
		"automation", name,
		"job_id", job.ID(),
	)

	return nil
}

// Snapshot returns a fully-materialized view of the most recent Job for the
// named automation. A known automation that has never run yields a zero
// view (not running, empty output, nil return code).
func (r *Registry) Snapshot(name string) (JobView, error) {
	s, ok := r.slots[name]
	if !ok {
		return JobView{}, ErrUnknownAutomation
	}

	s.mu.Lock()
	job := s.job
	s.mu.Unlock()

	if job == nil {
		return JobView{}, nil
	}

	return job.View(), nil
}

// SnapshotAll returns a view per known automation, for initial state
// population on connect.
func (r *Registry) SnapshotAll() map[string]JobView {
	views := make(map[string]JobView, len(r.catalogue))

	for _, a := range r.catalogue {
		view, err := r.Snapshot(a.Name)
		if err != nil {
			continue
		}

		views[a.Name] = view
	}

	return views
}

// Subscribe attaches a new subscriber to the event stream. The caller is
// responsible for sending itself a full snapshot first and for honoring
// the subscriber's resync flag.
func (r *Registry) Subscribe(buffer int) *broadcast.Subscriber[Update] {
	return r.hub.Subscribe(buffer)
}

// Shutdown makes a best-effort attempt to cancel all running Jobs and waits
// for them to reach a terminal state, then closes the event hub.
func (r *Registry) Shutdown() {
	var wg sync.WaitGroup

	for _, s := range r.slots {
		s.mu.Lock()
		job := s.job
		s.mu.Unlock()

		if job == nil {
			continue
		}

		if err := job.terminate(r.grace); err != nil {
			continue
		}

		wg.Go(func() {
			<-job.Done()
		})
	}

	wg.Wait()

	r.hub.Close()
}
