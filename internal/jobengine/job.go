package jobengine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/homedash/dashd/internal/automation"
	"github.com/homedash/dashd/internal/jobengine/output"
)

const (
	// CancelReturnCode is the reserved sentinel recorded for a cancelled
	// Job. A natural process exit can never produce it: real exit statuses
	// are in the 0-255 range and wait failures are recorded as -1.
	CancelReturnCode = -999

	// DefaultGracePeriod is how long a cancel waits after SIGTERM before
	// escalating to SIGKILL.
	DefaultGracePeriod = 3 * time.Second

	startingBanner = "Starting...\n"
	cancelBanner   = "\n\n=== CANCELLED BY USER ===\n"
)

// result holds the fields that are set exactly once, together with the
// transition out of Running.
type result struct {
	returnCode  int
	completedAt time.Time
}

// Job represents one execution attempt of an automation. It owns the child
// process from spawn to exit: the process runs in its own process group so
// cancellation kills any children the script spawned, stdout and stderr are
// merged into a single pipe, and a pump goroutine appends each line to the
// output buffer and notifies subscribers.
type Job struct {
	id             string
	automationName string

	state     AtomicJobState
	cancelled atomic.Bool
	result    atomic.Pointer[result]

	startedAt time.Time

	cmd    *exec.Cmd
	output *output.Buffer
	done   chan struct{}

	notify func(Update)
	logger *slog.Logger
}

// newJob configures a Job for the given automation. The process is not
// spawned until start is called.
func newJob(
	id string,
	def automation.Automation,
	argv []string,
	notify func(Update),
	logger *slog.Logger,
) *Job {
	cmd := exec.Command(def.Command, argv...)

	// Own process group, so termination signals reach the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	return &Job{
		id:             id,
		automationName: def.Name,
		cmd:            cmd,
		output:         output.NewBuffer(),
		done:           make(chan struct{}),
		notify:         notify,
		logger:         logger,
	}
}

// start spawns the process and begins pumping its output. An error here
// means the Job never reached Running and holds no resources.
func (j *Job) start() error {
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create output pipe: %w", err)
	}

	j.cmd.Stdout = pw
	j.cmd.Stderr = pw

	if err := j.cmd.Start(); err != nil {
		pr.Close()
		pw.Close()

		return err
	}

	// The child (and any children it spawns) hold their own copies of the
	// write end. Closing ours means the pump sees EOF once they all exit.
	pw.Close()

	j.startedAt = time.Now()
	j.state.Store(JobStateRunning)

	j.output.AppendString(startingBanner)
	j.notify(Update{Automation: j.automationName, State: j.View()})

	go j.pump(pr)

	return nil
}

// pump reads the merged output incrementally, line by line, appending each
// chunk to the buffer and notifying subscribers. When the stream ends it
// reaps the process and drives the Job to its terminal state. This is the
// only goroutine that finalizes the Job, so nothing can leave it stuck in
// Running.
func (j *Job) pump(pr *os.File) {
	defer pr.Close()

	r := bufio.NewReader(pr)

	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			end := j.output.AppendString(line)
			j.notify(Update{
				Automation: j.automationName,
				State: JobView{
					Running:     true,
					JobID:       j.id,
					Output:      line,
					Incremental: true,
					OutputEnd:   end,
				},
			})
		}

		if err != nil {
			if err != io.EOF {
				j.logger.Warn(
					"read job output",
					"automation", j.automationName,
					"job_id", j.id,
					"err", err,
				)
			}

			break
		}
	}

	j.cmd.Wait()

	code := -1
	if ps := j.cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
	}

	j.finalize(code)
}

// finalize records the terminal state exactly once. A cancel observed before
// the exit wins over whatever code the OS reports.
func (j *Job) finalize(code int) {
	target := JobStateCompleted

	switch {
	case j.cancelled.Load():
		target = JobStateCancelled
		code = CancelReturnCode
	case code != 0:
		target = JobStateFailed
	}

	// The result gates the finalization exactly once; a duplicate exit
	// notification is a no-op. It is stored before the state leaves Running,
	// so anything that observes a terminal state also sees the return code
	// and completion time.
	res := &result{returnCode: code, completedAt: time.Now()}
	if !j.result.CompareAndSwap(nil, res) {
		return
	}

	if target == JobStateCancelled {
		j.output.AppendString(cancelBanner)
	}

	j.output.Close()

	j.state.Store(target)

	close(j.done)

	j.notify(Update{Automation: j.automationName, State: j.View()})

	j.logger.Info(
		"job finished",
		"automation", j.automationName,
		"job_id", j.id,
		"state", target.String(),
		"return_code", code,
		"duration", res.completedAt.Sub(j.startedAt),
	)
}

// terminate requests cooperative termination: SIGTERM to the process group
// now, SIGKILL if it hasn't exited after the grace period. Returning nil
// means the signal was issued, not that the process has stopped.
func (j *Job) terminate(grace time.Duration) error {
	if j.State() != JobStateRunning {
		return ErrNotRunning
	}

	// Mark before signalling, so the exit path records the sentinel even if
	// the process happens to exit on its own in the same instant.
	j.cancelled.Store(true)

	pgid := j.cmd.Process.Pid

	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil &&
		!errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group: %w", err)
	}

	go func() {
		select {
		case <-j.done:
		case <-time.After(grace):
			// Grace period expired without an exit. Force the issue.
			unix.Kill(-pgid, unix.SIGKILL)
		}
	}()

	return nil
}

// ID returns the Job's unique id.
func (j *Job) ID() string {
	return j.id
}

// Automation returns the name of the automation this Job executes.
func (j *Job) Automation() string {
	return j.automationName
}

// State returns the current lifecycle state.
func (j *Job) State() JobState {
	return j.state.Load()
}

// Done returns a channel that is closed once the Job is terminal.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// View returns a full snapshot of the Job: entire accumulated output plus
// current state, return code, and completion time.
func (j *Job) View() JobView {
	state := j.State()

	chunk, end := j.output.ReadFrom(0)

	view := JobView{
		Running:   state == JobStateRunning,
		JobID:     j.id,
		Output:    string(chunk),
		OutputEnd: end,
	}

	// The result is only read behind a terminal state, where finalize
	// guarantees it has been stored. Reading it unconditionally could pair a
	// stale Running state with a populated return code.
	if state.Terminal() {
		res := j.result.Load()
		rc := res.returnCode
		at := res.completedAt
		view.ReturnCode = &rc
		view.CompletedAt = &at
	}

	return view
}
