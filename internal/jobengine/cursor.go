package jobengine

// Cursor tracks, per automation, how much output one event-stream consumer
// has been delivered. Subscribing races the initial full snapshots: a delta
// published in between sits in the subscriber queue and its bytes are also
// inside the snapshot, so relaying it verbatim would deliver them twice.
// Admit filters the stream by job id and buffer offset so the consumer sees
// every byte exactly once.
//
// A Cursor belongs to a single consumer goroutine and is not safe for
// concurrent use.
type Cursor struct {
	pos map[string]cursorPos
}

type cursorPos struct {
	jobID    string
	end      int
	terminal bool
}

// NewCursor creates a Cursor with no delivery history.
func NewCursor() *Cursor {
	return &Cursor{pos: make(map[string]cursorPos)}
}

// Admit reports whether the update advances the consumer's view and should
// be delivered, recording it if so. Deltas whose bytes a delivered full view
// already covers are rejected, as are deltas for a job a newer full view has
// superseded, stale full views, and repeats of a delivered terminal view.
func (c *Cursor) Admit(u Update) bool {
	p, seen := c.pos[u.Automation]

	if u.State.Incremental {
		// A job's full running view is always published before its deltas,
		// so a job id mismatch means a newer full view replaced this job.
		if seen && (p.jobID != u.State.JobID || u.State.OutputEnd <= p.end) {
			return false
		}

		p.jobID = u.State.JobID
		p.end = u.State.OutputEnd
		c.pos[u.Automation] = p

		return true
	}

	terminal := u.State.ReturnCode != nil

	if seen && p.jobID == u.State.JobID && u.State.OutputEnd <= p.end &&
		(p.terminal || !terminal) {
		return false
	}

	c.pos[u.Automation] = cursorPos{
		jobID:    u.State.JobID,
		end:      u.State.OutputEnd,
		terminal: terminal,
	}

	return true
}
