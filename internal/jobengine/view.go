package jobengine

import "time"

// JobView is a read-only, fully-materialized view of a Job's state, shaped
// the way the event surface delivers it. ReturnCode and CompletedAt are nil
// while the Job is running.
type JobView struct {
	Running     bool       `json:"running"`
	JobID       string     `json:"job_id,omitempty"`
	Output      string     `json:"output"`
	Incremental bool       `json:"incremental"`
	ReturnCode  *int       `json:"return_code"`
	CompletedAt *time.Time `json:"completed_at"`

	// OutputEnd is the buffer offset just past the bytes this view accounts
	// for: the total output length for a full view, the offset just past the
	// chunk for an incremental. Stream consumers use it to discard deltas a
	// delivered full view already covers. Not part of the wire payload.
	OutputEnd int `json:"-"`
}

// Update is one event-surface notification: the automation it concerns and
// either a full snapshot (Incremental false) or an output delta
// (Incremental true).
type Update struct {
	Automation string  `json:"automation"`
	State      JobView `json:"state"`
}
