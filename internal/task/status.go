package task

// Status is the per-run execution state of a task. A task is created
// Pending at run start, is assigned a terminal status exactly once, and
// never regresses.
type Status int32

const (
	Pending Status = iota
	Running
	Success
	Failed
	Skipped
	UpstreamFailed
)

// Terminal reports whether no further transition can occur within a run.
func (s Status) Terminal() bool {
	switch s {
	case Success, Failed, Skipped, UpstreamFailed:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case UpstreamFailed:
		return "upstream_failed"
	default:
		return "unknown"
	}
}
