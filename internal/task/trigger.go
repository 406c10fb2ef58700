package task

import "fmt"

// TriggerRule is the predicate over predecessor terminal statuses that
// decides whether a task runs once all its predecessors are terminal.
type TriggerRule int

const (
	// AllSuccess runs the task only if every predecessor succeeded.
	AllSuccess TriggerRule = iota
	// AllDone runs the task regardless of the predecessor outcome mix.
	AllDone
	// OneSuccess runs the task if at least one predecessor succeeded.
	OneSuccess
	// NoneFailedMinOneSuccess runs the task if no predecessor failed and
	// at least one succeeded.
	NoneFailedMinOneSuccess
)

func (r TriggerRule) String() string {
	switch r {
	case AllSuccess:
		return "all_success"
	case AllDone:
		return "all_done"
	case OneSuccess:
		return "one_success"
	case NoneFailedMinOneSuccess:
		return "none_failed_min_one_success"
	default:
		return "unknown"
	}
}

// ParseTriggerRule converts the configuration spelling of a rule into its
// enum value. The empty string maps to the AllSuccess default.
func ParseTriggerRule(s string) (TriggerRule, error) {
	switch s {
	case "", "all_success":
		return AllSuccess, nil
	case "all_done":
		return AllDone, nil
	case "one_success":
		return OneSuccess, nil
	case "none_failed_min_one_success":
		return NoneFailedMinOneSuccess, nil
	default:
		return AllSuccess, fmt.Errorf("unknown trigger rule %q", s)
	}
}
