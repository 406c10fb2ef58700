package dbt

import (
	"context"
	"fmt"
	"strings"

	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

// GateInput defines the arguments for a quality_gate task.
type GateInput struct {
	// OutputFrom names the run-context value holding the dbt test output,
	// as "task_id.key".
	OutputFrom string `hcl:"output_from"`
	// OnPass and OnFail are the successor task ids the gate routes to.
	OnPass string `hcl:"on_pass"`
	OnFail string `hcl:"on_fail"`
}

// RunGate inspects dbt test output and chooses the pass or fail path.
// dbt prints one "FAIL" line per failed test, so a substring scan is the
// verdict.
func RunGate(ctx context.Context, rc *runctx.Context, input any) (*task.Output, error) {
	in, ok := input.(*GateInput)
	if !ok {
		return nil, fmt.Errorf("quality_gate: unexpected input type %T", input)
	}
	logger := ctxlog.FromContext(ctx)

	taskID, key, ok := splitRef(in.OutputFrom)
	if !ok {
		return nil, fmt.Errorf("quality_gate: output_from %q is not of the form task_id.key", in.OutputFrom)
	}
	output, err := rc.ReadString(taskID, key)
	if err != nil {
		return nil, fmt.Errorf("quality_gate: %w", err)
	}

	if failedTests(output) {
		logger.Warn("Quality gate tripped.", "next", in.OnFail)
		return &task.Output{Branch: []string{in.OnFail}}, nil
	}
	logger.Info("Quality gate passed.", "next", in.OnPass)
	return &task.Output{Branch: []string{in.OnPass}}, nil
}

func failedTests(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "FAIL") || strings.Contains(line, "ERROR") {
			return true
		}
	}
	return false
}

// splitRef splits "a.b.c" into task id "a.b" and key "c".
func splitRef(ref string) (taskID, key string, ok bool) {
	i := strings.LastIndexByte(ref, '.')
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}
