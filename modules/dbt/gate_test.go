package dbt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operator13/spotify-datapipeline/internal/runctx"
)

func TestGateRoutesOnPassWhenTestsPass(t *testing.T) {
	t.Parallel()
	rc := runctx.New()
	require.NoError(t, rc.Publish("dbt_test", "output", "Completed successfully\nDone. PASS=12 WARN=0"))

	out, err := RunGate(context.Background(), rc, &GateInput{
		OutputFrom: "dbt_test.output",
		OnPass:     "quality_passed",
		OnFail:     "quality_failed",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"quality_passed"}, out.Branch)
}

func TestGateRoutesOnFailWhenTestsFail(t *testing.T) {
	t.Parallel()
	rc := runctx.New()
	require.NoError(t, rc.Publish("dbt_test", "output", "12:00:01  FAIL 3 not_null_fct_tracks_track_id\nDone. PASS=9 FAIL=3"))

	out, err := RunGate(context.Background(), rc, &GateInput{
		OutputFrom: "dbt_test.output",
		OnPass:     "quality_passed",
		OnFail:     "quality_failed",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"quality_failed"}, out.Branch)
}

func TestGateRoutesOnFailOnDbtError(t *testing.T) {
	t.Parallel()
	rc := runctx.New()
	require.NoError(t, rc.Publish("dbt_test", "output", "Runtime ERROR: could not connect to database"))

	out, err := RunGate(context.Background(), rc, &GateInput{
		OutputFrom: "dbt_test.output",
		OnPass:     "quality_passed",
		OnFail:     "quality_failed",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"quality_failed"}, out.Branch)
}

func TestGateFailsOnMissingOutput(t *testing.T) {
	t.Parallel()
	rc := runctx.New()

	_, err := RunGate(context.Background(), rc, &GateInput{
		OutputFrom: "dbt_test.output",
		OnPass:     "quality_passed",
		OnFail:     "quality_failed",
	})

	require.Error(t, err)
}

func TestGateRejectsMalformedReference(t *testing.T) {
	t.Parallel()
	rc := runctx.New()

	_, err := RunGate(context.Background(), rc, &GateInput{
		OutputFrom: "no_dot_here",
		OnPass:     "a",
		OnFail:     "b",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "output_from")
}

func TestSplitRef(t *testing.T) {
	t.Parallel()

	taskID, key, ok := splitRef("dbt_tasks.dbt_test.output")
	assert.True(t, ok)
	assert.Equal(t, "dbt_tasks.dbt_test", taskID)
	assert.Equal(t, "output", key)

	_, _, ok = splitRef("plain")
	assert.False(t, ok)

	_, _, ok = splitRef(".leading")
	assert.False(t, ok)

	_, _, ok = splitRef("trailing.")
	assert.False(t, ok)
}
