package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loomledger/loomledger/jobs"
)

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskExportWorkbook, time.Hour)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskExportWorkbook, task.Type())

	task, err = BuildTask(jobs.TaskIdempotencyCleanup, time.Hour)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = BuildTask(jobs.TaskIdempotencyCleanup, 0)
	require.Error(t, err)

	_, err = BuildTask("mail:send", time.Hour)
	require.ErrorContains(t, err, "unsupported")
}
