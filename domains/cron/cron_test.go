package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	all := []Action{ActionScheduledPost, ActionGenerateDrafts, ActionCheckMetrics}

	got, err := Sequence("")
	require.NoError(t, err)
	assert.Equal(t, all, got)

	got, err = Sequence("all")
	require.NoError(t, err)
	assert.Equal(t, all, got)

	got, err = Sequence("scheduled_post")
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionScheduledPost}, got)

	got, err = Sequence("check_metrics")
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionScheduledPost, ActionCheckMetrics}, got)

	_, err = Sequence("reboot")
	assert.Error(t, err)
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "cron_generate_drafts", ActionGenerateDrafts.LockKey())
	assert.False(t, Action("x").Valid())
}
