package cronjob

import (
	"context"
	"sync"
	"testing"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingScheduler struct {
	mu  sync.Mutex
	ran []domainCron.Action
}

func (s *recordingScheduler) RunCronSequence(ctx context.Context, action domainCron.Action) (domainCron.LogEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, action)
	return domainCron.LogEntry{Action: action, Status: domainCron.LogSuccess}, false, nil
}

func (s *recordingScheduler) ProcessScheduledPosts(ctx context.Context) (domainCron.RunStats, error) {
	return domainCron.RunStats{}, nil
}
func (s *recordingScheduler) GenerateDailyDrafts(ctx context.Context) (domainCron.RunStats, error) {
	return domainCron.RunStats{}, nil
}
func (s *recordingScheduler) CheckMetrics(ctx context.Context) (domainCron.RunStats, error) {
	return domainCron.RunStats{}, nil
}
func (s *recordingScheduler) ConsecutiveFailures() int { return 0 }
func (s *recordingScheduler) ResetCircuit()            {}

func TestNew_RegistersDefaultSchedule(t *testing.T) {
	r, err := New(&recordingScheduler{}, DefaultSchedule)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Entries())
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := New(&recordingScheduler{}, map[domainCron.Action]string{domainCron.ActionScheduledPost: "every now and then"})
	assert.Error(t, err)

	_, err = New(&recordingScheduler{}, map[domainCron.Action]string{"cleanup": "* * * * *"})
	assert.Error(t, err)
}

func TestRun_GoesThroughRunCronSequence(t *testing.T) {
	s := &recordingScheduler{}
	r, err := New(s, nil)
	require.NoError(t, err)

	r.run(domainCron.ActionCheckMetrics)
	assert.Equal(t, []domainCron.Action{domainCron.ActionCheckMetrics}, s.ran)

	r.Start()
	r.Stop()
	assert.Error(t, r.ctx.Err())
}
