package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	block chan struct{}
}

func (j *countingJob) Name() string {
	return j.name
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return nil
}

func TestAddJobValidation(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "cleanup"}
	require.Error(t, s.AddJob(job, ""))
	require.Error(t, s.AddJob(job, "not a spec"))
	require.NoError(t, s.AddJob(job, "@daily"))
	require.Error(t, s.AddJob(job, "0 3 * * *"))
	require.Equal(t, []string{"cleanup"}, s.Jobs())
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{})}
	run := s.wrap(job, "@every 1s")

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	// the first run is still blocked, so this one is dropped
	run()
	require.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	<-done
	job.block = nil
	run()
	require.Equal(t, int32(2), job.runs.Load())
}

func TestStartStop(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob(job, "@every 1s"))
	s.Start(context.Background())
	require.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}
