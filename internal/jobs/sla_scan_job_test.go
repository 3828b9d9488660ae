package jobs

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-workflow-service/internal/cache"
	"complaint-workflow-service/internal/services"
)

type stubScanner struct {
	calls   atomic.Int32
	result  services.ScanResult
	err     error
	started chan struct{}
	block   chan struct{}
}

func (s *stubScanner) ScanSLA(ctx context.Context, limit int) (services.ScanResult, error) {
	s.calls.Add(1)
	if s.started != nil {
		close(s.started)
	}
	if s.block != nil {
		<-s.block
	}
	return s.result, s.err
}

type stubLocker struct {
	acquired bool
	err      error
	released int
}

func (l *stubLocker) Acquire(ctx context.Context) (func(), bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func() { l.released++ }, true, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunOnce_ReturnsScanResult(t *testing.T) {
	scanner := &stubScanner{result: services.ScanResult{Checked: 4, Escalated: 2, Flagged: 1, Skipped: 1}}
	lock := &stubLocker{acquired: true}
	job := NewSLAScanJob(scanner, lock, "", 0, quietLogger())

	result, ran := job.RunOnce(context.Background())

	assert.True(t, ran)
	assert.Equal(t, scanner.result, result)
	assert.Equal(t, int32(1), scanner.calls.Load())
	assert.Equal(t, 1, lock.released)
}

func TestRunOnce_SkipsWhenAnotherReplicaHoldsTheLock(t *testing.T) {
	scanner := &stubScanner{}
	job := NewSLAScanJob(scanner, &stubLocker{acquired: false}, "", 10, quietLogger())

	_, ran := job.RunOnce(context.Background())

	assert.False(t, ran)
	assert.Zero(t, scanner.calls.Load())
}

func TestRunOnce_SkipsWhenLockFails(t *testing.T) {
	scanner := &stubScanner{}
	job := NewSLAScanJob(scanner, &stubLocker{err: errors.New("redis unavailable")}, "", 10, quietLogger())

	_, ran := job.RunOnce(context.Background())

	assert.False(t, ran)
	assert.Zero(t, scanner.calls.Load())
}

func TestRunOnce_SingleFlight(t *testing.T) {
	scanner := &stubScanner{started: make(chan struct{}), block: make(chan struct{})}
	job := NewSLAScanJob(scanner, nil, "", 10, quietLogger())

	done := make(chan bool)
	go func() {
		_, ran := job.RunOnce(context.Background())
		done <- ran
	}()
	<-scanner.started

	_, ran := job.RunOnce(context.Background())
	assert.False(t, ran, "a second scan must not start while one is running")

	close(scanner.block)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), scanner.calls.Load())
}

func TestRunOnce_ScanErrorStillCountsAsRun(t *testing.T) {
	scanner := &stubScanner{result: services.ScanResult{Checked: 1}, err: context.Canceled}
	job := NewSLAScanJob(scanner, cache.NewScanLock(nil, "sla-scan", time.Minute), "", 10, quietLogger())

	result, ran := job.RunOnce(context.Background())

	assert.True(t, ran)
	assert.Equal(t, 1, result.Checked)
}

func TestStart_RejectsInvalidSchedule(t *testing.T) {
	job := NewSLAScanJob(&stubScanner{}, nil, "every now and then", 10, quietLogger())

	err := job.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SLA scan schedule")
}

func TestStart_AcceptsStandardCronExpressions(t *testing.T) {
	for _, schedule := range []string{"*/5 * * * *", "@every 30s", "@hourly"} {
		t.Run(schedule, func(t *testing.T) {
			job := NewSLAScanJob(&stubScanner{}, nil, schedule, 10, quietLogger())

			require.NoError(t, job.Start(context.Background()))
			job.Stop()
		})
	}
}

func TestStartStop_RunsImmediately(t *testing.T) {
	scanner := &stubScanner{started: make(chan struct{})}
	job := NewSLAScanJob(scanner, nil, "@every 1h", 10, quietLogger())

	require.NoError(t, job.Start(context.Background()))
	select {
	case <-scanner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not run on start")
	}
	job.Stop()

	assert.Equal(t, int32(1), scanner.calls.Load())
}
