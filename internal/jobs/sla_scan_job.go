package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/services"
)

// DefaultSchedule runs the scan once a minute
const DefaultSchedule = "@every 1m"

// Scanner is the part of the transition engine the job drives
type Scanner interface {
	ScanSLA(ctx context.Context, limit int) (services.ScanResult, error)
}

// Locker guards a scan across replicas
type Locker interface {
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

// SLAScanJob periodically escalates complaints that missed their SLA.
// At most one scan runs at a time, in this process and across replicas.
type SLAScanJob struct {
	scanner   Scanner
	lock      Locker
	logger    *logrus.Entry
	schedule  string
	batchSize int
	timeout   time.Duration

	cron    *cron.Cron
	running sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSLAScanJob creates a new SLA scan job. lock may be nil.
func NewSLAScanJob(scanner Scanner, lock Locker, schedule string, batchSize int, logger *logrus.Logger) *SLAScanJob {
	if logger == nil {
		logger = logrus.New()
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if batchSize < 1 {
		batchSize = 100
	}
	log := logger.WithField("component", "sla-scan-job")

	return &SLAScanJob{
		scanner:   scanner,
		lock:      lock,
		logger:    log,
		schedule:  schedule,
		batchSize: batchSize,
		timeout:   5 * time.Minute,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
		),
	}
}

// Start schedules the scan and runs it once immediately
func (j *SLAScanJob) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(j.ctx) }); err != nil {
		j.cancel()
		return fmt.Errorf("invalid SLA scan schedule %q: %w", j.schedule, err)
	}

	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("SLA scan job started")

	go j.RunOnce(j.ctx)
	return nil
}

// Stop cancels a running scan and waits for it to return
func (j *SLAScanJob) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	<-j.cron.Stop().Done()
	j.running.Lock()
	j.running.Unlock()
	j.logger.Info("SLA scan job stopped")
}

// RunOnce performs a single scan. It returns false when another scan held
// the lock and nothing was done.
func (j *SLAScanJob) RunOnce(ctx context.Context) (services.ScanResult, bool) {
	if !j.running.TryLock() {
		j.logger.Debug("SLA scan already running, skipping")
		return services.ScanResult{}, false
	}
	defer j.running.Unlock()

	if j.lock != nil {
		release, acquired, err := j.lock.Acquire(ctx)
		if err != nil {
			j.logger.WithError(err).Warn("Failed to acquire SLA scan lock")
			return services.ScanResult{}, false
		}
		if !acquired {
			j.logger.Debug("SLA scan running on another replica, skipping")
			return services.ScanResult{}, false
		}
		defer release()
	}

	scanCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	result, err := j.scanner.ScanSLA(scanCtx, j.batchSize)
	fields := logrus.Fields{
		"checked":   result.Checked,
		"escalated": result.Escalated,
		"flagged":   result.Flagged,
		"exhausted": result.Exhausted,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}
	if err != nil {
		j.logger.WithFields(fields).WithError(err).Error("SLA scan interrupted")
		return result, true
	}
	if result.Checked > 0 {
		j.logger.WithFields(fields).Info("SLA scan completed")
	} else {
		j.logger.Debug("No SLA breaches found")
	}
	return result, true
}
