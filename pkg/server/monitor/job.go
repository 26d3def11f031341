package monitor

import (
	"sync"
	"time"
)

// maxConsecutiveErrors is the failure streak after which a job is unhealthy.
const maxConsecutiveErrors = 3

// JobMonitor tracks the health of a recurring background job
// (storage maintenance, metrics export).
type JobMonitor struct {
	staleAfter time.Duration

	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
}

// NewJobMonitor creates a monitor. A job whose last success is older than
// staleAfter is unhealthy; zero disables the staleness check.
func NewJobMonitor(staleAfter time.Duration) *JobMonitor {
	return &JobMonitor{staleAfter: staleAfter}
}

// Record records the outcome of one run.
func (jm *JobMonitor) Record(err error) {
	if err != nil {
		jm.RecordFailure(err)
		return
	}
	jm.RecordSuccess()
}

// RecordSuccess records a successful run.
func (jm *JobMonitor) RecordSuccess() {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	now := time.Now()
	jm.lastSuccess = now
	jm.lastAttempt = now
	jm.consecutiveErrors = 0
	jm.lastError = ""
}

// RecordFailure records a failed run.
func (jm *JobMonitor) RecordFailure(err error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.lastAttempt = time.Now()
	jm.consecutiveErrors++
	if err != nil {
		jm.lastError = err.Error()
	}
}

// IsHealthy returns true if the job is working properly.
// Unhealthy conditions:
//   - More than 3 consecutive failures
//   - Attempted, but no success within staleAfter
//
// A job that has not run yet is healthy.
func (jm *JobMonitor) IsHealthy() bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return jm.isHealthyLocked()
}

func (jm *JobMonitor) isHealthyLocked() bool {
	if jm.consecutiveErrors > maxConsecutiveErrors {
		return false
	}
	if jm.lastAttempt.IsZero() || jm.staleAfter <= 0 {
		return true
	}
	if jm.lastSuccess.IsZero() {
		return jm.consecutiveErrors == 0
	}
	return time.Since(jm.lastSuccess) <= jm.staleAfter
}

// JobStatus is the health check view of a JobMonitor.
type JobStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current job status for health checks.
func (jm *JobMonitor) Status() JobStatus {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	status := JobStatus{
		Healthy: jm.isHealthyLocked(),
	}

	if !jm.lastSuccess.IsZero() {
		status.LastSuccess = jm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(jm.lastSuccess).Round(time.Second).String()
	}

	if !jm.lastAttempt.IsZero() {
		status.LastAttempt = jm.lastAttempt.Format(time.RFC3339)
	}

	if jm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = jm.consecutiveErrors
		status.LastError = jm.lastError
	}

	return status
}
