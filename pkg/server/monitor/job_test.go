package monitor

import (
	"errors"
	"testing"
	"time"
)

func TestJobMonitor_RecordSuccess(t *testing.T) {
	jm := NewJobMonitor(time.Hour)
	jm.RecordSuccess()

	status := jm.Status()
	if !status.Healthy {
		t.Error("Status should be healthy after success")
	}
	if status.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", status.ConsecutiveErrors)
	}
	if status.LastSuccess == "" || status.TimeSinceSuccess == "" {
		t.Error("LastSuccess and TimeSinceSuccess should be set")
	}
}

func TestJobMonitor_RecordFailure(t *testing.T) {
	jm := NewJobMonitor(time.Hour)
	jm.Record(errors.New("disk full"))

	status := jm.Status()
	if status.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", status.ConsecutiveErrors)
	}
	if status.LastError != "disk full" {
		t.Errorf("LastError = %q, want %q", status.LastError, "disk full")
	}
	if status.LastAttempt == "" {
		t.Error("LastAttempt should be set")
	}
}

func TestJobMonitor_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*JobMonitor)
		expected bool
	}{
		{
			name:     "never ran",
			setup:    func(*JobMonitor) {},
			expected: true,
		},
		{
			name: "recent success",
			setup: func(jm *JobMonitor) {
				jm.RecordSuccess()
			},
			expected: true,
		},
		{
			name: "only failures",
			setup: func(jm *JobMonitor) {
				jm.RecordFailure(errors.New("boom"))
			},
			expected: false,
		},
		{
			name: "stale success",
			setup: func(jm *JobMonitor) {
				jm.RecordSuccess()
				jm.mu.Lock()
				jm.lastSuccess = time.Now().Add(-2 * time.Hour)
				jm.mu.Unlock()
			},
			expected: false,
		},
		{
			name: "one failure after success",
			setup: func(jm *JobMonitor) {
				jm.RecordSuccess()
				jm.RecordFailure(errors.New("error 1"))
			},
			expected: true,
		},
		{
			name: "too many consecutive errors",
			setup: func(jm *JobMonitor) {
				jm.RecordSuccess()
				for i := 0; i < 4; i++ {
					jm.RecordFailure(errors.New("error"))
				}
			},
			expected: false,
		},
		{
			name: "recovered",
			setup: func(jm *JobMonitor) {
				for i := 0; i < 5; i++ {
					jm.RecordFailure(errors.New("error"))
				}
				jm.Record(nil)
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jm := NewJobMonitor(time.Hour)
			tt.setup(jm)
			if got := jm.IsHealthy(); got != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJobMonitor_NoStaleness(t *testing.T) {
	jm := NewJobMonitor(0)
	jm.RecordFailure(errors.New("collector down"))
	if !jm.IsHealthy() {
		t.Error("a single failure without staleness tracking should stay healthy")
	}
}
