package agent

import (
	"context"
	"errors"
	"time"

	"axiapac.com/devicesync/device"
)

type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindConfiguration ErrorKind = "ConfigurationError"
	KindInvalidDevice ErrorKind = "InvalidDevice"
	KindConnection    ErrorKind = "ConnectionError"
	KindRead          ErrorKind = "ReadError"
	KindUpload        ErrorKind = "UploadError"
	KindClear         ErrorKind = "ClearError"
	KindCancelled     ErrorKind = "Cancelled"
)

type State string

const (
	StateIdle         State = "Idle"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
	StateReading      State = "Reading"
	StateUploading    State = "Uploading"
	StateClearing     State = "Clearing"
	StateDisconnected State = "Disconnected"
	StateError        State = "ErrorTerminal"
)

// SyncOutcome is the result of one device in one run.
type SyncOutcome struct {
	DeviceID        string    `json:"device_id"`
	DeviceName      string    `json:"device_name"`
	Succeeded       bool      `json:"succeeded"`
	AttendanceCount int       `json:"attendance_count"`
	UserCount       int       `json:"user_count"`
	Uploaded        bool      `json:"uploaded"`
	Cleared         bool      `json:"cleared"`
	ErrorKind       ErrorKind `json:"error_kind,omitempty"`
	ErrorDetail     string    `json:"error_detail,omitempty"`
	// ClearWarning is set when the upload went through but clearing the
	// terminal did not. Succeeded stays true.
	ClearWarning string        `json:"clear_warning,omitempty"`
	States       []State       `json:"states"`
	Duration     time.Duration `json:"duration"`
}

func (o *SyncOutcome) enter(s State) {
	o.States = append(o.States, s)
}

func (o *SyncOutcome) fail(kind ErrorKind, err error) {
	o.Succeeded = false
	o.ErrorKind = kind
	if err != nil {
		o.ErrorDetail = err.Error()
	}
	o.enter(StateError)
}

// Final is the last state the worker reached.
func (o SyncOutcome) Final() State {
	if len(o.States) == 0 {
		return StateIdle
	}
	return o.States[len(o.States)-1]
}

// FailedAt is the state the worker was in when it gave up.
func (o SyncOutcome) FailedAt() State {
	for i := len(o.States) - 1; i >= 0; i-- {
		if o.States[i] != StateError {
			return o.States[i]
		}
	}
	return StateIdle
}

type SyncSummary struct {
	RunID        string        `json:"run_id"`
	TotalDevices int           `json:"total_devices"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Outcomes     []SyncOutcome `json:"outcomes"`
	Duration     time.Duration `json:"duration"`
}

func summarize(runID string, outcomes []SyncOutcome) SyncSummary {
	s := SyncSummary{RunID: runID, TotalDevices: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Succeeded {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
	}
	return s
}

type PushOutcome struct {
	EmployeeID  string `json:"employee_id"`
	Name        string `json:"name"`
	AssignedUID string `json:"assigned_uid"`
	Succeeded   bool   `json:"succeeded"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

type PushSummary struct {
	DeviceID     string        `json:"device_id"`
	SuccessCount int           `json:"success_count"`
	FailedCount  int           `json:"failed_count"`
	TotalCount   int           `json:"total_count"`
	Outcomes     []PushOutcome `json:"outcomes"`
	// Error is the batch-level failure (connect or clear) that stopped
	// the push before any employee was written.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// kindError tags an error raised inside a device session with its class.
type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

func tag(kind ErrorKind, err error) error {
	return &kindError{kind: kind, err: err}
}

func classify(err error, fallback ErrorKind) ErrorKind {
	var ke *kindError
	switch {
	case errors.As(err, &ke):
		return ke.kind
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, device.ErrInvalidDevice):
		return KindInvalidDevice
	case errors.Is(err, device.ErrConnectRefused):
		return KindConnection
	}
	return fallback
}
