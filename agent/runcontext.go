package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	v1 "axiapac.com/devicesync/collector/v1"
	"axiapac.com/devicesync/device"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Uploader posts a payload to the collection endpoint. Non-2xx responses
// come back as results, only transport failures as errors.
type Uploader interface {
	Upload(ctx context.Context, payload any) (*v1.UploadResult, error)
}

type Settings struct {
	ClearAfterSync    bool
	ConnectTimeout    time.Duration
	OperationTimeout  time.Duration
	DisconnectTimeout time.Duration
	RunTimeout        time.Duration
	// Concurrency is the number of devices synced at once. Values below
	// two keep the run sequential.
	Concurrency int
	// PushRate caps user writes per second during a push. Zero means no cap.
	PushRate float64
}

// RunContext is built once per invocation and handed to every worker.
// Locks is shared by every RunContext of a process.
type RunContext struct {
	RunID    string
	Settings Settings
	Logger   zerolog.Logger
	Dialer   device.Dialer
	Uploader Uploader
	Locks    *DeviceLocks
}

// NewRunContext starts a run. Pass the process-wide locks so runs in the
// same process exclude each other per device; nil gives the run its own.
func NewRunContext(settings Settings, logger zerolog.Logger, dialer device.Dialer, uploader Uploader, locks *DeviceLocks) *RunContext {
	if locks == nil {
		locks = NewDeviceLocks()
	}
	runID := uuid.NewString()
	return &RunContext{
		RunID:    runID,
		Settings: settings,
		Logger:   logger.With().Str("run_id", runID).Logger(),
		Dialer:   dialer,
		Uploader: uploader,
		Locks:    locks,
	}
}

func (rc *RunContext) sessionOptions(log zerolog.Logger) device.SessionOptions {
	return device.SessionOptions{
		ConnectTimeout:    rc.Settings.ConnectTimeout,
		OperationTimeout:  rc.Settings.OperationTimeout,
		DisconnectTimeout: rc.Settings.DisconnectTimeout,
		OnCloseError: func(err error) {
			log.Warn().Err(err).Msg("disconnect failed")
		},
	}
}

// DeviceLocks serializes work against the same terminal within a process,
// so a sync and a push never hold sessions on one device at once.
type DeviceLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{locks: map[string]chan struct{}{}}
}

// Lock waits for the device to be free or ctx to be done. The returned
// func releases the device.
func (l *DeviceLocks) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.locks[id]
	if !ok {
		slot = make(chan struct{}, 1)
		l.locks[id] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for device %s: %w", id, ctx.Err())
	}
}

func (rc *RunContext) lock(ctx context.Context, id string) (func(), error) {
	if rc.Locks == nil {
		return func() {}, nil
	}
	return rc.Locks.Lock(ctx, id)
}
