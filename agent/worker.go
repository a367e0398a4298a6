package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"axiapac.com/devicesync/device"
	"github.com/rs/zerolog"
)

// SyncWorker runs the read, upload and clear sequence for one device.
type SyncWorker struct {
	rc *RunContext
}

func NewSyncWorker(rc *RunContext) *SyncWorker {
	return &SyncWorker{rc: rc}
}

type deviceRead struct {
	serial     string
	users      []device.UserRecord
	attendance []device.AttendanceRecord
}

// Run never returns an error: every failure ends up in the outcome.
func (w *SyncWorker) Run(ctx context.Context, d device.Descriptor) (out SyncOutcome) {
	start := time.Now()
	out = SyncOutcome{DeviceID: d.ID, DeviceName: d.Name}
	out.enter(StateIdle)
	defer func() { out.Duration = time.Since(start) }()

	log := w.rc.Logger.With().Str("device_id", d.ID).Str("device", d.Name).Logger()

	if err := d.Validate(); err != nil {
		out.fail(KindInvalidDevice, err)
		return out
	}
	if err := ctx.Err(); err != nil {
		out.fail(KindCancelled, err)
		return out
	}

	unlock, err := w.rc.lock(ctx, d.ID)
	if err != nil {
		out.fail(KindCancelled, err)
		return out
	}
	defer unlock()

	out.enter(StateConnecting)
	read, err := w.read(ctx, d, &out, log)
	if err != nil {
		out.fail(classify(err, KindRead), err)
		return out
	}

	out.UserCount = len(read.users)
	out.AttendanceCount = len(read.attendance)

	if out.UserCount == 0 && out.AttendanceCount == 0 {
		log.Info().Msg("no attendance or users on device, nothing to upload")
		out.Succeeded = true
		out.enter(StateDisconnected)
		return out
	}

	out.enter(StateUploading)
	if err := ctx.Err(); err != nil {
		out.fail(KindCancelled, err)
		return out
	}

	payload := BuildPayload(read.attendance, read.users, d, read.serial)
	res, err := w.rc.Uploader.Upload(ctx, payload)
	if err != nil {
		out.fail(classify(err, KindUpload), fmt.Errorf("upload: %w", err))
		return out
	}
	if !res.Accepted() {
		out.fail(KindUpload, fmt.Errorf("upload: %s", res.Reason()))
		return out
	}

	out.Succeeded = true
	out.Uploaded = true
	log.Info().
		Int("attendance", out.AttendanceCount).
		Int("users", out.UserCount).
		Int("status_code", res.StatusCode).
		Msg("upload accepted")

	if w.rc.Settings.ClearAfterSync && out.AttendanceCount > 0 {
		out.enter(StateClearing)
		if err := w.clear(ctx, d, out.AttendanceCount, log); err != nil {
			out.ClearWarning = err.Error()
			log.Warn().Err(err).Str("kind", string(KindClear)).Msg("attendance uploaded but device was not cleared")
		} else {
			out.Cleared = true
			log.Info().Int("attendance", out.AttendanceCount).Msg("device attendance cleared")
		}
	}

	out.enter(StateDisconnected)
	return out
}

func (w *SyncWorker) read(ctx context.Context, d device.Descriptor, out *SyncOutcome, log zerolog.Logger) (*deviceRead, error) {
	read := &deviceRead{}

	err := device.WithSession(ctx, w.rc.Dialer, d, w.rc.sessionOptions(log), func(s *device.Session) error {
		out.enter(StateConnected)
		if err := w.identify(ctx, s, read, log); err != nil {
			return err
		}

		out.enter(StateReading)
		users, err := s.GetUsers()
		if err != nil {
			if stalled(ctx, err) {
				return readError(ctx, err)
			}
			log.Warn().Err(err).Msg("failed to read users, continuing without them")
			users = nil
		}
		read.users = users

		if err := ctx.Err(); err != nil {
			return err
		}

		attendance, err := s.GetAttendance()
		if err != nil {
			return readError(ctx, fmt.Errorf("read attendance: %w", err))
		}
		read.attendance = attendance

		log.Debug().Int("users", len(users)).Int("attendance", len(attendance)).Msg("device read")
		return nil
	})

	return read, err
}

// stalled reports whether the session can no longer be used: the run was
// cancelled or the terminal stopped answering.
func stalled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, device.ErrTimeout)
}

// readError tags a read failure, leaving cancellation to be classified
// as such.
func readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return tag(KindRead, err)
}

// identify reads identity info. None of it is required for a sync, but a
// terminal that stops answering here ends the session.
func (w *SyncWorker) identify(ctx context.Context, s *device.Session, read *deviceRead, log zerolog.Logger) error {
	serial, err := s.SerialNumber()
	switch {
	case err == nil:
		read.serial = serial
	case stalled(ctx, err):
		return readError(ctx, err)
	default:
		log.Debug().Err(err).Msg("serial number unavailable")
	}

	if log.GetLevel() > zerolog.DebugLevel {
		return nil
	}
	name, err := s.DeviceName()
	if err != nil && stalled(ctx, err) {
		return readError(ctx, err)
	}
	clock, err := s.GetTime()
	if err != nil && stalled(ctx, err) {
		return readError(ctx, err)
	}
	log.Debug().Str("reported_name", name).Str("serial", read.serial).Str("device_time", clock).Msg("connected")
	return nil
}

// clear empties the terminal's attendance log in a fresh session. The log
// is counted again first: punches recorded while the upload was in flight
// were never uploaded, so the clear is skipped rather than lose them.
func (w *SyncWorker) clear(ctx context.Context, d device.Descriptor, uploaded int, log zerolog.Logger) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("clear skipped: %w", err)
	}
	return device.WithSession(ctx, w.rc.Dialer, d, w.rc.sessionOptions(log), func(s *device.Session) error {
		current, err := s.GetAttendance()
		if err != nil {
			return fmt.Errorf("clear skipped: recount attendance: %w", err)
		}
		if len(current) > uploaded {
			return fmt.Errorf("clear skipped: %d new record(s) since read, left for the next run", len(current)-uploaded)
		}
		ok, err := s.ClearAttendance()
		return device.Call("clear attendance", ok, err)
	})
}
