package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"axiapac.com/devicesync/device"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

// Employee is a person to provision on a terminal.
type Employee struct {
	ID           string `json:"id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	NativeUserID string `json:"native_user_id,omitempty"`
}

// UID is the terminal uid the employee will be written under.
func (e Employee) UID() string {
	if native := strings.TrimSpace(e.NativeUserID); native != "" {
		return native
	}
	return GenerateUID(e.ID)
}

// PushWorker writes employees into a terminal's user table.
type PushWorker struct {
	rc *RunContext
}

func NewPushWorker(rc *RunContext) *PushWorker {
	return &PushWorker{rc: rc}
}

// Preview assigns uids without touching the device.
func (p *PushWorker) Preview(employees []Employee) []PushOutcome {
	out := make([]PushOutcome, 0, len(employees))
	for _, e := range employees {
		out = append(out, PushOutcome{EmployeeID: e.ID, Name: e.Name, AssignedUID: e.UID()})
	}
	return out
}

func (p *PushWorker) Run(ctx context.Context, d device.Descriptor, employees []Employee, clearFirst bool) PushSummary {
	log := p.rc.Logger.With().Str("device_id", d.ID).Str("device", d.Name).Logger()
	summary := PushSummary{DeviceID: d.ID, TotalCount: len(employees)}

	abort := func(kind ErrorKind, err error) PushSummary {
		summary.ErrorKind = kind
		summary.Error = err.Error()
		summary.FailedCount = summary.TotalCount - summary.SuccessCount
		log.Error().Err(err).Str("kind", string(kind)).Msg("[PUSH] aborted")
		return summary
	}

	if err := d.Validate(); err != nil {
		return abort(KindInvalidDevice, err)
	}

	unlock, err := p.rc.lock(ctx, d.ID)
	if err != nil {
		return abort(KindCancelled, err)
	}
	defer unlock()

	var limiter *rate.Limiter
	if p.rc.Settings.PushRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.rc.Settings.PushRate), 1)
	}

	var batchErr error
	err = device.WithSession(ctx, p.rc.Dialer, d, p.rc.sessionOptions(log), func(s *device.Session) error {
		if clearFirst {
			ok, err := s.ClearUsers()
			if err := device.Call("clear users", ok, err); err != nil {
				return tag(KindClear, err)
			}
			log.Info().Msg("[PUSH] device user table cleared")
		}

		seen := make(map[string]string, len(employees))
		for idx, e := range employees {
			if err := ctx.Err(); err != nil {
				batchErr = err
				return nil
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					batchErr = err
					return nil
				}
			}

			res, werr := p.write(s, e)
			if prev, dup := seen[res.AssignedUID]; dup {
				log.Warn().Str("uid", res.AssignedUID).Str("employee", e.ID).Str("previous", prev).Msg("uid already assigned in this batch, record will be overwritten")
			}
			seen[res.AssignedUID] = e.ID

			if res.Succeeded {
				summary.SuccessCount++
				log.Info().Str("employee", e.ID).Str("uid", res.AssignedUID).Msgf("[PUSH] (%d/%d) %s", idx+1, len(employees), e.Name)
			} else {
				summary.FailedCount++
				log.Error().Str("employee", e.ID).Str("uid", res.AssignedUID).Str("error", res.ErrorDetail).Msgf("[PUSH] (%d/%d) %s failed", idx+1, len(employees), e.Name)
			}
			summary.Outcomes = append(summary.Outcomes, res)
			if werr != nil {
				return werr
			}
		}
		return nil
	})

	if err != nil {
		if summary.Outcomes != nil {
			err = fmt.Errorf("push stopped after %d of %d employees: %w", len(summary.Outcomes), len(employees), err)
		}
		return abort(classify(err, KindConnection), err)
	}
	if batchErr != nil {
		return abort(KindCancelled, fmt.Errorf("push interrupted after %d of %d employees: %w", len(summary.Outcomes), len(employees), batchErr))
	}

	log.Info().
		Int("total", summary.TotalCount).
		Int("success", summary.SuccessCount).
		Int("failed", summary.FailedCount).
		Msgf("[PUSH] done. Total: %d, Success: %d, Failed: %d", summary.TotalCount, summary.SuccessCount, summary.FailedCount)
	return summary
}

// write sends one employee. The returned error is set only when the
// session can no longer be used and the batch must stop.
func (p *PushWorker) write(s *device.Session, e Employee) (PushOutcome, error) {
	res := PushOutcome{EmployeeID: e.ID, Name: e.Name, AssignedUID: e.UID()}

	if err := validate.Struct(e); err != nil {
		res.ErrorDetail = fmt.Sprintf("employee %q: %s", e.ID, describe(err))
		return res, nil
	}

	ok, err := s.SetUser(device.UserRecord{
		UID:       res.AssignedUID,
		UserID:    e.ID,
		Name:      e.Name,
		Password:  "",
		Privilege: 0,
		Enabled:   true,
	})
	if err := device.Call("set user", ok, err); err != nil {
		res.ErrorDetail = err.Error()
		if errors.Is(err, device.ErrTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		return res, nil
	}
	res.Succeeded = true
	return res, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, "missing "+strings.ToLower(fe.Field()))
	}
	return strings.Join(msgs, ", ")
}
