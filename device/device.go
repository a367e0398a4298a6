package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const DefaultPort = 4370

var (
	ErrConnectRefused  = errors.New("device did not accept the connection")
	ErrOperationFailed = errors.New("device reported failure")
	ErrInvalidDevice   = errors.New("invalid device descriptor")
	// ErrTimeout means the terminal stopped answering within the step
	// timeout. The session is unusable afterwards.
	ErrTimeout = errors.New("device did not respond in time")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Descriptor identifies one terminal. It is immutable for a run.
type Descriptor struct {
	ID   string `yaml:"id" json:"id" validate:"required"`
	Name string `yaml:"name" json:"name" validate:"required"`
	IP   string `yaml:"ip" json:"ip" validate:"required"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
}

// Validate rejects descriptors that can not be dialed.
func (d Descriptor) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, "missing "+field)
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	if d.ID == "" {
		return fmt.Errorf("%w: %s", ErrInvalidDevice, strings.Join(msgs, ", "))
	}
	return fmt.Errorf("%w: device %s %s", ErrInvalidDevice, d.ID, strings.Join(msgs, ", "))
}

func (d Descriptor) Address() string {
	return fmt.Sprintf("%s:%d", d.IP, d.PortOrDefault())
}

func (d Descriptor) PortOrDefault() int {
	if d.Port <= 0 {
		return DefaultPort
	}
	return d.Port
}

// AttendanceRecord is a single punch as read from the terminal.
type AttendanceRecord struct {
	UserID    string    `json:"id" yaml:"user_id"`
	State     int       `json:"state" yaml:"state"`
	Punch     int       `json:"punch,omitempty" yaml:"punch"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// UserRecord is an enrolled user in the terminal's user table.
type UserRecord struct {
	UID       string `json:"uid" yaml:"uid"`
	UserID    string `json:"user_id" yaml:"user_id"`
	Name      string `json:"name" yaml:"name"`
	Privilege int    `json:"privilege" yaml:"privilege"`
	Password  string `json:"password,omitempty" yaml:"password"`
	GroupID   string `json:"group_id,omitempty" yaml:"group_id"`
	CardNo    string `json:"card_no,omitempty" yaml:"card_no"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// Client is one session-capable connection to a terminal. A Client is
// not safe for concurrent use.
type Client interface {
	Connect(ctx context.Context, ip string, port int) (bool, error)
	Disconnect() error

	DeviceName() (string, error)
	SerialNumber() (string, error)
	GetTime() (string, error)

	GetUsers() ([]UserRecord, error)
	GetAttendance() ([]AttendanceRecord, error)

	ClearAttendance() (bool, error)
	ClearUsers() (bool, error)
	SetUser(user UserRecord) (bool, error)
}

// Dialer creates a fresh client for a descriptor. Clients are never
// shared between devices.
type Dialer interface {
	NewClient(d Descriptor) (Client, error)
}

type DialerFunc func(d Descriptor) (Client, error)

func (f DialerFunc) NewClient(d Descriptor) (Client, error) {
	return f(d)
}

// Call folds the (ok, err) pair returned by device operations into a
// single error so callers treat both failure forms the same way.
func Call(op string, ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrOperationFailed)
	}
	return nil
}
