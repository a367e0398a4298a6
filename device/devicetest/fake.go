// Package devicetest provides an in-memory device.Client for tests.
package devicetest

import (
	"context"
	"fmt"
	"sync"

	"axiapac.com/devicesync/device"
)

type Client struct {
	mu sync.Mutex

	ConnectOK  bool
	ConnectErr error

	Name   string
	Serial string
	Time   string

	Users      []device.UserRecord
	UsersErr   error
	Attendance []device.AttendanceRecord
	AttErr     error

	ClearAttendanceOK  bool
	ClearAttendanceErr error
	ClearUsersOK       bool
	ClearUsersErr      error

	// SetUserFail maps a user id to the failure SetUser reports for it.
	// A nil error means SetUser returns false.
	SetUserFail map[string]error

	// Panic makes GetAttendance panic, to test session hygiene.
	Panic bool

	// Hook runs at the start of every call, outside the client lock. It
	// may block to simulate a terminal that stops answering.
	Hook func(call string)

	Connects             int
	Disconnects          int
	ClearAttendanceCalls int
	ClearUsersCalls      int
	Written              []device.UserRecord
	Calls                []string
}

// NewClient returns a client that connects and clears successfully.
func NewClient() *Client {
	return &Client{
		ConnectOK:         true,
		ClearAttendanceOK: true,
		ClearUsersOK:      true,
		Name:              "fake",
		Serial:            "FAKE0001",
		Time:              "2026-01-01 00:00:00",
	}
}

// enter records the call and runs Hook. Callers take the lock after.
func (c *Client) enter(call string) {
	c.mu.Lock()
	c.Calls = append(c.Calls, call)
	hook := c.Hook
	c.mu.Unlock()
	if hook != nil {
		hook(call)
	}
}

func (c *Client) Connect(ctx context.Context, ip string, port int) (bool, error) {
	c.enter("connect")
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c.ConnectErr != nil || !c.ConnectOK {
		return false, c.ConnectErr
	}
	c.Connects++
	return true, nil
}

func (c *Client) Disconnect() error {
	c.enter("disconnect")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Disconnects++
	return nil
}

func (c *Client) DeviceName() (string, error) {
	c.enter("device_name")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Name, nil
}

func (c *Client) SerialNumber() (string, error) {
	c.enter("serial_number")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Serial, nil
}

func (c *Client) GetTime() (string, error) {
	c.enter("get_time")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Time, nil
}

func (c *Client) GetUsers() ([]device.UserRecord, error) {
	c.enter("get_users")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UsersErr != nil {
		return nil, c.UsersErr
	}
	return c.Users, nil
}

func (c *Client) GetAttendance() ([]device.AttendanceRecord, error) {
	c.enter("get_attendance")
	c.mu.Lock()
	panicking := c.Panic
	c.mu.Unlock()
	if panicking {
		panic("attendance buffer corrupted")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AttErr != nil {
		return nil, c.AttErr
	}
	return append([]device.AttendanceRecord(nil), c.Attendance...), nil
}

func (c *Client) ClearAttendance() (bool, error) {
	c.enter("clear_attendance")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClearAttendanceCalls++
	if c.ClearAttendanceErr != nil {
		return false, c.ClearAttendanceErr
	}
	if c.ClearAttendanceOK {
		c.Attendance = nil
	}
	return c.ClearAttendanceOK, nil
}

func (c *Client) ClearUsers() (bool, error) {
	c.enter("clear_users")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClearUsersCalls++
	if c.ClearUsersErr != nil {
		return false, c.ClearUsersErr
	}
	return c.ClearUsersOK, nil
}

func (c *Client) SetUser(u device.UserRecord) (bool, error) {
	c.enter("set_user")
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, failed := c.SetUserFail[u.UserID]; failed {
		return false, err
	}
	c.Written = append(c.Written, u)
	return true, nil
}

// AddAttendance appends punches as if they were recorded on the terminal.
func (c *Client) AddAttendance(records ...device.AttendanceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Attendance = append(c.Attendance, records...)
}

// CallCount reports how many times call was made.
func (c *Client) CallCount(call string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, made := range c.Calls {
		if made == call {
			n++
		}
	}
	return n
}

func (c *Client) Balanced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Connects == c.Disconnects
}

// Dialer hands out the fake registered for each device id.
type Dialer struct {
	mu      sync.Mutex
	Clients map[string]*Client
	Dials   []string
}

func NewDialer() *Dialer {
	return &Dialer{Clients: map[string]*Client{}}
}

func (d *Dialer) Add(id string, c *Client) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Clients[id] = c
	return c
}

func (d *Dialer) NewClient(desc device.Descriptor) (device.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dials = append(d.Dials, desc.ID)
	c, ok := d.Clients[desc.ID]
	if !ok {
		return nil, fmt.Errorf("no fake registered for device %s", desc.ID)
	}
	return c, nil
}
