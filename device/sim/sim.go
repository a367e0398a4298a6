// Package sim is a terminal simulator backed by a YAML fixture. It lets
// the agent run end to end on a machine with no hardware attached.
//
// Fixture layout:
//
//	devices:
//	  front-door:
//	    name: Front door
//	    serial: SIM0001
//	    users:
//	      - {uid: "1", user_id: "00042", name: Alice, enabled: true}
//	    attendance:
//	      - {user_id: "00042", state: 0, timestamp: 2026-01-05T08:01:00Z}
package sim

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"axiapac.com/devicesync/device"
	"gopkg.in/yaml.v3"
)

type Terminal struct {
	Name       string                    `yaml:"name"`
	Serial     string                    `yaml:"serial"`
	Offline    bool                      `yaml:"offline"`
	Users      []device.UserRecord       `yaml:"users"`
	Attendance []device.AttendanceRecord `yaml:"attendance"`
}

type Fixture struct {
	Devices map[string]*Terminal `yaml:"devices"`
}

// Dialer serves clients for every terminal in the fixture. State changes
// (clears, user writes) live for the lifetime of the Dialer.
type Dialer struct {
	mu      sync.Mutex
	fixture Fixture
}

func Load(path string) (*Dialer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read simulator fixture %s: %w", path, err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Dialer, error) {
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal simulator fixture: %w", err)
	}
	if f.Devices == nil {
		f.Devices = map[string]*Terminal{}
	}
	return &Dialer{fixture: f}, nil
}

func (d *Dialer) NewClient(desc device.Descriptor) (device.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.fixture.Devices[desc.ID]
	if !ok {
		t = &Terminal{Name: desc.Name, Offline: true}
		d.fixture.Devices[desc.ID] = t
	}
	return &client{d: d, t: t}, nil
}

type client struct {
	d         *Dialer
	t         *Terminal
	connected bool
}

var errNotConnected = fmt.Errorf("not connected")

func (c *client) Connect(ctx context.Context, ip string, port int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.t.Offline {
		return false, nil
	}
	c.connected = true
	return true, nil
}

func (c *client) Disconnect() error {
	c.connected = false
	return nil
}

func (c *client) DeviceName() (string, error) {
	if !c.connected {
		return "", errNotConnected
	}
	return c.t.Name, nil
}

func (c *client) SerialNumber() (string, error) {
	if !c.connected {
		return "", errNotConnected
	}
	return c.t.Serial, nil
}

func (c *client) GetTime() (string, error) {
	if !c.connected {
		return "", errNotConnected
	}
	return time.Now().Format("2006-01-02 15:04:05"), nil
}

func (c *client) GetUsers() ([]device.UserRecord, error) {
	if !c.connected {
		return nil, errNotConnected
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return append([]device.UserRecord(nil), c.t.Users...), nil
}

func (c *client) GetAttendance() ([]device.AttendanceRecord, error) {
	if !c.connected {
		return nil, errNotConnected
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return append([]device.AttendanceRecord(nil), c.t.Attendance...), nil
}

func (c *client) ClearAttendance() (bool, error) {
	if !c.connected {
		return false, errNotConnected
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.t.Attendance = nil
	return true, nil
}

func (c *client) ClearUsers() (bool, error) {
	if !c.connected {
		return false, errNotConnected
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.t.Users = nil
	return true, nil
}

func (c *client) SetUser(u device.UserRecord) (bool, error) {
	if !c.connected {
		return false, errNotConnected
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	for i := range c.t.Users {
		if c.t.Users[i].UID == u.UID {
			c.t.Users[i] = u
			return true, nil
		}
	}
	c.t.Users = append(c.t.Users, u)
	return true, nil
}
