package sim

import (
	"context"
	"testing"

	"axiapac.com/devicesync/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
devices:
  d1:
    name: Front door
    serial: SIM0001
    users:
      - {uid: "1", user_id: "00042", name: Alice, enabled: true}
    attendance:
      - {user_id: "00042", state: 0, timestamp: 2026-01-05T08:01:00Z}
      - {user_id: "00042", state: 1, timestamp: 2026-01-05T17:02:00Z}
  d2:
    name: Back door
    offline: true
`

func TestSimulatorReadAndClear(t *testing.T) {
	dialer, err := Parse([]byte(fixture))
	require.NoError(t, err)

	d1 := device.Descriptor{ID: "d1", Name: "Front door", IP: "127.0.0.1"}
	err = device.WithSession(context.Background(), dialer, d1, device.SessionOptions{}, func(s *device.Session) error {
		att, err := s.GetAttendance()
		require.NoError(t, err)
		assert.Len(t, att, 2)
		assert.Equal(t, 17, att[1].Timestamp.Hour())

		serial, err := s.SerialNumber()
		require.NoError(t, err)
		assert.Equal(t, "SIM0001", serial)

		ok, err := s.ClearAttendance()
		return device.Call("clear attendance", ok, err)
	})
	require.NoError(t, err)

	err = device.WithSession(context.Background(), dialer, d1, device.SessionOptions{}, func(s *device.Session) error {
		att, err := s.GetAttendance()
		assert.Empty(t, att)
		return err
	})
	require.NoError(t, err)
}

func TestSimulatorOfflineAndUnknown(t *testing.T) {
	dialer, err := Parse([]byte(fixture))
	require.NoError(t, err)

	for _, id := range []string{"d2", "missing"} {
		d := device.Descriptor{ID: id, Name: id, IP: "127.0.0.1"}
		err := device.WithSession(context.Background(), dialer, d, device.SessionOptions{}, func(s *device.Session) error {
			return nil
		})
		assert.ErrorIs(t, err, device.ErrConnectRefused, id)
	}
}

func TestSimulatorSetUserUpserts(t *testing.T) {
	dialer, err := Parse([]byte(fixture))
	require.NoError(t, err)

	d1 := device.Descriptor{ID: "d1", Name: "Front door", IP: "127.0.0.1"}
	err = device.WithSession(context.Background(), dialer, d1, device.SessionOptions{}, func(s *device.Session) error {
		for _, u := range []device.UserRecord{
			{UID: "1", UserID: "00042", Name: "Alice B"},
			{UID: "00007", UserID: "00007", Name: "Bob"},
		} {
			ok, err := s.SetUser(u)
			if err := device.Call("set user", ok, err); err != nil {
				return err
			}
		}
		users, err := s.GetUsers()
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, "Alice B", users[0].Name)
		return nil
	})
	require.NoError(t, err)
}
