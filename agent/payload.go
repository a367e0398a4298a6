package agent

import (
	"axiapac.com/devicesync/device"
	"axiapac.com/devicesync/utils"
)

// timestampLayout carries no zone. Terminals keep local wall-clock time
// and the collector reads it in the site's zone.
const timestampLayout = "2006-01-02 15:04:05"

// Payload is the body posted to the collection endpoint.
type Payload struct {
	DeviceID       string              `json:"device_id"`
	DeviceName     string              `json:"device_name"`
	DeviceIP       string              `json:"device_ip"`
	DevicePort     int                 `json:"device_port"`
	SerialNumber   string              `json:"serial_number,omitempty"`
	AttendanceData []AttendanceEntry   `json:"attendance_data,omitempty"`
	UserData       []device.UserRecord `json:"user_data,omitempty"`
}

type AttendanceEntry struct {
	ID        string `json:"id"`
	State     int    `json:"state"`
	Punch     int    `json:"punch"`
	Timestamp string `json:"timestamp"`
}

// BuildPayload maps device reads into the wire shape. Empty collections
// and an empty serial are left out of the JSON entirely.
func BuildPayload(attendance []device.AttendanceRecord, users []device.UserRecord, d device.Descriptor, serial string) Payload {
	p := Payload{
		DeviceID:     d.ID,
		DeviceName:   d.Name,
		DeviceIP:     d.IP,
		DevicePort:   d.PortOrDefault(),
		SerialNumber: serial,
	}

	if len(attendance) > 0 {
		p.AttendanceData = utils.Map(attendance, func(a device.AttendanceRecord) AttendanceEntry {
			return AttendanceEntry{
				ID:        a.UserID,
				State:     a.State,
				Punch:     a.Punch,
				Timestamp: a.Timestamp.Format(timestampLayout),
			}
		})
	}
	if len(users) > 0 {
		p.UserData = users
	}

	return p
}
