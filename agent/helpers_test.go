package agent

import (
	"context"
	"errors"
	"sync"

	v1 "axiapac.com/devicesync/collector/v1"
	"axiapac.com/devicesync/collector/v1/common"
	"axiapac.com/devicesync/device"
	"axiapac.com/devicesync/device/devicetest"
	"axiapac.com/devicesync/logging"
)

type fakeUploader struct {
	mu       sync.Mutex
	payloads []Payload
	status   int
	accepted bool
	err      error
}

func acceptingUploader() *fakeUploader {
	return &fakeUploader{status: 200, accepted: true}
}

func (u *fakeUploader) Upload(ctx context.Context, payload any) (*v1.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.payloads = append(u.payloads, payload.(Payload))
	if u.err != nil {
		return nil, u.err
	}
	return &v1.UploadResult{
		StatusCode: u.status,
		Response:   &common.StatusAPIResponse[map[string]any]{Status: common.Truthy(u.accepted)},
	}, nil
}

func (u *fakeUploader) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.payloads)
}

func newTestRun(dialer device.Dialer, uploader Uploader, settings Settings) *RunContext {
	return NewRunContext(settings, logging.Nop(), dialer, uploader, nil)
}

func descriptor(id string) device.Descriptor {
	return device.Descriptor{ID: id, Name: "Terminal " + id, IP: "192.168.1.10"}
}

func attendance(n int) []device.AttendanceRecord {
	out := make([]device.AttendanceRecord, n)
	for i := range out {
		out[i] = device.AttendanceRecord{UserID: "00042", State: i % 2}
	}
	return out
}

func users(n int) []device.UserRecord {
	out := make([]device.UserRecord, n)
	for i := range out {
		out[i] = device.UserRecord{UID: string(rune('1' + i)), Name: "user", Enabled: true}
	}
	return out
}

var errBoom = errors.New("boom")

func onlineClient(att, usr int) *devicetest.Client {
	c := devicetest.NewClient()
	c.Attendance = attendance(att)
	c.Users = users(usr)
	return c
}
