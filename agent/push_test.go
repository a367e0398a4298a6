package agent

import (
	"context"
	"testing"
	"time"

	"axiapac.com/devicesync/device/devicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"E042", "00042"},
		{"42", "00042"},
		{"EMP-12", "00012"},
		{"A1B2C3", "00123"},
		{"12345", "12345"},
		{"E1234567", "34567"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateUID(tt.id))
			assert.Equal(t, GenerateUID(tt.id), GenerateUID(tt.id))
		})
	}
}

func TestGenerateUIDFallback(t *testing.T) {
	for _, id := range []string{"E7", "", "ABC", "٣٤"} {
		uid := GenerateUID(id)
		assert.Len(t, uid, 5, id)
		assert.Equal(t, byte('1'), uid[0], id)
		assert.Regexp(t, `^1\d{4}$`, uid)
	}

	seq := []int{7, 4242}
	next := func(int) int {
		v := seq[0]
		seq = seq[1:]
		return v
	}
	assert.Equal(t, "10007", generateUID("E7", next))
	assert.Equal(t, "14242", generateUID("E7", next))
}

func TestEmployeeUIDPrefersNative(t *testing.T) {
	assert.Equal(t, "77", Employee{ID: "E042", NativeUserID: "77"}.UID())
	assert.Equal(t, "00042", Employee{ID: "E042", NativeUserID: "  "}.UID())
}

func TestPushWritesEveryEmployee(t *testing.T) {
	dialer := devicetest.NewDialer()
	fake := dialer.Add("d1", devicetest.NewClient())
	fake.SetUserFail = map[string]error{"E002": nil}

	employees := []Employee{
		{ID: "E001", Name: "Alice"},
		{ID: "E002", Name: "Bob"},
		{ID: "E003", Name: "Carol", NativeUserID: "9"},
	}

	summary := NewPushWorker(newTestRun(dialer, nil, Settings{})).Run(context.Background(), descriptor("d1"), employees, false)

	assert.Equal(t, 3, summary.TotalCount)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Empty(t, summary.Error)
	require.Len(t, summary.Outcomes, 3)
	assert.False(t, summary.Outcomes[1].Succeeded)
	assert.Equal(t, "9", summary.Outcomes[2].AssignedUID)

	assert.Equal(t, 1, fake.Connects)
	assert.Equal(t, 1, fake.Disconnects)
	assert.Equal(t, 0, fake.ClearUsersCalls)
	require.Len(t, fake.Written, 2)
	assert.Equal(t, "00001", fake.Written[0].UID)
	assert.Equal(t, "E001", fake.Written[0].UserID)
	assert.True(t, fake.Written[0].Enabled)
}

func TestPushAssignsDerivedUID(t *testing.T) {
	dialer := devicetest.NewDialer()
	fake := dialer.Add("d1", devicetest.NewClient())

	summary := NewPushWorker(newTestRun(dialer, nil, Settings{})).Run(context.Background(), descriptor("d1"), []Employee{{ID: "E042", Name: "A"}}, false)

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, "00042", summary.Outcomes[0].AssignedUID)
	assert.Equal(t, "00042", fake.Written[0].UID)
}

func TestPushShortIDIsRandomised(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		seen[GenerateUID("E7")] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestPushConnectFailureAbortsBatch(t *testing.T) {
	dialer := devicetest.NewDialer()
	fake := dialer.Add("d1", devicetest.NewClient())
	fake.ConnectOK = false

	summary := NewPushWorker(newTestRun(dialer, nil, Settings{})).Run(context.Background(), descriptor("d1"), []Employee{{ID: "E1", Name: "A"}, {ID: "E2", Name: "B"}}, true)

	assert.Equal(t, KindConnection, summary.ErrorKind)
	assert.NotEmpty(t, summary.Error)
	assert.Empty(t, summary.Outcomes)
	assert.Equal(t, 0, summary.SuccessCount)
	assert.Equal(t, 2, summary.FailedCount)
	assert.Equal(t, 0, fake.ClearUsersCalls)
	assert.NotContains(t, fake.Calls, "set_user")
}

func TestPushClearFirst(t *testing.T) {
	dialer := devicetest.NewDialer()
	fake := dialer.Add("d1", devicetest.NewClient())

	summary := NewPushWorker(newTestRun(dialer, nil, Settings{PushRate: 1000})).Run(context.Background(), descriptor("d1"), []Employee{{ID: "E10", Name: "A"}}, true)

	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, fake.ClearUsersCalls)
	assert.Equal(t, []string{"connect", "clear_users", "set_user", "disconnect"}, fake.Calls)
}

func TestPushClearFailureStopsBatch(t *testing.T) {
	dialer := devicetest.NewDialer()
	fake := dialer.Add("d1", devicetest.NewClient())
	fake.ClearUsersOK = false

	summary := NewPushWorker(newTestRun(dialer, nil, Settings{})).Run(context.Background(), descriptor("d1"), []Employee{{ID: "E10", Name: "A"}}, true)

	assert.Equal(t, KindClear, summary.ErrorKind)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Empty(t, fake.Written)
	assert.True(t, fake.Balanced())
}

func TestPushPreview(t *testing.T) {
	dialer := devicetest.NewDialer()

	preview := NewPushWorker(newTestRun(dialer, nil, Settings{})).Preview([]Employee{{ID: "E042", Name: "A"}, {ID: "E9", Name: "B", NativeUserID: "321"}})

	require.Len(t, preview, 2)
	assert.Equal(t, "00042", preview[0].AssignedUID)
	assert.Equal(t, "321", preview[1].AssignedUID)
	assert.Empty(t, dialer.Dials)
}

func TestPushRejectsIncompleteEmployee(t *testing.T) {
	dialer := devicetest.NewDialer()
	fake := dialer.Add("d1", devicetest.NewClient())

	employees := []Employee{{ID: "E001", Name: ""}, {ID: "E002", Name: "Bob"}}
	summary := NewPushWorker(newTestRun(dialer, nil, Settings{})).Run(context.Background(), descriptor("d1"), employees, false)

	assert.Empty(t, summary.Error)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailedCount)
	require.Len(t, summary.Outcomes, 2)
	assert.False(t, summary.Outcomes[0].Succeeded)
	assert.Contains(t, summary.Outcomes[0].ErrorDetail, "missing name")
	require.Len(t, fake.Written, 1)
	assert.Equal(t, "E002", fake.Written[0].UserID)
	assert.Equal(t, 1, fake.CallCount("set_user"))
}

func TestPushStalledWriteStopsBatch(t *testing.T) {
	dialer := devicetest.NewDialer()
	fake := dialer.Add("d1", devicetest.NewClient())
	hang(t, fake, "set_user")

	employees := []Employee{{ID: "E001", Name: "A"}, {ID: "E002", Name: "B"}, {ID: "E003", Name: "C"}}
	summary := NewPushWorker(newTestRun(dialer, nil, Settings{OperationTimeout: 50 * time.Millisecond})).Run(context.Background(), descriptor("d1"), employees, false)

	assert.Equal(t, KindConnection, summary.ErrorKind)
	assert.Contains(t, summary.Error, "push stopped after 1 of 3")
	assert.Equal(t, 0, summary.SuccessCount)
	assert.Equal(t, 3, summary.FailedCount)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, 1, fake.CallCount("set_user"))
	assert.Equal(t, 1, fake.Disconnects)
}

func TestPushWaitsForDeviceLock(t *testing.T) {
	dialer := devicetest.NewDialer()
	fake := dialer.Add("d1", devicetest.NewClient())
	rc := newTestRun(dialer, nil, Settings{})

	unlock, err := rc.Locks.Lock(context.Background(), "d1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	summary := NewPushWorker(rc).Run(ctx, descriptor("d1"), []Employee{{ID: "E1", Name: "A"}}, false)

	assert.Equal(t, KindCancelled, summary.ErrorKind)
	assert.Contains(t, summary.Error, "waiting for device d1")
	assert.Equal(t, 0, fake.Connects)
	assert.Empty(t, dialer.Dials)
}
