package v1

import "time"

type Options struct {
	Timeout time.Duration
	Breaker BreakerOptions
}

type CollectorClient struct {
	Transport  *Transport
	Attendance *AttendanceEndpoint
}

// NewCollectorClient initializes the API client. endpoint is the full
// URL attendance payloads are posted to.
func NewCollectorClient(endpoint string, token string, opts Options) *CollectorClient {
	t := NewTransport(endpoint, token, opts.Timeout, opts.Breaker)
	return &CollectorClient{
		Transport:  t,
		Attendance: &AttendanceEndpoint{transport: t},
	}
}
