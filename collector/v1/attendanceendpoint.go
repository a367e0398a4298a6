package v1

import (
	"context"
	"fmt"

	"axiapac.com/devicesync/collector/v1/common"
	"github.com/goccy/go-json"
)

// UploadResult carries the status code and the parsed body of an upload.
// Response is nil when the body was not valid JSON.
type UploadResult struct {
	StatusCode int
	Response   *common.StatusAPIResponse[map[string]any]
	ParseError error
	Raw        []byte
}

// Accepted reports whether the collector took the payload: a 2xx status
// and a parsed body with a truthy status field.
func (r *UploadResult) Accepted() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300 &&
		r.Response != nil && bool(r.Response.Status)
}

// Reason explains why a result was not accepted.
func (r *UploadResult) Reason() string {
	switch {
	case r == nil:
		return "no response"
	case r.StatusCode < 200 || r.StatusCode >= 300:
		return fmt.Sprintf("status code %d: %s", r.StatusCode, truncate(string(r.Raw), 200))
	case r.Response == nil:
		return fmt.Sprintf("malformed response body: %v", r.ParseError)
	case !bool(r.Response.Status):
		if r.Response.Message != "" {
			return fmt.Sprintf("rejected: %s", r.Response.Message)
		}
		return "rejected: status false"
	}
	return ""
}

type AttendanceEndpoint struct {
	transport *Transport
}

func (this *AttendanceEndpoint) Upload(ctx context.Context, payload any) (*UploadResult, error) {
	resp, err := this.transport.Post(ctx, "", payload, nil)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{StatusCode: resp.StatusCode, Raw: resp.Data}

	var parsed common.StatusAPIResponse[map[string]any]
	if err := json.Unmarshal(resp.Data, &parsed); err != nil {
		result.ParseError = err
		return result, nil
	}
	result.Response = &parsed

	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
