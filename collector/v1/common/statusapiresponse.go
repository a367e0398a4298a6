package common

import (
	"github.com/goccy/go-json"
)

// StatusAPIResponse is the collector's reply envelope. Only status decides
// whether a call was accepted: summary, message and errors are decoded
// best effort, so a summary of an unexpected shape never rejects a reply.
type StatusAPIResponse[T any] struct {
	Status  Truthy `json:"status"`
	Message string `json:"message,omitempty"`
	Summary T      `json:"summary,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func (r *StatusAPIResponse[T]) UnmarshalJSON(b []byte) error {
	var raw struct {
		Status  Truthy          `json:"status"`
		Message json.RawMessage `json:"message"`
		Summary json.RawMessage `json:"summary"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	r.Status = raw.Status
	r.Message = text(raw.Message)

	var summary T
	if len(raw.Summary) > 0 && json.Unmarshal(raw.Summary, &summary) == nil {
		r.Summary = summary
	}
	r.Errors = nil
	if len(raw.Errors) > 0 {
		var errs any
		if json.Unmarshal(raw.Errors, &errs) == nil {
			r.Errors = errs
		}
	}
	return nil
}

// text returns a JSON string's value, or the raw JSON for anything else.
func text(b json.RawMessage) string {
	if len(b) == 0 || string(b) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return string(b)
}
