package common

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Truthy decodes any JSON value and keeps whether it counts as true:
// true, a non-zero number, a non-empty array or object, or a string other
// than "", "0" and "false".
type Truthy bool

func (t *Truthy) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		*t = false
		return nil
	}

	switch b[0] {
	case 'n':
		*t = false
	case 't':
		*t = true
	case 'f':
		*t = false
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		*t = Truthy(s != "" && s != "0" && !strings.EqualFold(s, "false"))
	case '[':
		var v []any
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = len(v) > 0
	case '{':
		var v map[string]any
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = len(v) > 0
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return err
		}
		*t = f != 0
	}
	return nil
}

func (t Truthy) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(t))
}
