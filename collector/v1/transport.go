package v1

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Response is the raw result of a request. Non-2xx statuses are data,
// not errors; callers inspect StatusCode.
type Response struct {
	StatusCode int
	Data       []byte
}

func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

type BreakerOptions struct {
	// FailureThreshold is the number of consecutive failed requests that
	// opens the breaker. Zero disables the breaker.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	OnStateChange    func(from, to string)
}

// Transport handles low-level HTTP and authentication
type Transport struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client

	breaker *gobreaker.CircuitBreaker[*Response]
}

var errServerStatus = errors.New("server error status")

// NewTransport creates a transport with base URL and auth
func NewTransport(baseURL, token string, timeout time.Duration, opts BreakerOptions) *Transport {
	t := &Transport{
		BaseURL:    baseURL,
		AuthToken:  token,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if opts.FailureThreshold > 0 {
		t.breaker = newBreaker(baseURL, opts)
	}
	return t
}

func newBreaker(name string, opts BreakerOptions) *gobreaker.CircuitBreaker[*Response] {
	return gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:    name,
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if opts.OnStateChange != nil {
				opts.OnStateChange(from.String(), to.String())
			}
		},
	})
}

// helper: build full URL with query params
func (t *Transport) buildURL(path string, query map[string]string) (string, error) {
	u, err := url.Parse(t.BaseURL + path)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Post sends a POST request with JSON body. Only transport failures are
// returned as errors.
func (t *Transport) Post(ctx context.Context, path string, data any, query map[string]string) (*Response, error) {
	fullURL, err := t.buildURL(path, query)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s%s: %w", t.BaseURL, path, err)
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	if t.breaker == nil {
		return t.do(ctx, fullURL, body)
	}

	resp, err := t.breaker.Execute(func() (*Response, error) {
		resp, err := t.do(ctx, fullURL, body)
		if err == nil && resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, err
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("POST %s: upload endpoint unavailable: %w", path, err)
	}
	return resp, err
}

func (t *Transport) do(ctx context.Context, fullURL string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.AuthToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.AuthToken))
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	resdata, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Data:       resdata,
	}, nil
}

// BreakerState reports the breaker state, or "disabled".
func (t *Transport) BreakerState() string {
	if t.breaker == nil {
		return "disabled"
	}
	return t.breaker.State().String()
}
