// Package transport performs the outbound HTTP calls of a send: the main
// request and any nested pm.sendRequest calls made by scripts.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single outbound call.
const DefaultTimeout = 30 * time.Second

// Pair is one ordered header or query param.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Request is a fully resolved outbound call.
type Request struct {
	Method    string `json:"method"`
	URL       string `json:"url"`
	Params    []Pair `json:"params,omitempty"`
	Headers   []Pair `json:"headers,omitempty"`
	Body      []byte `json:"-"`
	SSLVerify bool   `json:"ssl_verify"`
}

// Response describes what came back.
type Response struct {
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers"`
	BodyText  string            `json:"body_text"`
	BodyJSON  any               `json:"body_json"` // nil when the body is not JSON
	ElapsedMs float64           `json:"elapsed_ms"`
}

// Fault is a transport-level failure: DNS, refused connection, TLS, timeout.
type Fault struct {
	Method string
	URL    string
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Method, f.URL, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// FaultResponse is the response shape used in place of a real one when the
// call never completed.
func FaultResponse(err error) *Response {
	return &Response{Headers: map[string]string{}, BodyText: err.Error()}
}

// Client performs HTTP calls.
type Client struct {
	verified   *http.Client
	unverified *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.verified.Timeout = d
		c.unverified.Timeout = d
	}
}

// NewClient creates a new HTTP client pair, one verifying TLS and one not.
func NewClient(opts ...Option) *Client {
	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // user-controlled per send

	c := &Client{
		verified:   &http.Client{Timeout: DefaultTimeout},
		unverified: &http.Client{Timeout: DefaultTimeout, Transport: insecure},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs req. Any failure before a status line arrives is a *Fault.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	target, err := withParams(req.URL, req.Params)
	if err != nil {
		return nil, &Fault{Method: method, URL: req.URL, Err: err}
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, &Fault{Method: method, URL: req.URL, Err: err}
	}
	for _, h := range req.Headers {
		httpReq.Header.Set(h.Key, h.Value)
	}

	client := c.verified
	if !req.SSLVerify {
		client = c.unverified
	}

	startTime := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, &Fault{Method: method, URL: req.URL, Err: err}
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Fault{Method: method, URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	elapsed := time.Since(startTime)

	headers := make(map[string]string, len(httpResp.Header))
	for key, values := range httpResp.Header {
		headers[key] = strings.Join(values, ", ")
	}

	return &Response{
		Status:    httpResp.StatusCode,
		Headers:   headers,
		BodyText:  string(bodyBytes),
		BodyJSON:  parseJSON(bodyBytes),
		ElapsedMs: float64(elapsed.Microseconds()) / 1000,
	}, nil
}

func withParams(raw string, params []Pair) (string, error) {
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for _, p := range params {
		q.Add(p.Key, p.Value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseJSON(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	return v
}

// Format renders the response for terminal display.
func (r *Response) Format() string {
	var sb strings.Builder

	// Status line
	if r.Status == 0 {
		sb.WriteString("Status: no response\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("Status: %d %s (%.0fms)\n\n", r.Status, http.StatusText(r.Status), r.ElapsedMs))
	}

	if len(r.Headers) > 0 {
		sb.WriteString("Headers:\n")
		for _, key := range sortedKeys(r.Headers) {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", key, r.Headers[key]))
		}
		sb.WriteString("\n")
	}

	// Body (try to pretty-print JSON)
	sb.WriteString("Body:\n")
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, []byte(r.BodyText), "", "  "); err == nil {
		sb.WriteString(prettyJSON.String())
	} else {
		sb.WriteString(r.BodyText)
	}

	return sb.String()
}
