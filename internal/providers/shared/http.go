package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

const (
	maxHTTPErrorBodySize = 256
	maxResponseBodySize  = 4 << 20
)

// BrowserUserAgent is sent on web-session requests so they look like the
// browser the cookie came from.
const BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Request is one JSON call. Bearer and Cookie are mutually exclusive auth
// shortcuts; Header entries win over both.
type Request struct {
	Method string
	URL    string
	Bearer string
	Cookie string
	Header map[string]string
	Body   io.Reader
}

func CreateStandardRequest(ctx context.Context, r Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, r.Body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.Bearer)
	}
	if r.Cookie != "" {
		req.Header.Set("Cookie", r.Cookie)
	}
	for key, value := range r.Header {
		req.Header.Set(key, value)
	}
	return req, nil
}

// DoJSON performs r under the runtime's HTTP timeout and decodes a 2xx body
// into out. Failures come back as classified *core.FetchError values and are
// never retried.
func (rt *Runtime) DoJSON(ctx context.Context, r Request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, rt.HTTPTimeout())
	defer cancel()

	req, err := CreateStandardRequest(ctx, r)
	if err != nil {
		return core.WrapError(core.KindUnknown, err)
	}
	resp, err := rt.HTTP.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return classifyTransport(ctx, err)
	}
	return ProcessStandardResponse(resp.StatusCode, body, out)
}

// ProcessStandardResponse classifies a response status and decodes body.
func ProcessStandardResponse(status int, body []byte, out any) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.AuthError(status, "")
	case status < 200 || status > 299:
		return core.ServerError(status, TruncateForError(string(body)))
	}
	if out == nil {
		return nil
	}
	if LooksLikeHTML(body) {
		return core.Errorf(core.KindMalformed, "expected JSON, got an HTML page")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.Errorf(core.KindMalformed, "decoding response: %w", err)
	}
	return nil
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.WrapError(core.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.WrapError(core.KindTimeout, err)
	}
	return core.WrapError(core.KindNetwork, err)
}

func LooksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	head := strings.ToLower(string(trimmed[:min(len(trimmed), 64)]))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") || strings.HasPrefix(head, "<head")
}

func TruncateForError(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= maxHTTPErrorBodySize {
		return value
	}
	return value[:maxHTTPErrorBodySize] + "..."
}
