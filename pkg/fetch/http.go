package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/umputun/discovery/pkg/domain"
)

// ServerErrorRetryMinutes is the retry suggestion attached to http_5xx failures
const ServerErrorRetryMinutes = 5

// MaxBodySize limits how much of a response body adapters read
const MaxBodySize = 10 * 1024 * 1024

// NewHTTPClient makes a client with the given timeout, the same transport settings are used by all adapters
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// TransportFailure classifies an error returned by http.Client.Do.
// Query values of the request URL are redacted from the message.
func TransportFailure(ctx context.Context, err error) domain.Failure {
	if IsTimeout(ctx, err) {
		return domain.Failure{Reason: domain.FailureTimeout, Message: redactedError(err)}
	}
	return domain.Failure{Reason: domain.FailureNetwork, Message: redactedError(err)}
}

// RedactQuery replaces every query value of rawURL, credentials such as api keys travel there
func RedactQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexByte(rawURL, '?'); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	if u.RawQuery == "" {
		return rawURL
	}
	q := u.Query()
	for k := range q {
		q[k] = []string{"redacted"}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func redactedError(err error) string {
	msg := err.Error()
	var uerr *url.Error
	if !errors.As(err, &uerr) || uerr.URL == "" {
		return msg
	}
	return strings.ReplaceAll(msg, uerr.URL, RedactQuery(uerr.URL))
}

// IsTimeout reports whether err is a cancellation or deadline, either from ctx or from the client
func IsTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StatusFailure maps a non-2xx response to a failure, ok is false for 2xx responses
func StatusFailure(resp *http.Response) (domain.Failure, bool) {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return domain.Failure{}, false
	case code >= 500:
		return domain.Failure{
			Reason:         domain.FailureHTTP5xx,
			Message:        fmt.Sprintf("unexpected status code %d", code),
			StatusCode:     code,
			RetryAfter:     resp.Header.Get("Retry-After"),
			RetryInMinutes: ServerErrorRetryMinutes,
		}, true
	case code >= 400:
		return domain.Failure{
			Reason:     domain.FailureHTTP4xx,
			Message:    fmt.Sprintf("unexpected status code %d", code),
			StatusCode: code,
			RetryAfter: resp.Header.Get("Retry-After"),
		}, true
	default:
		return domain.Failure{
			Reason:     domain.FailureUnknown,
			Message:    fmt.Sprintf("unexpected status code %d", code),
			StatusCode: code,
		}, true
	}
}

// ReadBody reads a limited response body, read errors are classified like transport errors
func ReadBody(ctx context.Context, resp *http.Response) ([]byte, *domain.Failure) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		f := TransportFailure(ctx, err)
		f.StatusCode = resp.StatusCode
		return nil, &f
	}
	return body, nil
}
