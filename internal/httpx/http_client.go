// Package httpx holds the shared client for outbound calls to LLM providers
// and Slack.
package httpx

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultExternalHTTPTimeout = 90 * time.Second

var externalHTTPClient = &http.Client{
	Timeout:   defaultExternalHTTPTimeout,
	Transport: &loggingTransport{next: http.DefaultTransport, logger: zap.NewNop()},
}

// ConfigureExternalHTTPClient sets the timeout and logger used for outbound
// calls and returns the timeout actually applied.
func ConfigureExternalHTTPClient(timeoutSeconds int, logger *zap.Logger) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	externalHTTPClient.Timeout = timeout
	externalHTTPClient.Transport = &loggingTransport{next: http.DefaultTransport, logger: logger.Named("http")}
	return timeout
}

func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

// loggingTransport records host, status and latency of each outbound
// request. URLs are not logged in full; some carry tokens.
type loggingTransport struct {
	next   http.RoundTripper
	logger *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("host", req.URL.Host),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		t.logger.Warn("outbound request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	t.logger.Debug("outbound request", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}
