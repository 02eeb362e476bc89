package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultUserAgent is sent with every HTTP request.
const DefaultUserAgent = "provision"

// HTTPSource serves http: and https: locations.
type HTTPSource struct {
	userAgent string
	verified  *http.Client
	insecure  *http.Client
}

// NewHTTPSource creates an HTTP source. A zero timeout means no timeout.
func NewHTTPSource(timeout time.Duration, userAgent string) *HTTPSource {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPSource{
		userAgent: userAgent,
		verified:  newHTTPClient(timeout, false),
		insecure:  newHTTPClient(timeout, true),
	}
}

func newHTTPClient(timeout time.Duration, skipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: skipVerify,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Open issues a GET for u. With verifyCertificate false, TLS certificates are not checked.
func (s *HTTPSource) Open(ctx context.Context, u *url.URL, verifyCertificate bool) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	client := s.verified
	if !verifyCertificate {
		client = s.insecure
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// Close drops idle connections.
func (s *HTTPSource) Close() error {
	s.verified.CloseIdleConnections()
	s.insecure.CloseIdleConnections()
	return nil
}
