package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds every federation fetch. Exceeding it is reported as ErrTimeout, never a
// hang.
const DefaultTimeout = 10 * time.Second

// Sentinel errors classifying fetch failures. Callers branch on these with errors.Is; the
// underlying cause is preserved through wrapping.
var (
	// ErrUnreachable means the request never produced an HTTP response.
	ErrUnreachable = errors.New("peer unreachable")
	// ErrTimeout means the request exceeded the client's timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrNotFound means the peer answered with HTTP 404.
	ErrNotFound = errors.New("resource not found")
	// ErrUnexpectedStatus means the peer answered with a status other than 200 or 404.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrWrongContentType means the response body is not the media type the caller required.
	ErrWrongContentType = errors.New("wrong content type")
)

// Options configures a Client.
type Options struct {
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
	// InsecureSkipTLSVerify disables TLS certificate verification. Only sensible for
	// http://localhost test federations.
	InsecureSkipTLSVerify bool
}

// Client is an HTTP client for requests to federation entities. It allows re-use of a single
// client across many fetches and classifies transport failures for the validation error taxonomy.
type Client struct {
	client http.Client
}

func New(options Options) Client {
	timeout := options.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return Client{client: http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: options.InsecureSkipTLSVerify},
		},
	}}
}

// Get does an HTTP GET of the specified resource, validates that the response has the expected
// Content-Type header and returns the response body. Failures are classified into the sentinel
// errors above. No retries; retry policy, if any, belongs to the caller.
func (c *Client) Get(ctx context.Context, resource url.URL, contentType string, queryParams url.Values) ([]byte, error) {
	query := resource.Query()
	for k, values := range queryParams {
		for _, v := range values {
			query.Add(k, v)
		}
	}
	resource.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to construct request for '%s': %w", resource.String(), err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(resource.String(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to content type check
	case resp.StatusCode == http.StatusNotFound:
		body, _ := io.ReadAll(resp.Body)
		return body, fmt.Errorf("'%s': %w", resource.String(), ErrNotFound)
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("'%s' returned HTTP %d (body: %s): %w",
			resource.String(), resp.StatusCode, string(body), ErrUnexpectedStatus)
	}

	if contentType != "" && resp.Header.Get("Content-Type") != contentType {
		return nil, fmt.Errorf("response from '%s' has content type '%s', want '%s': %w",
			resource.String(), resp.Header.Get("Content-Type"), contentType, ErrWrongContentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from '%s': %w", resource.String(), err)
	}

	return body, nil
}

// classifyTransportError sorts a request failure into timeout vs unreachable.
func classifyTransportError(resource string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("fetching '%s': %v: %w", resource, err, ErrTimeout)
	}

	return fmt.Errorf("fetching '%s': %v: %w", resource, err, ErrUnreachable)
}
