package probe

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/projectdiscovery/cleanip/pkg/scanner"
	"github.com/projectdiscovery/cleanip/pkg/version"
)

// maxBodySize caps how much of a response body is drained per attempt
const maxBodySize = 1 << 20

// Option configures a Client
type Option func(*Client)

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithDialer replaces the dialer used to open connections
func WithDialer(dialer *net.Dialer) Option {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// Client is the HTTP transport used by the scanner
type Client struct {
	userAgent string
	dialer    *net.Dialer
}

// New creates a probe client
func New(opts ...Option) *Client {
	c := &Client{
		userAgent: version.UserAgent(),
		dialer:    &net.Dialer{KeepAlive: -1},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the request URL for target
func URL(target scanner.Target) string {
	u := url.URL{
		Scheme: target.Scheme,
		Host:   net.JoinHostPort(target.Address, strconv.Itoa(target.Port)),
		Path:   target.Path,
	}
	return u.String()
}

// Probe issues a single GET against target. Any HTTP response counts as
// success once its headers are in, the caller bounds the attempt through ctx.
func (c *Client) Probe(ctx context.Context, target scanner.Target) error {
	transport := &http.Transport{
		DialContext: c.dialer.DialContext,
		TLSClientConfig: &tls.Config{
			// candidates are bare addresses, never the certificate subject
			InsecureSkipVerify: true,
			ServerName:         target.ServerName,
		},
		DisableKeepAlives: true,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if target.ServerName != "" {
				req.Host = target.ServerName
			}
			req.Header.Set("User-Agent", c.userAgent)
			return transport.RoundTrip(req)
		}),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, URL(target), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// the response already arrived, a deadline hit while draining is not a failure
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	return nil
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (rf roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return rf(req)
}

var _ scanner.Transport = (*Client)(nil)
