package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docker/go-connections/tlsconfig"
	"github.com/meshkit/meshkit/api"
	"github.com/pkg/errors"
)

const (
	// DefaultRequestTimeout bounds every call to the manager.
	DefaultRequestTimeout = 30 * time.Second

	maxResponseSize = 1 << 20
)

// Client talks to the device API of a manager.
type Client struct {
	base string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) error {
		cl.http = c
		return nil
	}
}

// WithCAFile trusts the certificates in path, in addition to the system
// roots, for https servers.
func WithCAFile(path string) ClientOption {
	return func(cl *Client) error {
		tlsConfig, err := tlsconfig.Client(tlsconfig.Options{CAFile: path})
		if err != nil {
			return errors.Wrapf(err, "failed to load %s", path)
		}
		cl.http.Transport = &http.Transport{TLSClientConfig: tlsConfig}
		return nil
	}
}

// NewClient returns a client for the manager at server. A server without a
// scheme is reached over https.
func NewClient(server string, opts ...ClientOption) (*Client, error) {
	if server == "" {
		return nil, errors.New("a server address is required")
	}
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server address %s", server)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported scheme %s", u.Scheme)
	}

	c := &Client{
		base: strings.TrimSuffix(u.String(), "/"),
		http: &http.Client{Timeout: DefaultRequestTimeout},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Server returns the base URL of the manager.
func (c *Client) Server() string {
	return c.base
}

func (c *Client) do(ctx context.Context, method, path, token string, in interface{}) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "cannot reach manager")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var apiErr api.Error
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Code == "" {
			return nil, errors.Errorf("%s %s: %s", method, path, resp.Status)
		}
		return nil, &apiErr
	}
	return data, nil
}

// Enroll exchanges an enrollment code for a device token.
func (c *Client) Enroll(ctx context.Context, code, hostname string) (*api.EnrollResponse, error) {
	data, err := c.do(ctx, http.MethodPost, "/v1/device/enroll", "", &api.EnrollRequest{Code: code, Hostname: hostname})
	if err != nil {
		return nil, err
	}
	var resp api.EnrollResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to decode enrollment response")
	}
	return &resp, nil
}

// Config fetches the rendered daemon configuration. pkiDir is the directory
// the configuration refers to for certificate files.
func (c *Client) Config(ctx context.Context, token, pkiDir string) ([]byte, error) {
	path := "/v1/device/config"
	if pkiDir != "" {
		path += "?" + url.Values{"pki_dir": {pkiDir}}.Encode()
	}
	return c.do(ctx, http.MethodGet, path, token, nil)
}

// Bundle fetches the device's certificate, CA certificate and, when the
// manager holds it, the private key.
func (c *Client) Bundle(ctx context.Context, token string) (*api.CertificateBundle, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/device/bundle", token, nil)
	if err != nil {
		return nil, err
	}
	var bundle api.CertificateBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, errors.Wrap(err, "failed to decode certificate bundle")
	}
	return &bundle, nil
}
