package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docker/go-connections/sockets"
	"github.com/meshkit/meshkit/api"
	"github.com/pkg/errors"
)

// DefaultControlSocket is where meshd listens for operators.
const DefaultControlSocket = "/run/meshkit/control.sock"

// Client talks to the control API.
type Client struct {
	base string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client, for instance to dial an
// in-memory listener.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient returns a control API client for addr, which is either a unix
// socket path (optionally prefixed with unix://) or an http(s) URL.
func NewClient(addr string, opts ...ClientOption) (*Client, error) {
	c := &Client{}
	switch {
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		c.base = strings.TrimSuffix(addr, "/")
		c.http = &http.Client{Timeout: 30 * time.Second}
	default:
		path := strings.TrimPrefix(addr, "unix://")
		if path == "" {
			path = DefaultControlSocket
		}
		tr := &http.Transport{}
		if err := sockets.ConfigureTransport(tr, "unix", path); err != nil {
			return nil, errors.Wrapf(err, "failed to configure transport for %s", path)
		}
		c.base = "http://meshd"
		c.http = &http.Client{Transport: tr, Timeout: 30 * time.Second}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return api.Errorf(api.CodeUnavailable, "cannot reach manager: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode >= 300 {
		var apiErr api.Error
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Code == "" {
			return api.Errorf(codeForStatus(resp.StatusCode), "%s: %s", resp.Status, strings.TrimSpace(string(data)))
		}
		return &apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, out), "failed to decode response")
}

func (c *Client) CreateNetwork(ctx context.Context, req *api.CreateNetworkRequest) (*api.Network, error) {
	var network api.Network
	if err := c.do(ctx, http.MethodPost, "/v1/networks", req, &network); err != nil {
		return nil, err
	}
	return &network, nil
}

func (c *Client) ListNetworks(ctx context.Context) ([]*api.Network, error) {
	var networks []*api.Network
	err := c.do(ctx, http.MethodGet, "/v1/networks", nil, &networks)
	return networks, err
}

func (c *Client) GetNetwork(ctx context.Context, id string) (*api.Network, error) {
	var network api.Network
	if err := c.do(ctx, http.MethodGet, "/v1/networks/"+url.PathEscape(id), nil, &network); err != nil {
		return nil, err
	}
	return &network, nil
}

func (c *Client) RemoveNetwork(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/networks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateNode(ctx context.Context, req *api.CreateNodeRequest) (*api.CreateNodeResponse, error) {
	var resp api.CreateNodeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/networks/"+url.PathEscape(req.NetworkID)+"/nodes", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListNodes(ctx context.Context, networkID string) ([]*api.NodeView, error) {
	var nodes []*api.NodeView
	err := c.do(ctx, http.MethodGet, "/v1/networks/"+url.PathEscape(networkID)+"/nodes", nil, &nodes)
	return nodes, err
}

func (c *Client) GetNode(ctx context.Context, id string) (*api.NodeView, error) {
	var node api.NodeView
	if err := c.do(ctx, http.MethodGet, "/v1/nodes/"+url.PathEscape(id), nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) UpdateNode(ctx context.Context, req *api.UpdateNodeRequest) (*api.NodeView, error) {
	var node api.NodeView
	if err := c.do(ctx, http.MethodPatch, "/v1/nodes/"+url.PathEscape(req.NodeID), req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) RemoveNode(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/nodes/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateEnrollmentCode(ctx context.Context, req *api.CreateEnrollmentCodeRequest) (*api.CreateEnrollmentCodeResponse, error) {
	var resp api.CreateEnrollmentCodeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/nodes/"+url.PathEscape(req.NodeID)+"/enrollment-codes", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) IssueCertificate(ctx context.Context, req *api.IssueCertificateRequest) (*api.IssueCertificateResponse, error) {
	var resp api.IssueCertificateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/nodes/"+url.PathEscape(req.NodeID)+"/certificates", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RevokeCertificate(ctx context.Context, nodeID string) error {
	return c.do(ctx, http.MethodPost, "/v1/nodes/"+url.PathEscape(nodeID)+"/revoke", nil, nil)
}

func (c *Client) ReEnroll(ctx context.Context, req *api.ReEnrollRequest) (*api.ReEnrollResponse, error) {
	var resp api.ReEnrollResponse
	if err := c.do(ctx, http.MethodPost, "/v1/nodes/"+url.PathEscape(req.NodeID)+"/reenroll", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListCertificates(ctx context.Context, req *api.ListCertificatesRequest) ([]*api.Certificate, error) {
	q := url.Values{}
	if req.NetworkID != "" {
		q.Set("network", req.NetworkID)
	}
	if req.NodeID != "" {
		q.Set("node", req.NodeID)
	}
	path := "/v1/certificates"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var certs []*api.Certificate
	err := c.do(ctx, http.MethodGet, path, nil, &certs)
	return certs, err
}
