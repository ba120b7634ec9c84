package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/akutz/memconn"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/ca"
	"github.com/meshkit/meshkit/manager/controlapi"
	"github.com/meshkit/meshkit/manager/dispatcher"
	"github.com/meshkit/meshkit/manager/encryption"
	"github.com/meshkit/meshkit/manager/enrollment"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *Server
	client *Client
	clock  *fakeclock.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	enc, dec := encryption.Defaults(encryption.GenerateSecretKey(), false)
	clk := fakeclock.NewFakeClock(time.Now())
	s := store.NewMemoryStore(nil)
	t.Cleanup(func() { s.Close() })

	authority := ca.NewAuthority(ca.AuthorityConfig{Encrypter: enc, Decrypter: dec, Clock: clk})
	exchange := enrollment.New(s, clk)
	control, err := controlapi.New(
		controlapi.WithMemoryStore(s),
		controlapi.WithAuthority(authority),
		controlapi.WithEnrollment(exchange),
		controlapi.WithClock(clk),
	)
	require.NoError(t, err)

	config := DefaultConfig()
	config.Clock = clk
	server := New(control, dispatcher.New(s, exchange, authority, &dispatcher.Config{Clock: clk}), config)

	name := fmt.Sprintf("control-%s", t.Name())
	l, err := memconn.Listen("memu", name)
	require.NoError(t, err)
	srv := &http.Server{Handler: server.ControlHandler()}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	client, err := NewClient("http://meshd", WithHTTPClient(&http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return memconn.Dial("memu", name)
			},
		},
	}))
	require.NoError(t, err)

	return &testEnv{server: server, client: client, clock: clk}
}

func deviceRequest(t *testing.T, h http.Handler, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *api.Error {
	var e api.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return &e
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(api.CodeInvalidArgument))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(api.CodeUnauthenticated))
	assert.Equal(t, http.StatusConflict, HTTPStatus(api.CodeResourceExhausted))
	assert.Equal(t, http.StatusGone, HTTPStatus(api.CodeExpired))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(api.CodeRateLimited))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(api.CodeUnknown))

	internal := apiError(fmt.Errorf("disk on fire"))
	assert.Equal(t, api.CodeInternal, internal.Code)
	assert.NotContains(t, internal.Message, "disk")
}

func TestControlAPIOverClient(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	network, err := e.client.CreateNetwork(ctx, &api.CreateNetworkRequest{Name: "home", CIDR: "10.10.0.0/24"})
	require.NoError(t, err)
	assert.Nil(t, network.CAKey)

	_, err = e.client.CreateNetwork(ctx, &api.CreateNetworkRequest{Name: "home", CIDR: "10.10.0.0/24"})
	assert.Equal(t, api.CodeAlreadyExists, api.CodeOf(err))

	networks, err := e.client.ListNetworks(ctx)
	require.NoError(t, err)
	assert.Len(t, networks, 1)

	created, err := e.client.CreateNode(ctx, &api.CreateNodeRequest{
		NetworkID:         network.ID,
		Spec:              api.NodeSpec{Hostname: "lh", PublicEndpoint: "203.0.113.1:4242"},
		EnrollmentCodeTTL: api.Duration(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, created.Node.Spec.IsLighthouse)
	assert.Equal(t, "10.10.0.1", created.Node.Address)
	assert.NotEmpty(t, created.EnrollmentCode)

	laptop, err := e.client.CreateNode(ctx, &api.CreateNodeRequest{NetworkID: network.ID, Spec: api.NodeSpec{Hostname: "laptop"}})
	require.NoError(t, err)

	nodes, err := e.client.ListNodes(ctx, network.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, api.NodeStatusPendingEnrollment, nodes[0].Status)

	err = e.client.RemoveNode(ctx, created.Node.ID)
	assert.Equal(t, api.CodeFailedPrecondition, api.CodeOf(err))
	assert.Contains(t, api.MessageOf(err), "only lighthouse")

	relay := true
	view, err := e.client.UpdateNode(ctx, &api.UpdateNodeRequest{NodeID: laptop.Node.ID, IsRelay: &relay})
	require.NoError(t, err)
	assert.True(t, view.Spec.IsRelay)

	code, err := e.client.CreateEnrollmentCode(ctx, &api.CreateEnrollmentCodeRequest{NodeID: laptop.Node.ID})
	require.NoError(t, err)
	assert.Len(t, code.Code, 16)

	issued, err := e.client.IssueCertificate(ctx, &api.IssueCertificateRequest{NodeID: laptop.Node.ID})
	require.NoError(t, err)
	assert.Equal(t, "10.10.0.2", issued.Address)
	assert.NotEmpty(t, issued.PrivateKey)

	require.NoError(t, e.client.RevokeCertificate(ctx, laptop.Node.ID))
	err = e.client.RevokeCertificate(ctx, laptop.Node.ID)
	assert.Equal(t, api.CodeFailedPrecondition, api.CodeOf(err))

	reenrolled, err := e.client.ReEnroll(ctx, &api.ReEnrollRequest{NodeID: laptop.Node.ID, EnrollmentCodeTTL: api.Duration(time.Hour)})
	require.NoError(t, err)
	assert.NotEmpty(t, reenrolled.EnrollmentCode)

	certs, err := e.client.ListCertificates(ctx, &api.ListCertificatesRequest{NodeID: laptop.Node.ID})
	require.NoError(t, err)
	assert.Len(t, certs, 3)

	_, err = e.client.GetNode(ctx, "nope")
	assert.Equal(t, api.CodeNotFound, api.CodeOf(err))

	require.NoError(t, e.client.RemoveNode(ctx, laptop.Node.ID))
	require.NoError(t, e.client.RemoveNode(ctx, created.Node.ID))
	require.NoError(t, e.client.RemoveNetwork(ctx, network.ID))
	_, err = e.client.GetNetwork(ctx, network.ID)
	assert.Equal(t, api.CodeNotFound, api.CodeOf(err))
}

func TestControlRejectsUnknownFields(t *testing.T) {
	e := newTestEnv(t)
	rec := deviceRequest(t, e.server.ControlHandler(), http.MethodPost, "/v1/networks", "", map[string]string{"name": "x", "subnet": "10.0.0.0/8"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.CodeInvalidArgument, decodeError(t, rec).Code)
}

func TestDeviceAPI(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	device := e.server.DeviceHandler()

	network, err := e.client.CreateNetwork(ctx, &api.CreateNetworkRequest{Name: "home", CIDR: "10.10.0.0/24"})
	require.NoError(t, err)
	created, err := e.client.CreateNode(ctx, &api.CreateNodeRequest{
		NetworkID:         network.ID,
		Spec:              api.NodeSpec{Hostname: "lh"},
		EnrollmentCodeTTL: api.Duration(time.Hour),
	})
	require.NoError(t, err)

	rec := deviceRequest(t, device, http.MethodPost, "/v1/device/enroll", "", api.EnrollRequest{Code: strings.ToLower(created.EnrollmentCode)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var enrolled api.EnrollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enrolled))
	assert.Equal(t, created.Node.ID, enrolled.NodeID)

	rec = deviceRequest(t, device, http.MethodPost, "/v1/device/enroll", "", api.EnrollRequest{Code: created.EnrollmentCode})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.CodeAlreadyConsumed, decodeError(t, rec).Code)

	rec = deviceRequest(t, device, http.MethodGet, "/v1/device/config", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = deviceRequest(t, device, http.MethodGet, "/v1/device/config", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = deviceRequest(t, device, http.MethodGet, "/v1/device/config?pki_dir=/opt/nebula", enrolled.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/opt/nebula/host.crt")
	tag := rec.Header().Get("ETag")
	require.NotEmpty(t, tag)

	req := httptest.NewRequest(http.MethodGet, "/v1/device/config?pki_dir=/opt/nebula", nil)
	req.Header.Set("Authorization", "Bearer "+enrolled.Token)
	req.Header.Set("If-None-Match", tag)
	cached := httptest.NewRecorder()
	device.ServeHTTP(cached, req)
	assert.Equal(t, http.StatusNotModified, cached.Code)

	rec = deviceRequest(t, device, http.MethodGet, "/v1/device/bundle", enrolled.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bundle api.CertificateBundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.Contains(t, bundle.PrivateKey, "PRIVATE KEY")

	view, err := e.client.GetNode(ctx, created.Node.ID)
	require.NoError(t, err)
	assert.Equal(t, api.NodeStatusActive, view.Status)
}

func TestDeviceEnrollRateLimit(t *testing.T) {
	e := newTestEnv(t)
	device := e.server.DeviceHandler()

	for i := 0; i < 5; i++ {
		rec := deviceRequest(t, device, http.MethodPost, "/v1/device/enroll", "", api.EnrollRequest{Code: "AAAAAAAAAAAAAAAA"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec := deviceRequest(t, device, http.MethodPost, "/v1/device/enroll", "", api.EnrollRequest{Code: "AAAAAAAAAAAAAAAA"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, api.CodeRateLimited, decodeError(t, rec).Code)

	e.clock.Increment(15 * time.Minute)
	rec = deviceRequest(t, device, http.MethodPost, "/v1/device/enroll", "", api.EnrollRequest{Code: "AAAAAAAAAAAAAAAA"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceLimitsByNode(t *testing.T) {
	e := newTestEnv(t)
	e.server.deviceLimiter = nil
	ctx := context.Background()
	device := e.server.DeviceHandler()

	network, err := e.client.CreateNetwork(ctx, &api.CreateNetworkRequest{Name: "home", CIDR: "10.10.0.0/24"})
	require.NoError(t, err)
	created, err := e.client.CreateNode(ctx, &api.CreateNodeRequest{
		NetworkID:         network.ID,
		Spec:              api.NodeSpec{Hostname: "lh"},
		EnrollmentCodeTTL: api.Duration(time.Hour),
	})
	require.NoError(t, err)
	rec := deviceRequest(t, device, http.MethodPost, "/v1/device/enroll", "", api.EnrollRequest{Code: created.EnrollmentCode})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var enrolled api.EnrollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enrolled))

	// unknown tokens are rejected before they are charged to anything
	for i := 0; i < 30; i++ {
		rec = deviceRequest(t, device, http.MethodGet, "/v1/device/bundle", fmt.Sprintf("bogus-%d", i), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Equal(t, 0, e.server.bundleLimiter.len())

	for i := 0; i < BundleLimit.Requests; i++ {
		rec = deviceRequest(t, device, http.MethodGet, "/v1/device/bundle", enrolled.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d: %s", i, rec.Body.String())
	}
	rec = deviceRequest(t, device, http.MethodGet, "/v1/device/bundle", enrolled.Token, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, e.server.bundleLimiter.len())

	// config has its own budget
	rec = deviceRequest(t, device, http.MethodGet, "/v1/device/config", enrolled.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	e.clock.Increment(BundleLimit.Window)
	rec = deviceRequest(t, device, http.MethodGet, "/v1/device/bundle", enrolled.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeviceSurfaceLimit(t *testing.T) {
	e := newTestEnv(t)
	e.server.deviceLimiter = newGlobalLimiter(1, 2, e.clock)
	device := e.server.DeviceHandler()

	for i := 0; i < 2; i++ {
		rec := deviceRequest(t, device, http.MethodGet, "/v1/device/config", "bogus", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := deviceRequest(t, device, http.MethodGet, "/v1/device/config", "bogus", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	e.clock.Increment(time.Second)
	rec = deviceRequest(t, device, http.MethodPost, "/v1/device/enroll", "", api.EnrollRequest{Code: "AAAAAAAAAAAAAAAA"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
