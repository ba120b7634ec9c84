package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/akutz/memconn"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/manager/httpapi"
	"github.com/phayes/permbits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memClient(name string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return memconn.Dial("memu", name)
			},
		},
	}
}

type testListeners struct {
	control, device string
}

func testConfig(t *testing.T, stateDir string) (Config, testListeners) {
	names := testListeners{
		control: fmt.Sprintf("control-%s-%d", t.Name(), time.Now().UnixNano()),
		device:  fmt.Sprintf("device-%s-%d", t.Name(), time.Now().UnixNano()),
	}
	controlL, err := memconn.Listen("memu", names.control)
	require.NoError(t, err)
	deviceL, err := memconn.Listen("memu", names.device)
	require.NoError(t, err)
	return Config{
		StateDir:        stateDir,
		ControlListener: controlL,
		DeviceListener:  deviceL,
	}, names
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{StateDir: t.TempDir()})
	assert.Error(t, err)

	_, err = New(Config{StateDir: t.TempDir(), ControlSocket: "/tmp/x.sock"})
	assert.Error(t, err)

	_, err = New(Config{StateDir: t.TempDir(), ControlSocket: "/tmp/x.sock", DeviceAddr: ":0", TLSCertFile: "cert.pem"})
	assert.Error(t, err)
}

func TestManagerRunAndRestart(t *testing.T) {
	stateDir := t.TempDir()
	config, names := testConfig(t, stateDir)

	m, err := New(config)
	require.NoError(t, err)

	perms, err := permbits.Stat(filepath.Join(stateDir, keyFilename))
	require.NoError(t, err)
	assert.True(t, perms.UserRead())
	assert.False(t, perms.GroupRead())
	assert.False(t, perms.OtherRead())

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(context.Background()) }()

	client, err := httpapi.NewClient("http://meshd", httpapi.WithHTTPClient(memClient(names.control)))
	require.NoError(t, err)

	ctx := context.Background()
	network, err := client.CreateNetwork(ctx, &api.CreateNetworkRequest{Name: "home", CIDR: "10.42.0.0/24"})
	require.NoError(t, err)
	created, err := client.CreateNode(ctx, &api.CreateNodeRequest{
		NetworkID:         network.ID,
		Spec:              api.NodeSpec{Hostname: "lighthouse", PublicEndpoint: "203.0.113.1:4242"},
		EnrollmentCodeTTL: api.Duration(time.Hour),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.EnrollmentCode)
	assert.Equal(t, "10.42.0.1", created.Certificate.Address)

	body, err := json.Marshal(api.EnrollRequest{Code: created.EnrollmentCode})
	require.NoError(t, err)
	device := memClient(names.device)
	resp, err := device.Post("http://meshd/v1/device/enroll", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var enrolled api.EnrollResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&enrolled))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.Node.ID, enrolled.NodeID)

	m.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("manager did not stop")
	}

	// state and the generated key survive a restart
	config, _ = testConfig(t, stateDir)
	m2, err := New(config)
	require.NoError(t, err)
	defer m2.Close()

	networks, err := m2.Control().ListNetworks(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "home", networks[0].Name)

	issued, err := m2.Control().IssueCertificate(ctx, &api.IssueCertificateRequest{NodeID: created.Node.ID})
	require.NoError(t, err)
	assert.Equal(t, "10.42.0.1", issued.Address)
	assert.NotEmpty(t, issued.PrivateKey)
}

func TestManagerRejectsWrongKey(t *testing.T) {
	stateDir := t.TempDir()
	config, _ := testConfig(t, stateDir)
	m, err := New(config)
	require.NoError(t, err)
	_, err = m.Control().CreateNetwork(context.Background(), &api.CreateNetworkRequest{Name: "home", CIDR: "10.42.0.0/24"})
	require.NoError(t, err)
	created, err := m.Control().CreateNode(context.Background(), &api.CreateNodeRequest{
		NetworkID: mustNetworkID(t, m),
		Spec:      api.NodeSpec{Hostname: "lighthouse"},
	})
	require.NoError(t, err)
	m.Close()

	config, _ = testConfig(t, stateDir)
	config.KeyEncryptionKey = []byte("0123456789abcdef0123456789abcdef")
	m2, err := New(config)
	require.NoError(t, err)
	defer m2.Close()

	_, err = m2.Control().IssueCertificate(context.Background(), &api.IssueCertificateRequest{NodeID: created.Node.ID})
	assert.Error(t, err)
}

func mustNetworkID(t *testing.T, m *Manager) string {
	networks, err := m.Control().ListNetworks(context.Background())
	require.NoError(t, err)
	require.Len(t, networks, 1)
	return networks[0].ID
}
