package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/ioutils"
	"github.com/meshkit/meshkit/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultTokenPath returns /etc/meshkit/token for root and
// ~/.config/meshkit/token for everyone else.
func DefaultTokenPath() string {
	if os.Geteuid() == 0 {
		return "/etc/meshkit/token"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".meshkit", "token")
	}
	return filepath.Join(home, ".config", "meshkit", "token")
}

// ReadToken reads the device token. A missing file yields ErrNoToken.
func ReadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", errors.Wrap(err, "failed to read device token")
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// WriteToken stores token at path, readable by the owner only.
func WriteToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "failed to create token directory")
	}
	return ioutils.AtomicWriteFile(path, []byte(token+"\n"), 0600)
}

// Enroll consumes code on the manager and stores the resulting device token
// at tokenPath.
func Enroll(ctx context.Context, client *Client, code, tokenPath string) (*api.EnrollResponse, error) {
	hostname, _ := os.Hostname()
	resp, err := client.Enroll(ctx, strings.TrimSpace(code), hostname)
	if err != nil {
		return nil, err
	}
	if err := WriteToken(tokenPath, resp.Token); err != nil {
		return nil, err
	}
	log.G(ctx).WithFields(logrus.Fields{
		"node.id":    resp.NodeID,
		"network.id": resp.NetworkID,
		"hostname":   resp.Hostname,
		"token":      tokenPath,
	}).Info("enrolled")
	return resp, nil
}
