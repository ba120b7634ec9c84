package agent

import (
	"os"
	"path/filepath"

	"github.com/meshkit/meshkit/ca"
	"github.com/meshkit/meshkit/ioutils"
	"github.com/meshkit/meshkit/manager/netconfig"
	"github.com/pkg/errors"
)

// Keygen generates the device key pair for the sign-only path. The private
// key is written to outputDir and never leaves the device; the returned CSR
// is handed to the operator. An existing key is only replaced when force is
// set.
func Keygen(outputDir string, force bool) ([]byte, error) {
	keyPath := filepath.Join(outputDir, netconfig.KeyFile)
	if !force {
		if _, err := os.Stat(keyPath); err == nil {
			return nil, errors.Errorf("%s already exists", keyPath)
		}
	}

	csr, key, err := ca.GenerateNewCSR()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}
	if err := ioutils.AtomicWriteFile(keyPath, key, 0600); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", keyPath)
	}
	return csr, nil
}
