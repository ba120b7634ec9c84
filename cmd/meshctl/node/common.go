package node

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

func readCSR(flags *pflag.FlagSet) (string, error) {
	path, err := flags.GetString("csr-file")
	if err != nil || path == "" {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to read CSR")
	}
	return string(data), nil
}

func printIssued(w io.Writer, resp *api.IssueCertificateResponse) {
	fmt.Fprintf(w, "Address:\t%s\n", resp.Address)
	if resp.Certificate != nil {
		fmt.Fprintf(w, "Certificate:\t%s (expires %s)\n", resp.Certificate.Fingerprint, common.Until(resp.Certificate.NotAfter))
	}
	if resp.PrivateKey != "" {
		fmt.Fprintln(w, "Private key:\theld by the manager, delivered to the device on enrollment")
	}
}

func printCode(w io.Writer, code string, expiresAt *time.Time) {
	if code == "" || expiresAt == nil {
		return
	}
	fmt.Fprintf(w, "Enrollment code:\t%s (expires %s)\n", code, common.Until(*expiresAt))
}
