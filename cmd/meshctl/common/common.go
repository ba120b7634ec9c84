package common

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/dustin/go-humanize"
	"github.com/meshkit/meshkit/manager/httpapi"
	"github.com/spf13/cobra"
)

// Dial creates a client for the operator API named by the --socket flag.
func Dial(cmd *cobra.Command) (*httpapi.Client, error) {
	addr, err := cmd.Flags().GetString("socket")
	if err != nil {
		return nil, err
	}
	return httpapi.NewClient(addr)
}

// Context returns a request context based on CLI arguments.
func Context(cmd *cobra.Command) context.Context {
	return cmd.Context()
}

// PrintHeader prints a tab separated header row.
func PrintHeader(w io.Writer, columns ...string) {
	underline := make([]string, len(columns))
	for i := range columns {
		underline[i] = strings.Repeat("-", len(columns[i]))
	}
	fmt.Fprintf(w, "%s\n", strings.Join(columns, "\t"))
	fmt.Fprintf(w, "%s\n", strings.Join(underline, "\t"))
}

// PrintJSON prints v indented, for inspect commands.
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// TimeAgo formats a past timestamp relative to now, or "never".
func TimeAgo(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return humanize.Time(*t)
}

// Until formats the time left before t.
func Until(t time.Time) string {
	d := time.Until(t)
	if d <= 0 {
		return "expired"
	}
	return "in " + strings.ToLower(units.HumanDuration(d))
}

// FprintfIfNotEmpty prints only if `v` is not empty.
func FprintfIfNotEmpty(w io.Writer, format string, v interface{}) {
	if v != nil && v != "" {
		fmt.Fprintf(w, format, v)
	}
}
