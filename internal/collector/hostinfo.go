package collector

import (
	"context"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// ResolveHostname returns the host name stamped on every record.
// An explicit override wins; otherwise the name reported by the OS is used,
// falling back to os.Hostname if that lookup fails.
func ResolveHostname(ctx context.Context, override string) (string, error) {
	if name := strings.TrimSpace(override); name != "" {
		return name, nil
	}
	if info, err := host.InfoWithContext(ctx); err == nil && info.Hostname != "" {
		return info.Hostname, nil
	}
	return os.Hostname()
}
