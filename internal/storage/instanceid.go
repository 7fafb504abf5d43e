package storage

import (
	"os"
	"strings"
)

// InstanceID returns the identity that records are tracked and expired under. It is the
// configured value when set, otherwise the hostname, so it survives restarts: files tracked
// by a previous run of the same instance are still expired. Replicas sharing a ledger need
// distinct values.
func InstanceID(configured string) string {
	if id := strings.TrimSpace(configured); id != "" {
		return id
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		return "default"
	}

	return host
}
