package device

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Store persists the resolved identifier so it survives OS reinstalls of
// the machine-id files.
type Store interface {
	DeviceID(ctx context.Context) (string, error)
	SaveDeviceID(ctx context.Context, id string) error
}

// machineIDPaths are tried in order on linux
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// ResolveID returns a stable identifier for this device, generating and
// persisting one on first run. Used to tag log output so multi-device
// accounts can tell agents apart.
func ResolveID(ctx context.Context, store Store) (string, error) {
	if store != nil {
		id, err := store.DeviceID(ctx)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}

	id := platformID()
	if id == "" {
		id = uuid.New().String()
	}

	if store != nil {
		if err := store.SaveDeviceID(ctx, id); err != nil {
			return "", err
		}
	}
	return id, nil
}

func platformID() string {
	for _, path := range machineIDPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id
		}
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return "host-" + hostname
	}
	return ""
}
