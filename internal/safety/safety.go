// Package safety implements the pre-destructive-action check every stage
// re-runs before touching a block device: it must be present, removable
// (or explicitly overridden), not the system device, and not mounted.
package safety

import (
	"context"
	"fmt"

	"janus/internal/inventory"
)

// Reason is a human-readable explanation for a rejection.
type Reason string

// Gate re-verifies a device is safe to write, using a fresh inventory
// snapshot on every call — it never trusts a cached classification.
type Gate struct {
	listDrives func(ctx context.Context, onlyRemovable bool) ([]inventory.Drive, error)
}

// NewGate builds a Gate backed by the real inventory package.
func NewGate() *Gate {
	return &Gate{listDrives: inventory.ListDrives}
}

// VerifyWritable rejects a device that is missing, is the system device, is
// non-removable without an explicit override, or has any partition
// currently mounted.
func (g *Gate) VerifyWritable(ctx context.Context, devicePath string, allowNonRemovable bool) (bool, Reason) {
	drives, err := g.listDrives(ctx, false)
	if err != nil {
		return false, Reason(fmt.Sprintf("inventory unavailable: %v", err))
	}

	for _, d := range drives {
		if d.DevicePath != devicePath {
			continue
		}
		if d.IsSystem {
			return false, Reason(fmt.Sprintf("%s is the system device", devicePath))
		}
		if !d.Removable && !allowNonRemovable {
			return false, Reason(fmt.Sprintf("%s is not removable", devicePath))
		}
		if d.Mounted {
			return false, Reason(fmt.Sprintf("%s has a mounted partition", devicePath))
		}
		return true, ""
	}

	return false, Reason(fmt.Sprintf("%s not found", devicePath))
}
